package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/inference"
	"github.com/Brownie44l1/leafscan-api/internal/pipeline"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
	"github.com/Brownie44l1/leafscan-api/internal/preprocess"
	"github.com/Brownie44l1/leafscan-api/internal/response"
)

var errIdentityMismatch = errors.New("user ID mismatch")

// writePredictError maps pipeline failures onto status codes. Client errors
// echo the cause; server errors get a fixed message and are logged.
func writePredictError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		decodeErr      *preprocess.DecodeError
		unsupportedErr *preprocess.UnsupportedFormatError
		outputErr      *inference.InvalidOutputError
		unknownErr     *diagnosis.UnknownClassError
	)

	switch {
	case errors.As(err, &decodeErr):
		response.RespondError(c, http.StatusBadRequest, "decode_error", err)
	case errors.As(err, &unsupportedErr):
		response.RespondError(c, http.StatusBadRequest, "unsupported_format", err)
	case errors.Is(err, inference.ErrModelUnavailable):
		logger.Warn("Prediction rejected, model unavailable", zap.Error(err))
		response.RespondError(c, http.StatusServiceUnavailable, "model_unavailable", errors.New("model is not available, try again later"))
	case errors.Is(err, pipeline.ErrBusy):
		logger.Warn("Prediction rejected, no worker available", zap.Error(err))
		response.RespondError(c, http.StatusServiceUnavailable, "busy", errors.New("server is busy, try again later"))
	case errors.As(err, &outputErr):
		logger.Error("Prediction failed", zap.Error(err))
		response.RespondError(c, http.StatusInternalServerError, "inference_failed", errors.New("inference failed"))
	case errors.As(err, &unknownErr):
		logger.Error("Prediction failed", zap.Int("class_index", unknownErr.Index), zap.Error(err))
		response.RespondError(c, http.StatusInternalServerError, "unknown_class", errors.New("model produced an unknown class"))
	case errors.Is(err, prediction.ErrMissingField):
		logger.Error("Prediction failed", zap.Error(err))
		response.RespondError(c, http.StatusInternalServerError, "invalid_mapping", errors.New("diagnosis mapping is incomplete"))
	case errors.Is(err, pipeline.ErrSaveFailed):
		response.RespondError(c, http.StatusInternalServerError, "save_failed", errors.New("failed to save prediction"))
	default:
		logger.Error("Prediction failed", zap.Error(err))
		response.RespondError(c, http.StatusInternalServerError, "prediction_failed", errors.New("prediction failed"))
	}
}
