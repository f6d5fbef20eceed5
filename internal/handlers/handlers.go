// Package handlers implements the HTTP API on gin.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/auth"
	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/history"
	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/model"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
	"github.com/Brownie44l1/leafscan-api/internal/response"
	"github.com/Brownie44l1/leafscan-api/internal/stats"
)

const DefaultMaxUploadBytes = 10 << 20

type Predictor interface {
	Predict(ctx context.Context, userID string, data []byte, contentType string) (prediction.Record, error)
	Classify(ctx context.Context, data []byte) (model.PredictionResponse, error)
}

type History interface {
	List(ctx context.Context, userID string, limit int) history.ListResult
	Delete(ctx context.Context, userID, predictionID string) history.DeleteResult
}

type Stats interface {
	Compute(ctx context.Context, userID string) stats.Stats
}

type CareGuides interface {
	CareGuide(plant, disease string) (diagnosis.CareGuide, error)
}

type Options struct {
	MaxUploadBytes   int64
	AdmissionTimeout time.Duration
}

// Handler serves the /predictions routes.
type Handler struct {
	predictor Predictor
	history   History
	stats     Stats
	guides    CareGuides
	opts      Options
	logger    *zap.Logger
}

func NewHandler(p Predictor, h History, s Stats, g CareGuides, opts Options, logger *zap.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		predictor: p,
		history:   h,
		stats:     s,
		guides:    g,
		opts:      opts,
		logger:    logger.With(zap.String("component", "handlers")),
	}
}

// Upload handles POST /predictions/upload: a multipart form with an "image"
// file and the caller's "userId".
func (h *Handler) Upload(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("authentication required"))
		return
	}
	if !h.parseForm(c) {
		return
	}

	userID := strings.TrimSpace(c.PostForm("userId"))
	if userID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("userId is required"))
		return
	}
	if userID != id.UserID {
		response.RespondError(c, http.StatusForbidden, "forbidden", errIdentityMismatch)
		return
	}

	data, contentType, ok := h.readImage(c)
	if !ok {
		return
	}
	h.logger.Debug("Received image",
		logging.UserID(userID),
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType))

	ctx, cancel := h.admissionContext(c)
	defer cancel()

	rec, err := h.predictor.Predict(ctx, userID, data, contentType)
	if err != nil {
		writePredictError(c, h.logger, err)
		return
	}

	response.RespondOK(c, rec)
}

// Predict handles POST /predictions/predict: classify an "image" upload and
// return the model output without storing anything.
func (h *Handler) Predict(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}
	data, _, ok := h.readImage(c)
	if !ok {
		return
	}

	ctx, cancel := h.admissionContext(c)
	defer cancel()

	res, err := h.predictor.Classify(ctx, data)
	if err != nil {
		writePredictError(c, h.logger, err)
		return
	}
	response.RespondOK(c, res)
}

// parseForm applies the upload limit and parses the multipart body.
func (h *Handler) parseForm(c *gin.Context) bool {
	// Multipart framing adds a little on top of the file itself.
	bodyLimit := h.opts.MaxUploadBytes + 64<<10
	if c.Request.ContentLength > bodyLimit {
		h.tooLarge(c)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
	if err := c.Request.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.tooLarge(c)
			return false
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("failed to parse multipart form"))
		return false
	}
	return true
}

// readImage returns the "image" part and its content type, which must be
// image/*.
func (h *Handler) readImage(c *gin.Context) ([]byte, string, bool) {
	fh, err := c.FormFile("image")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("no image file provided, use 'image' as the form field name"))
		return nil, "", false
	}

	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", errors.New("file must be an image"))
		return nil, "", false
	}

	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", errors.New("failed to read uploaded file"))
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.opts.MaxUploadBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", errors.New("failed to read uploaded file"))
		return nil, "", false
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		h.tooLarge(c)
		return nil, "", false
	}
	return data, contentType, true
}

func (h *Handler) tooLarge(c *gin.Context) {
	response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
		fmt.Errorf("image exceeds %d bytes", h.opts.MaxUploadBytes))
}

// admissionContext bounds the wait for a worker slot.
func (h *Handler) admissionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.opts.AdmissionTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.opts.AdmissionTimeout)
	}
	return c.Request.Context(), func() {}
}

// History handles GET /predictions/history/:userId.
func (h *Handler) History(c *gin.Context) {
	userID, ok := requireSelf(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	res := h.history.List(c.Request.Context(), userID, limit)
	if res.Degraded() {
		h.logger.Warn("Serving empty history after store failure", logging.UserID(userID))
	}
	response.RespondOK(c, res.Records)
}

// Delete handles DELETE /predictions/:predictionId for the caller.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok || id.UserID == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("invalid user"))
		return
	}

	predictionID := c.Param("predictionId")
	switch h.history.Delete(c.Request.Context(), id.UserID, predictionID).Status {
	case history.DeleteRemoved:
		response.RespondOK(c, gin.H{"message": "Prediction deleted successfully"})
	case history.DeleteNotFound:
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("prediction not found"))
	default:
		response.RespondError(c, http.StatusInternalServerError, "delete_failed", errors.New("failed to delete prediction"))
	}
}

// Stats handles GET /predictions/stats/:userId.
func (h *Handler) Stats(c *gin.Context) {
	userID, ok := requireSelf(c)
	if !ok {
		return
	}
	response.RespondOK(c, h.stats.Compute(c.Request.Context(), userID))
}

// CareGuide handles GET /predictions/care-guide?plant=&disease=.
func (h *Handler) CareGuide(c *gin.Context) {
	plant := strings.TrimSpace(c.Query("plant"))
	if plant == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("plant is required"))
		return
	}

	guide, err := h.guides.CareGuide(plant, strings.TrimSpace(c.Query("disease")))
	if err != nil {
		var unknown *diagnosis.UnknownClassError
		if errors.Is(err, diagnosis.ErrPlantNotFound) || errors.As(err, &unknown) {
			response.RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		h.logger.Error("Failed to build care guide", zap.Error(err))
		response.RespondError(c, http.StatusInternalServerError, "care_guide_failed", errors.New("failed to get care guide"))
		return
	}
	response.RespondOK(c, guide)
}

// requireSelf checks that the :userId path parameter is the caller.
func requireSelf(c *gin.Context) (string, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("authentication required"))
		return "", false
	}
	userID := c.Param("userId")
	if userID != id.UserID {
		response.RespondError(c, http.StatusForbidden, "forbidden", errIdentityMismatch)
		return "", false
	}
	return userID, true
}
