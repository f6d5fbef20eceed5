package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/history"
	"github.com/Brownie44l1/leafscan-api/internal/response"
)

type Profiles interface {
	Profile(ctx context.Context, userID string) (history.Profile, error)
	UpdateProfile(ctx context.Context, userID, displayName string) error
}

type UserHandler struct {
	profiles Profiles
	logger   *zap.Logger
}

func NewUserHandler(p Profiles, logger *zap.Logger) *UserHandler {
	return &UserHandler{profiles: p, logger: logger.With(zap.String("component", "handlers"))}
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName" binding:"required"`
}

const maxDisplayNameLen = 100

// GetProfile handles GET /users/:userId/profile.
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := requireSelf(c)
	if !ok {
		return
	}

	p, err := h.profiles.Profile(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "profile_failed", errors.New("failed to get user profile"))
		return
	}
	response.RespondOK(c, p)
}

// UpdateProfile handles PATCH /users/:userId/profile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := requireSelf(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("displayName is required"))
		return
	}
	name := strings.TrimSpace(*req.DisplayName)
	if len([]rune(name)) > maxDisplayNameLen {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("displayName is too long"))
		return
	}

	if err := h.profiles.UpdateProfile(c.Request.Context(), userID, name); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "profile_failed", errors.New("failed to update user profile"))
		return
	}

	p, err := h.profiles.Profile(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "profile_failed", errors.New("failed to get user profile"))
		return
	}
	response.RespondOK(c, p)
}
