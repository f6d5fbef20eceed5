package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/leafscan-api/internal/auth"
	"github.com/Brownie44l1/leafscan-api/internal/response"
)

// VerifyToken handles GET /auth/verify. RequireAuth has already checked the
// token; this echoes the identity back.
func VerifyToken(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("invalid authentication token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"uid":     id.UserID,
		"email":   id.Email,
		"name":    id.Name,
		"picture": id.Picture,
	})
}
