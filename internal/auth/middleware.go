package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/response"
)

const identityKey = "auth.identity"

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's Identity on the gin context.
func RequireAuth(v Verifier, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "auth"))
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized",
				errors.New("missing or malformed authorization header"))
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Info("Rejected token",
				zap.String("path", c.FullPath()),
				zap.String("error", logging.SanitizeError(err)))
			response.AbortError(c, http.StatusUnauthorized, "unauthorized",
				errors.New("invalid authentication credentials"))
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// WithIdentity stores id on the context. Tests use it to skip token checks.
func WithIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
