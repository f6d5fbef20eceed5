// Package server assembles the gin engine: middleware, routes and the HTTP
// server lifecycle.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/auth"
	"github.com/Brownie44l1/leafscan-api/internal/handlers"
)

type RouterConfig struct {
	AllowedOrigins []string
	Verifier       auth.Verifier
	Logger         *zap.Logger

	HealthHandler     *handlers.HealthHandler
	PredictionHandler *handlers.Handler
	UserHandler       *handlers.UserHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(NoCache())

	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Root)
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/health/detailed", cfg.HealthHandler.Detailed)
		r.GET("/health/ready", cfg.HealthHandler.Ready)
		r.GET("/health/live", cfg.HealthHandler.Live)
	}

	protected := r.Group("/")
	if cfg.Verifier != nil {
		protected.Use(auth.RequireAuth(cfg.Verifier, cfg.Logger))
	}

	protected.GET("/auth/verify", handlers.VerifyToken)

	if cfg.PredictionHandler != nil {
		p := protected.Group("/predictions")
		p.POST("/upload", cfg.PredictionHandler.Upload)
		p.POST("/predict", cfg.PredictionHandler.Predict)
		p.GET("/history/:userId", cfg.PredictionHandler.History)
		p.GET("/stats/:userId", cfg.PredictionHandler.Stats)
		p.GET("/care-guide", cfg.PredictionHandler.CareGuide)
		p.DELETE("/:predictionId", cfg.PredictionHandler.Delete)
	}

	if cfg.UserHandler != nil {
		u := protected.Group("/users")
		u.GET("/:userId/profile", cfg.UserHandler.GetProfile)
		u.PATCH("/:userId/profile", cfg.UserHandler.UpdateProfile)
	}

	return r
}
