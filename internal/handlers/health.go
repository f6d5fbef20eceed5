package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "leafscan-api"

// ModelStatus reports whether the model runtime is loaded.
type ModelStatus interface {
	Ready() bool
}

// StoreStatus reports whether the history store answers.
type StoreStatus interface {
	Ready(ctx context.Context) bool
}

type HealthHandler struct {
	version string
	model   ModelStatus
	store   StoreStatus
}

func NewHealthHandler(version string, model ModelStatus, store StoreStatus) *HealthHandler {
	return &HealthHandler{version: version, model: model, store: store}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Root handles GET /.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Plant Disease Detector API",
		"service": serviceName,
		"version": h.version,
		"status":  "running",
	})
}

// Health handles GET /health without touching dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": now(),
		"service":   serviceName,
	})
}

// Detailed handles GET /health/detailed.
func (h *HealthHandler) Detailed(c *gin.Context) {
	modelReady, storeReady := h.check(c.Request.Context())
	healthy := modelReady && storeReady

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": now(),
		"services": gin.H{
			"ml_model": component(modelReady),
			"store":    component(storeReady),
		},
		"overall_healthy": healthy,
	})
}

// Ready handles GET /health/ready. Not ready is reported with 503 so load
// balancers stop routing.
func (h *HealthHandler) Ready(c *gin.Context) {
	modelReady, storeReady := h.check(c.Request.Context())
	if modelReady && storeReady {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": now()})
}

func (h *HealthHandler) check(ctx context.Context) (bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	modelReady := h.model != nil && h.model.Ready()
	storeReady := h.store != nil && h.store.Ready(ctx)
	return modelReady, storeReady
}

func component(ready bool) gin.H {
	status := "not_ready"
	if ready {
		status = "ready"
	}
	return gin.H{"status": status, "initialized": ready}
}
