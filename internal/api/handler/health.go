package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	startedAt time.Time
	ping      func() error // nil when history persistence is disabled
	poolSize  int
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(ping func() error, poolSize int) *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), ping: ping, poolSize: poolSize}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	database := "disabled"
	if h.ping != nil {
		database = "connected"
		if err := h.ping(); err != nil {
			database = "disconnected"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"timestamp":     time.Now().UTC(),
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"database":      database,
		"workerThreads": h.poolSize,
	})
}
