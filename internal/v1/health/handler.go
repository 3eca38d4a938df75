// Package health exposes liveness and readiness endpoints for the admin
// HTTP server.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phiralab/phira-mp-server/internal/v1/room"
)

// Handler serves the health endpoints.
type Handler struct {
	registry *room.Registry
	tcpReady func() bool
	started  time.Time
}

// NewHandler builds a health handler. tcpReady reports whether the TCP
// listener is bound and accepting.
func NewHandler(registry *room.Registry, tcpReady func() bool) *Handler {
	return &Handler{
		registry: registry,
		tcpReady: tcpReady,
		started:  time.Now(),
	}
}

// Liveness reports that the process is up.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Readiness reports whether the server can take traffic.
func (h *Handler) Readiness(c *gin.Context) {
	if h.tcpReady != nil && !h.tcpReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "tcp listener not bound",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"online": h.registry.OnlineCount(),
		"rooms":  len(h.registry.List()),
	})
}
