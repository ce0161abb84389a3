package handler

import (
	"context"
	"net/http"
	"time"

	"vanta-access/internal/service"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
	audit service.AuditRecorder
}

func NewHealthHandler(store Pinger, audit service.AuditRecorder) *HealthHandler {
	return &HealthHandler{store: store, audit: audit}
}

func (h *HealthHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "audit_failures": h.audit.Failures()}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
