package handler

import (
	"vanta-access/internal/auth"
	"vanta-access/pkg/telemetry"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Events  *EventHandler
	Tickets *TicketHandler
	Guests  *GuestHandler
	Health  *HealthHandler
}

// NewRouter mounts every route under /api/v1 behind bearer authentication.
// /healthz stays public.
func NewRouter(authn *auth.Authenticator, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), telemetry.Middleware())

	if h.Health != nil {
		h.Health.RegisterRoutes(router)
	}

	api := router.Group("/api/v1", auth.Middleware(authn))
	h.Events.RegisterRoutes(api)
	h.Tickets.RegisterRoutes(api)
	h.Guests.RegisterRoutes(api)
	return router
}
