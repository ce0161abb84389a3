package handler

import (
	"net/http"

	"vanta-access/internal/auth"
	"vanta-access/internal/service"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	service   service.EventService
	inventory service.InventoryService
}

func NewEventHandler(service service.EventService, inventory service.InventoryService) *EventHandler {
	return &EventHandler{service: service, inventory: inventory}
}

func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	{
		router.GET("events/:eventId/rules", h.ListRules)
		router.GET("events/:eventId/inventory", h.Inventory)
		router.POST("events/:eventId/open", auth.RequireRole(auth.RoleAdmin), h.OpenForSale)
	}
}

func (h *EventHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(reqCtx(c), c.Param("eventId"))
	if err != nil {
		handleError(c, err, "ListRules")
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *EventHandler) Inventory(c *gin.Context) {
	availability, err := h.inventory.Availability(reqCtx(c), c.Param("eventId"))
	if err != nil {
		handleError(c, err, "Inventory")
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *EventHandler) OpenForSale(c *gin.Context) {
	if err := h.inventory.OpenForSale(reqCtx(c), c.Param("eventId")); err != nil {
		handleError(c, err, "OpenForSale")
		return
	}
	c.Status(http.StatusNoContent)
}
