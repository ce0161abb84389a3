package handler

import (
	"net/http"

	"vanta-access/internal/auth"
	"vanta-access/internal/model"
	"vanta-access/internal/service"

	"github.com/gin-gonic/gin"
)

type GuestHandler struct {
	service service.GuestService
}

func NewGuestHandler(service service.GuestService) *GuestHandler {
	return &GuestHandler{service: service}
}

func (h *GuestHandler) RegisterRoutes(router *gin.RouterGroup) {
	staff := auth.RequireRole(auth.RoleDoor, auth.RolePromoter, auth.RoleAdmin)
	{
		router.POST("events/:eventId/guests", auth.RequireRole(auth.RolePromoter, auth.RoleAdmin), h.Add)
		router.GET("events/:eventId/guests", staff, h.List)
		router.POST("guests/:id/checkin", auth.RequireRole(auth.RoleDoor, auth.RoleAdmin), h.CheckIn)
		router.PUT("guests/:id/priority", staff, h.SetPriority)
	}
}

func (h *GuestHandler) Add(c *gin.Context) {
	var req model.AddGuestsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	entries, err := h.service.AddGuests(reqCtx(c), c.Param("eventId"), req)
	if err != nil {
		handleError(c, err, "AddGuests")
		return
	}
	c.JSON(http.StatusCreated, entries)
}

func (h *GuestHandler) List(c *gin.Context) {
	views, err := h.service.ListGuests(reqCtx(c), c.Param("eventId"), c.Query("q"))
	if err != nil {
		handleError(c, err, "ListGuests")
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *GuestHandler) CheckIn(c *gin.Context) {
	entry, err := h.service.CheckIn(reqCtx(c), c.Param("id"))
	if err != nil {
		handleError(c, err, "CheckIn")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *GuestHandler) SetPriority(c *gin.Context) {
	var req model.PriorityRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	entry, err := h.service.TogglePriority(reqCtx(c), c.Param("id"), *req.NotifyOnArrival)
	if err != nil {
		handleError(c, err, "SetPriority")
		return
	}
	c.JSON(http.StatusOK, entry)
}
