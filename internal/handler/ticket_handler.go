package handler

import (
	"net/http"

	"vanta-access/internal/auth"
	"vanta-access/internal/model"
	"vanta-access/internal/service"
	"vanta-access/internal/token"

	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service service.TicketService
}

func NewTicketHandler(service service.TicketService) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) RegisterRoutes(router *gin.RouterGroup) {
	door := auth.RequireRole(auth.RoleDoor, auth.RoleAdmin)
	staff := auth.RequireRole(auth.RoleDoor, auth.RolePromoter, auth.RoleAdmin)
	{
		router.POST("events/:eventId/tickets", h.Issue)
		router.GET("events/:eventId/tickets", staff, h.List)
		router.POST("events/:eventId/validate", door, h.Validate)
		router.GET("tickets/:id", h.Get)
		router.POST("tickets/:id/claim", h.Claim)
		router.POST("tickets/:id/redeem", door, h.Redeem)
		router.POST("tickets/:id/cancel", h.Cancel)
		router.POST("tickets/:id/transfer", h.InitiateTransfer)
		router.POST("tickets/:id/transfer/accept", h.AcceptTransfer)
	}
}

func toTicketResponse(t *model.Ticket) model.TicketResponse {
	return model.TicketResponse{
		ID:             t.ID,
		EventID:        t.EventID,
		VariationID:    t.VariationID,
		Status:         t.Status,
		Source:         t.Source,
		Token:          token.Format(t.Hash),
		HolderName:     t.HolderName,
		HolderDocument: t.HolderDocument,
		UsedAt:         t.UsedAt,
	}
}

func toTicketSummary(t *model.Ticket) model.TicketSummary {
	return model.TicketSummary{
		ID:          t.ID,
		VariationID: t.VariationID,
		Status:      t.Status,
		Source:      t.Source,
		PromoterID:  t.PromoterID,
		HolderName:  t.HolderName,
		Claimed:     t.IsClaimed(),
		UsedAt:      t.UsedAt,
		CreatedAt:   t.CreatedAt,
	}
}

func (h *TicketHandler) Issue(c *gin.Context) {
	var req model.IssueTicketRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	req.EventID = c.Param("eventId")

	ticket, err := h.service.Issue(reqCtx(c), req)
	if err != nil {
		handleError(c, err, "Issue")
		return
	}
	c.JSON(http.StatusCreated, toTicketResponse(ticket))
}

func (h *TicketHandler) List(c *gin.Context) {
	tickets, err := h.service.ListTickets(reqCtx(c), c.Param("eventId"))
	if err != nil {
		handleError(c, err, "List")
		return
	}
	resp := make([]model.TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, toTicketSummary(t))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.service.GetTicket(reqCtx(c), c.Param("id"))
	if err != nil {
		handleError(c, err, "Get")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *TicketHandler) Claim(c *gin.Context) {
	var req model.ClaimTicketRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	ticket, err := h.service.ClaimOwnership(reqCtx(c), c.Param("id"), req.Name, req.Document)
	if err != nil {
		handleError(c, err, "Claim")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

// Validate 只檢查不兌換，門口確認後再呼叫 Redeem
func (h *TicketHandler) Validate(c *gin.Context) {
	var req model.ValidateTicketRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	ticket, err := h.service.ValidateToken(reqCtx(c), req.Token, c.Param("eventId"))
	if err != nil {
		handleError(c, err, "Validate")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *TicketHandler) Redeem(c *gin.Context) {
	ticket, err := h.service.Redeem(reqCtx(c), c.Param("id"))
	if err != nil {
		handleError(c, err, "Redeem")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *TicketHandler) Cancel(c *gin.Context) {
	ticket, err := h.service.Cancel(reqCtx(c), c.Param("id"))
	if err != nil {
		handleError(c, err, "Cancel")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *TicketHandler) InitiateTransfer(c *gin.Context) {
	var req model.TransferTicketRequest
	// body 可省略：不指定接收人
	if c.Request.ContentLength > 0 {
		if err := BindJson(c, &req); err != nil {
			return
		}
	}
	ticket, err := h.service.InitiateTransfer(reqCtx(c), c.Param("id"), req.RecipientUserID)
	if err != nil {
		handleError(c, err, "InitiateTransfer")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *TicketHandler) AcceptTransfer(c *gin.Context) {
	ticket, err := h.service.AcceptTransfer(reqCtx(c), c.Param("id"))
	if err != nil {
		handleError(c, err, "AcceptTransfer")
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}
