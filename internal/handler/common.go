package handler

import (
	"context"
	"errors"
	"net/http"

	apperrors "vanta-access/pkg/app_errors"
	"vanta-access/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_INPUT",
		})
		return err
	}
	return nil
}

// reqCtx 取出帶有登入身分的 request context
func reqCtx(c *gin.Context) context.Context {
	return c.Request.Context()
}

type errorResponse struct {
	status  int
	code    string
	message string
}

// 門口人員需要能分辨的拒絕原因各自有獨立的 code
var errorTable = []struct {
	err  error
	resp errorResponse
}{
	{apperrors.ErrOversold, errorResponse{http.StatusConflict, "SOLD_OUT", "This ticket variation is sold out"}},
	{apperrors.ErrQuotaExceeded, errorResponse{http.StatusUnprocessableEntity, "QUOTA_EXCEEDED", "Promoter complimentary quota reached"}},
	{apperrors.ErrDocumentLimitExceeded, errorResponse{http.StatusUnprocessableEntity, "DOCUMENT_LIMIT_EXCEEDED", "This document already holds the maximum complimentary tickets"}},
	{apperrors.ErrNominationLimitExceeded, errorResponse{http.StatusUnprocessableEntity, "NOMINATION_LIMIT_EXCEEDED", "Guest list nomination limit reached"}},
	{apperrors.ErrSaleWindowClosed, errorResponse{http.StatusConflict, "SALE_CLOSED", "Sales for this batch have closed"}},

	{apperrors.ErrEventNotFound, errorResponse{http.StatusNotFound, "EVENT_NOT_FOUND", "Event not found"}},
	{apperrors.ErrVariationNotFound, errorResponse{http.StatusNotFound, "VARIATION_NOT_FOUND", "Ticket variation not found"}},
	{apperrors.ErrRuleNotFound, errorResponse{http.StatusNotFound, "RULE_NOT_FOUND", "Guest list rule not found"}},
	{apperrors.ErrTicketNotFound, errorResponse{http.StatusNotFound, "TICKET_NOT_FOUND", "Ticket not found for this event"}},
	{apperrors.ErrGuestNotFound, errorResponse{http.StatusNotFound, "GUEST_NOT_FOUND", "Guest entry not found"}},

	{apperrors.ErrAlreadyUsed, errorResponse{http.StatusConflict, "ALREADY_USED", "Ticket was already used"}},
	{apperrors.ErrCancelled, errorResponse{http.StatusConflict, "CANCELLED", "Ticket was cancelled"}},
	{apperrors.ErrTransferPending, errorResponse{http.StatusConflict, "TRANSFER_PENDING", "Ticket has a pending transfer"}},
	{apperrors.ErrAlreadyClaimed, errorResponse{http.StatusConflict, "ALREADY_CLAIMED", "Ticket holder was already validated"}},
	{apperrors.ErrAlreadyCheckedIn, errorResponse{http.StatusConflict, "ALREADY_CHECKED_IN", "Guest already checked in"}},
	{apperrors.ErrInvalidTransition, errorResponse{http.StatusConflict, "INVALID_TRANSITION", "Ticket cannot change to the requested status"}},

	{apperrors.ErrUnauthenticated, errorResponse{http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthenticated"}},
	{apperrors.ErrForbidden, errorResponse{http.StatusForbidden, "FORBIDDEN", "Forbidden"}},
	{apperrors.ErrNotStaff, errorResponse{http.StatusForbidden, "NOT_STAFF", "Caller is not assigned to this event"}},
	{apperrors.ErrNotTicketOwner, errorResponse{http.StatusForbidden, "NOT_TICKET_OWNER", "Caller does not own this ticket"}},

	{apperrors.ErrInvalidToken, errorResponse{http.StatusBadRequest, "INVALID_TOKEN", "Scanned code is not a valid ticket"}},
	{apperrors.ErrInvalidInput, errorResponse{http.StatusBadRequest, "INVALID_INPUT", "Invalid input"}},

	{apperrors.ErrTransientStore, errorResponse{http.StatusServiceUnavailable, "TRY_AGAIN", "Service temporarily unavailable, try again"}},
	{context.DeadlineExceeded, errorResponse{http.StatusServiceUnavailable, "TRY_AGAIN", "Service temporarily unavailable, try again"}},
}

func handleError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))

	for _, entry := range errorTable {
		if !errors.Is(err, entry.err) {
			continue
		}
		body := gin.H{"error": entry.resp.message, "code": entry.resp.code}

		var limitErr *apperrors.LimitError
		if errors.As(err, &limitErr) {
			body["limit"] = limitErr.Limit
			body["current"] = limitErr.Current
		}

		if entry.resp.status >= http.StatusInternalServerError {
			log.Error("Request failed")
		} else {
			log.Warn("Request rejected", zap.String("code", entry.resp.code))
		}
		c.JSON(entry.resp.status, body)
		return
	}

	log.Error("Unexpected error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL"})
}
