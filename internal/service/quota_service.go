package service

import (
	"context"

	"vanta-access/internal/repository"
	apperrors "vanta-access/pkg/app_errors"
)

// DocumentCap is the most complimentary tickets one identity document may
// hold per event.
const DocumentCap = 2

// QuotaService checks promoter and document caps. Both checks only hold
// when called inside the issuing transaction after the matching lock.
type QuotaService interface {
	CheckPromoterQuota(ctx context.Context, eventID, promoterID string, assignedQuota *int) error
	CheckDocumentLimit(ctx context.Context, eventID, document string) error
}

type QuotaServiceImpl struct {
	tickets repository.TicketRepository
}

func NewQuotaService(tickets repository.TicketRepository) QuotaService {
	return &QuotaServiceImpl{tickets: tickets}
}

// CheckPromoterQuota treats a nil quota as unlimited.
func (s *QuotaServiceImpl) CheckPromoterQuota(ctx context.Context, eventID, promoterID string, assignedQuota *int) error {
	if assignedQuota == nil {
		return nil
	}
	count, err := s.tickets.CountComplimentaryByPromoter(ctx, eventID, promoterID)
	if err != nil {
		return err
	}
	if count >= *assignedQuota {
		return apperrors.NewLimitError(apperrors.ErrQuotaExceeded, *assignedQuota, count)
	}
	return nil
}

func (s *QuotaServiceImpl) CheckDocumentLimit(ctx context.Context, eventID, document string) error {
	count, err := s.tickets.CountComplimentaryByDocument(ctx, eventID, document)
	if err != nil {
		return err
	}
	if count >= DocumentCap {
		return apperrors.NewLimitError(apperrors.ErrDocumentLimitExceeded, DocumentCap, count)
	}
	return nil
}
