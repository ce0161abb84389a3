package service

import (
	"context"
	"errors"

	"vanta-access/internal/cache"
	"vanta-access/internal/model"
	"vanta-access/internal/repository"
	apperrors "vanta-access/pkg/app_errors"
	"vanta-access/pkg/logger"

	"go.uber.org/zap"
)

type InventoryService interface {
	// 每個票種目前售出數（不含已取消）
	CurrentSold(ctx context.Context, eventID string) (map[string]int, error)
	Availability(ctx context.Context, eventID string) ([]model.VariationAvailability, error)
	// Reserve 在同一個 transaction 內鎖定票種、檢查數量並寫入票券
	Reserve(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error)
	// 預熱 Redis 售完閘門
	OpenForSale(ctx context.Context, eventID string) error
	// 以資料庫數量覆寫已預熱的閘門
	Reconcile(ctx context.Context, eventID string) error
}

type InventoryServiceImpl struct {
	tx        repository.TxManager
	events    repository.EventRepository
	tickets   repository.TicketRepository
	inventory cache.VariationInventory
	audit     AuditRecorder
}

func NewInventoryService(
	tx repository.TxManager,
	events repository.EventRepository,
	tickets repository.TicketRepository,
	inventory cache.VariationInventory,
	audit AuditRecorder,
) InventoryService {
	return &InventoryServiceImpl{
		tx:        tx,
		events:    events,
		tickets:   tickets,
		inventory: inventory,
		audit:     audit,
	}
}

func (s *InventoryServiceImpl) CurrentSold(ctx context.Context, eventID string) (map[string]int, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.tickets.CountSoldByEvent(ctx, eventID)
}

func (s *InventoryServiceImpl) Availability(ctx context.Context, eventID string) ([]model.VariationAvailability, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sold, err := s.tickets.CountSoldByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out := make([]model.VariationAvailability, 0)
	for _, b := range event.Batches {
		for _, v := range b.Variations {
			remaining := v.Limit - sold[v.ID]
			if remaining < 0 {
				remaining = 0
			}
			out = append(out, model.VariationAvailability{
				VariationID: v.ID,
				BatchID:     b.ID,
				BatchName:   b.Name,
				Area:        v.Area,
				Gender:      v.Gender,
				Price:       v.Price,
				Limit:       v.Limit,
				Sold:        sold[v.ID],
				Remaining:   remaining,
			})
		}
	}
	return out, nil
}

func (s *InventoryServiceImpl) Reserve(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	if ticket.VariationID == nil {
		return nil, apperrors.ErrInvalidInput
	}

	var created *model.Ticket
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		// 鎖住票種列，序列化同一票種的發票
		variation, err := s.events.FindVariationForUpdate(ctx, *ticket.VariationID)
		if err != nil {
			return err
		}
		if variation.EventID != ticket.EventID {
			return apperrors.ErrVariationNotFound
		}

		sold, err := s.tickets.CountSoldByVariation(ctx, variation.ID)
		if err != nil {
			return err
		}
		if sold >= variation.Limit {
			return apperrors.NewLimitError(apperrors.ErrOversold, variation.Limit, sold)
		}

		created, err = s.tickets.Create(ctx, ticket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *InventoryServiceImpl) OpenForSale(ctx context.Context, eventID string) error {
	err := s.warm(ctx, eventID, false)
	s.audit.Record(ctx, AuditEntry{
		Action:   "inventory.open",
		Category: model.AuditCategoryInventory,
		TargetID: eventID,
		Success:  err == nil,
		Reason:   reason(err),
	})
	return err
}

func (s *InventoryServiceImpl) Reconcile(ctx context.Context, eventID string) error {
	return s.warm(ctx, eventID, true)
}

func (s *InventoryServiceImpl) warm(ctx context.Context, eventID string, onlyWarm bool) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	sold, err := s.tickets.CountSoldByEvent(ctx, eventID)
	if err != nil {
		return err
	}

	for _, v := range event.Variations() {
		if onlyWarm {
			_, err := s.inventory.GetStock(ctx, v.ID)
			if errors.Is(err, apperrors.ErrInventoryNotWarm) {
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := s.inventory.WarmUp(ctx, v.ID, v.Limit, sold[v.ID]); err != nil {
			return apperrors.Transient(err)
		}
		logger.WithComponent("cache").Debug("variation stock warmed",
			zap.String("event_id", eventID),
			zap.String("variation_id", v.ID),
			zap.Int("limit", v.Limit),
			zap.Int("sold", sold[v.ID]),
		)
	}
	return nil
}
