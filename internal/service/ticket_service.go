package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/cache"
	"vanta-access/internal/clock"
	"vanta-access/internal/model"
	"vanta-access/internal/repository"
	"vanta-access/internal/token"
	apperrors "vanta-access/pkg/app_errors"
	"vanta-access/pkg/logger"
	"vanta-access/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxHashAttempts = 3

type TicketService interface {
	Issue(ctx context.Context, req model.IssueTicketRequest) (*model.Ticket, error)
	ClaimOwnership(ctx context.Context, ticketID, name, document string) (*model.Ticket, error)
	// Validate 只讀；hash 必須屬於該活動
	Validate(ctx context.Context, hash, eventID string) (*model.Ticket, error)
	ValidateToken(ctx context.Context, rawToken, eventID string) (*model.Ticket, error)
	Redeem(ctx context.Context, ticketID string) (*model.Ticket, error)
	Cancel(ctx context.Context, ticketID string) (*model.Ticket, error)
	InitiateTransfer(ctx context.Context, ticketID string, recipient *string) (*model.Ticket, error)
	AcceptTransfer(ctx context.Context, ticketID string) (*model.Ticket, error)
	// 把超過 ttl 仍未接受的轉讓退回原持有人
	RevertExpiredTransfers(ctx context.Context, ttl time.Duration) (int, error)
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	// ListTickets 只給 admin 與該活動的 staff；promoter 只看到自己發的票
	ListTickets(ctx context.Context, eventID string) ([]*model.Ticket, error)
}

type TicketServiceImpl struct {
	tx        repository.TxManager
	events    repository.EventRepository
	tickets   repository.TicketRepository
	ledger    InventoryService
	quota     QuotaService
	inventory cache.VariationInventory
	audit     AuditRecorder
	clock     clock.Clock
}

func NewTicketService(
	tx repository.TxManager,
	events repository.EventRepository,
	tickets repository.TicketRepository,
	ledger InventoryService,
	quota QuotaService,
	inventory cache.VariationInventory,
	audit AuditRecorder,
	clk clock.Clock,
) TicketService {
	return &TicketServiceImpl{
		tx:        tx,
		events:    events,
		tickets:   tickets,
		ledger:    ledger,
		quota:     quota,
		inventory: inventory,
		audit:     audit,
		clock:     clk,
	}
}

// statusErr maps a ticket that is not active to the door-facing reason.
func statusErr(t *model.Ticket) error {
	switch t.Status {
	case model.TicketStatusUsed:
		return apperrors.ErrAlreadyUsed
	case model.TicketStatusCancelled:
		return apperrors.ErrCancelled
	case model.TicketStatusTransferPending:
		return apperrors.ErrTransferPending
	}
	return apperrors.ErrInvalidTransition
}

// resolveTransition explains why a conditional update matched no row.
func (s *TicketServiceImpl) resolveTransition(ctx context.Context, ticketID string, err error) error {
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		return err
	}
	current, findErr := s.tickets.FindByID(ctx, ticketID)
	if findErr != nil {
		return findErr
	}
	return statusErr(current)
}

func isPolicyRejection(err error) bool {
	var limitErr *apperrors.LimitError
	return errors.As(err, &limitErr)
}

func (s *TicketServiceImpl) logResult(action string, err error, fields ...zap.Field) {
	log := logger.WithComponent("service")
	switch {
	case err == nil:
		log.Info(action, fields...)
	case errors.Is(err, apperrors.ErrTransientStore):
		log.Error(action+" failed", append(fields, zap.Error(err))...)
	default:
		log.Warn(action+" rejected", append(fields, zap.Error(err))...)
	}
}

func (s *TicketServiceImpl) Issue(ctx context.Context, req model.IssueTicketRequest) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ticket.issue",
		attribute.String("event_id", req.EventID), attribute.String("source", string(req.Source)))
	defer func() { telemetry.EndSpan(span, err) }()

	details := map[string]any{"event_id": req.EventID, "source": req.Source}
	if req.VariationID != nil {
		details["variation_id"] = *req.VariationID
	}
	defer func() {
		target := req.EventID
		if ticket != nil {
			target = ticket.ID
		}
		if le := (*apperrors.LimitError)(nil); errors.As(err, &le) {
			details["limit"] = le.Limit
			details["current"] = le.Current
		}
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.issue",
			Category: model.AuditCategoryTicket,
			TargetID: target,
			Success:  err == nil,
			Reason:   reason(err),
			Details:  details,
		})
		s.logResult("ticket issue", err, zap.String("event_id", req.EventID), zap.String("source", string(req.Source)))
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Source.IsValid() {
		return nil, apperrors.ErrInvalidInput
	}

	event, err := s.events.FindByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	draft := &model.Ticket{
		EventID:        req.EventID,
		UserID:         req.UserID,
		Status:         model.TicketStatusActive,
		Source:         req.Source,
		HolderName:     trimmed(req.HolderName),
		HolderDocument: normalizedDocument(req.HolderDocument),
		CreatedAt:      now,
	}
	if (draft.HolderName == nil) != (draft.HolderDocument == nil) {
		return nil, apperrors.ErrInvalidInput
	}

	var variation *model.Variation
	if req.VariationID != nil {
		v, batch, ok := event.FindVariation(*req.VariationID)
		if !ok {
			return nil, apperrors.ErrVariationNotFound
		}
		if req.Source == model.SourcePurchase && batch.SaleEndsAt != nil && now.After(*batch.SaleEndsAt) {
			return nil, apperrors.ErrSaleWindowClosed
		}
		variation = v
		draft.VariationID = &v.ID
		draft.Price = v.Price
	} else if req.Source != model.SourceComplimentary {
		// 只有贈票可以不綁票種（guest drop）
		return nil, apperrors.ErrInvalidInput
	}

	var staff *model.StaffAssignment
	switch req.Source {
	case model.SourceComplimentary:
		st, ok := event.FindStaff(actor.ID)
		if !ok {
			return nil, apperrors.ErrNotStaff
		}
		staff = st
		draft.PromoterID = &actor.ID
		draft.Price = 0
	case model.SourceBenefit, model.SourceGift:
		// 權益票與禮物票由活動人員替指定使用者發出
		if _, ok := event.FindStaff(actor.ID); !ok && !actor.HasRole(auth.RoleAdmin) {
			return nil, apperrors.ErrNotStaff
		}
		if draft.UserID == nil {
			return nil, apperrors.ErrInvalidInput
		}
	default:
		if draft.UserID == nil {
			draft.UserID = &actor.ID
		}
	}

	// Redis 閘門：已售完直接拒絕，不開 transaction
	acquired := false
	if variation != nil {
		switch gateErr := s.inventory.TryAcquire(ctx, variation.ID); {
		case gateErr == nil:
			acquired = true
		case errors.Is(gateErr, apperrors.ErrOversold):
			return nil, apperrors.NewLimitError(apperrors.ErrOversold, variation.Limit, variation.Limit)
		case errors.Is(gateErr, apperrors.ErrInventoryNotWarm):
		default:
			logger.WithComponent("cache").Warn("inventory gate unavailable", zap.String("variation_id", variation.ID), zap.Error(gateErr))
		}
	}

	for attempt := 0; attempt < maxHashAttempts; attempt++ {
		draft.ID = uuid.NewString()
		draft.Hash = token.NewHash()
		ticket, err = s.issueTx(ctx, draft, staff)
		if !errors.Is(err, apperrors.ErrHashCollision) {
			break
		}
	}

	if err != nil && acquired {
		if relErr := s.inventory.Release(context.WithoutCancel(ctx), variation.ID); relErr != nil {
			logger.WithComponent("cache").Error("failed to release inventory gate", zap.String("variation_id", variation.ID), zap.Error(relErr))
		}
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// issueTx runs the quota checks and the insert as one unit. Advisory locks
// are taken before the variation row lock.
func (s *TicketServiceImpl) issueTx(ctx context.Context, draft *model.Ticket, staff *model.StaffAssignment) (*model.Ticket, error) {
	var created *model.Ticket
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if draft.Source == model.SourceComplimentary {
			keys := []string{repository.PromoterLockKey(draft.EventID, *draft.PromoterID)}
			if draft.HolderDocument != nil {
				keys = append(keys, repository.DocumentLockKey(draft.EventID, *draft.HolderDocument))
			}
			if err := s.tx.Lock(ctx, keys...); err != nil {
				return err
			}
			if err := s.quota.CheckPromoterQuota(ctx, draft.EventID, *draft.PromoterID, staff.PromoterQuota); err != nil {
				return err
			}
			if draft.HolderDocument != nil {
				if err := s.quota.CheckDocumentLimit(ctx, draft.EventID, *draft.HolderDocument); err != nil {
					return err
				}
			}
		}

		var err error
		if draft.VariationID != nil {
			created, err = s.ledger.Reserve(ctx, draft)
		} else {
			created, err = s.tickets.Create(ctx, draft)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *TicketServiceImpl) ClaimOwnership(ctx context.Context, ticketID, name, document string) (ticket *model.Ticket, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.claim",
			Category: model.AuditCategoryTicket,
			TargetID: ticketID,
			Success:  err == nil,
			Reason:   reason(err),
		})
		s.logResult("ticket claim", err, zap.String("ticket_id", ticketID))
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	name, document = strings.TrimSpace(name), model.NormalizeDocument(document)
	if name == "" || document == "" {
		return nil, apperrors.ErrInvalidInput
	}

	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if current.Source == model.SourceComplimentary {
			if err := s.tx.Lock(ctx, repository.DocumentLockKey(current.EventID, document)); err != nil {
				return err
			}
		}

		locked, err := s.tickets.FindByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if locked.Status != model.TicketStatusActive {
			return statusErr(locked)
		}
		if locked.HolderDocument != nil {
			return apperrors.ErrAlreadyClaimed
		}
		if locked.UserID != nil && *locked.UserID != actor.ID && !actor.HasRole(auth.RoleAdmin) {
			return apperrors.ErrNotTicketOwner
		}

		// 贈票可能先發後綁，綁定時再檢查一次證件上限
		if locked.Source == model.SourceComplimentary {
			if err := s.quota.CheckDocumentLimit(ctx, locked.EventID, document); err != nil {
				return err
			}
		}

		ticket, err = s.tickets.Claim(ctx, ticketID, actor.ID, name, document, s.clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketServiceImpl) Validate(ctx context.Context, hash, eventID string) (*model.Ticket, error) {
	hash = token.NormalizeHash(hash)
	if hash == "" {
		return nil, apperrors.ErrInvalidToken
	}
	ticket, err := s.tickets.FindByHash(ctx, eventID, hash)
	if err != nil {
		return nil, err
	}
	if ticket.Status != model.TicketStatusActive {
		return nil, statusErr(ticket)
	}
	return ticket, nil
}

func (s *TicketServiceImpl) ValidateToken(ctx context.Context, rawToken, eventID string) (ticket *model.Ticket, err error) {
	defer func() {
		target := eventID
		if ticket != nil {
			target = ticket.ID
		}
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.validate",
			Category: model.AuditCategoryTicket,
			TargetID: target,
			Success:  err == nil,
			Reason:   reason(err),
			Details:  map[string]any{"event_id": eventID},
		})
	}()

	hash, err := token.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	return s.Validate(ctx, hash, eventID)
}

func (s *TicketServiceImpl) Redeem(ctx context.Context, ticketID string) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ticket.redeem", attribute.String("ticket_id", ticketID))
	defer func() { telemetry.EndSpan(span, err) }()

	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.redeem",
			Category: model.AuditCategoryTicket,
			TargetID: ticketID,
			Success:  err == nil,
			Reason:   reason(err),
		})
		s.logResult("ticket redeem", err, zap.String("ticket_id", ticketID))
	}()

	if _, err := auth.RequireActor(ctx); err != nil {
		return nil, err
	}

	// 條件式更新：兩台掃描器同時兌換只會有一台成功
	ticket, err = s.tickets.Redeem(ctx, ticketID, s.clock.Now().UTC())
	if err != nil {
		return nil, s.resolveTransition(ctx, ticketID, err)
	}
	return ticket, nil
}

func (s *TicketServiceImpl) Cancel(ctx context.Context, ticketID string) (ticket *model.Ticket, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.cancel",
			Category: model.AuditCategoryTicket,
			TargetID: ticketID,
			Success:  err == nil,
			Reason:   reason(err),
		})
		s.logResult("ticket cancel", err, zap.String("ticket_id", ticketID))
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, current) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err = s.tickets.Cancel(ctx, ticketID, s.clock.Now().UTC())
	if err != nil {
		return nil, s.resolveTransition(ctx, ticketID, err)
	}

	if ticket.VariationID != nil {
		if relErr := s.inventory.Release(context.WithoutCancel(ctx), *ticket.VariationID); relErr != nil {
			logger.WithComponent("cache").Warn("failed to release inventory gate", zap.String("variation_id", *ticket.VariationID), zap.Error(relErr))
		}
	}
	return ticket, nil
}

// canManage: admins, the owner, and the promoter who issued the ticket.
func canManage(actor auth.Actor, t *model.Ticket) bool {
	if actor.HasRole(auth.RoleAdmin) {
		return true
	}
	if t.UserID != nil && *t.UserID == actor.ID {
		return true
	}
	return t.PromoterID != nil && *t.PromoterID == actor.ID
}

func (s *TicketServiceImpl) InitiateTransfer(ctx context.Context, ticketID string, recipient *string) (ticket *model.Ticket, err error) {
	defer func() {
		details := map[string]any{}
		if recipient != nil {
			details["recipient_user_id"] = *recipient
		}
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.transfer.request",
			Category: model.AuditCategoryTicket,
			TargetID: ticketID,
			Success:  err == nil,
			Reason:   reason(err),
			Details:  details,
		})
		s.logResult("ticket transfer request", err, zap.String("ticket_id", ticketID))
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	recipient = trimmed(recipient)
	if recipient != nil && *recipient == actor.ID {
		return nil, apperrors.ErrInvalidInput
	}

	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.UserID == nil || *current.UserID != actor.ID {
		return nil, apperrors.ErrNotTicketOwner
	}

	ticket, err = s.tickets.RequestTransfer(ctx, ticketID, recipient, s.clock.Now().UTC())
	if err != nil {
		return nil, s.resolveTransition(ctx, ticketID, err)
	}
	return ticket, nil
}

func (s *TicketServiceImpl) AcceptTransfer(ctx context.Context, ticketID string) (ticket *model.Ticket, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.transfer.accept",
			Category: model.AuditCategoryTicket,
			TargetID: ticketID,
			Success:  err == nil,
			Reason:   reason(err),
		})
		s.logResult("ticket transfer accept", err, zap.String("ticket_id", ticketID))
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.TicketStatusTransferPending {
		return nil, apperrors.ErrInvalidTransition
	}
	if current.TransferTo != nil && *current.TransferTo != actor.ID {
		return nil, apperrors.ErrForbidden
	}
	if current.UserID != nil && *current.UserID == actor.ID {
		return nil, apperrors.ErrInvalidTransition
	}

	ticket, err = s.tickets.CompleteTransfer(ctx, ticketID, actor.ID, s.clock.Now().UTC())
	if errors.Is(err, apperrors.ErrInvalidTransition) {
		// 期間被取消或已被他人接受
		current, findErr := s.tickets.FindByID(ctx, ticketID)
		if findErr != nil {
			return nil, findErr
		}
		if current.Status == model.TicketStatusCancelled {
			return nil, apperrors.ErrCancelled
		}
		return nil, apperrors.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketServiceImpl) RevertExpiredTransfers(ctx context.Context, ttl time.Duration) (int, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-ttl)

	expired, err := s.tickets.ListTransfersRequestedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, t := range expired {
		_, err := s.tickets.RevertTransfer(ctx, t.ID, cutoff, now)
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			// 已被接受或取消
			continue
		}
		if err != nil {
			return reverted, err
		}
		reverted++
		s.audit.Record(ctx, AuditEntry{
			Action:   "ticket.transfer.expire",
			Category: model.AuditCategoryTicket,
			TargetID: t.ID,
			Success:  true,
			Details:  map[string]any{"requested_at": t.TransferRequestedAt, "ttl": ttl.String()},
		})
	}
	return reverted, nil
}

func (s *TicketServiceImpl) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if canManage(actor, ticket) {
		return ticket, nil
	}
	// 門口人員只能查自己被指派的活動；其他人一律當作不存在
	if actor.HasRole(auth.RoleDoor) {
		event, err := s.events.FindByID(ctx, ticket.EventID)
		if err != nil {
			return nil, err
		}
		if staff, ok := event.FindStaff(actor.ID); ok && staff.Role == string(auth.RoleDoor) {
			return ticket, nil
		}
	}
	return nil, apperrors.ErrTicketNotFound
}

func (s *TicketServiceImpl) ListTickets(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var issuer string
	if !actor.HasRole(auth.RoleAdmin) {
		staff, ok := event.FindStaff(actor.ID)
		if !ok {
			return nil, apperrors.ErrNotStaff
		}
		if staff.Role == string(auth.RolePromoter) {
			issuer = actor.ID
		}
	}

	tickets, err := s.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if issuer == "" {
		return tickets, nil
	}
	own := make([]*model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.PromoterID != nil && *t.PromoterID == issuer {
			own = append(own, t)
		}
	}
	return own, nil
}

// normalizedDocument normalizes an optional holder document; blank becomes nil.
func normalizedDocument(s *string) *string {
	if s == nil {
		return nil
	}
	v := model.NormalizeDocument(*s)
	if v == "" {
		return nil
	}
	return &v
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
