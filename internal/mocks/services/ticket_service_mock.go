package services

import (
	"context"
	"time"

	"vanta-access/internal/model"

	"github.com/stretchr/testify/mock"
)

type TicketServiceMock struct {
	mock.Mock
}

func NewTicketServiceMock() *TicketServiceMock {
	return &TicketServiceMock{}
}

func ticketResult(args mock.Arguments) (*model.Ticket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *TicketServiceMock) Issue(ctx context.Context, req model.IssueTicketRequest) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, req))
}

func (m *TicketServiceMock) ClaimOwnership(ctx context.Context, ticketID, name, document string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID, name, document))
}

func (m *TicketServiceMock) Validate(ctx context.Context, hash, eventID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, hash, eventID))
}

func (m *TicketServiceMock) ValidateToken(ctx context.Context, rawToken, eventID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, rawToken, eventID))
}

func (m *TicketServiceMock) Redeem(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *TicketServiceMock) Cancel(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *TicketServiceMock) InitiateTransfer(ctx context.Context, ticketID string, recipient *string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID, recipient))
}

func (m *TicketServiceMock) AcceptTransfer(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *TicketServiceMock) RevertExpiredTransfers(ctx context.Context, ttl time.Duration) (int, error) {
	args := m.Called(ctx, ttl)
	return args.Int(0), args.Error(1)
}

func (m *TicketServiceMock) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *TicketServiceMock) ListTickets(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Ticket), args.Error(1)
}
