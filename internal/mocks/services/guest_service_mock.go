package services

import (
	"context"

	"vanta-access/internal/model"

	"github.com/stretchr/testify/mock"
)

type GuestServiceMock struct {
	mock.Mock
}

func NewGuestServiceMock() *GuestServiceMock {
	return &GuestServiceMock{}
}

func (m *GuestServiceMock) AddGuests(ctx context.Context, eventID string, req model.AddGuestsRequest) ([]*model.GuestEntry, error) {
	args := m.Called(ctx, eventID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.GuestEntry), args.Error(1)
}

func (m *GuestServiceMock) CheckIn(ctx context.Context, entryID string) (*model.GuestEntry, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GuestEntry), args.Error(1)
}

func (m *GuestServiceMock) TogglePriority(ctx context.Context, entryID string, notify bool) (*model.GuestEntry, error) {
	args := m.Called(ctx, entryID, notify)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GuestEntry), args.Error(1)
}

func (m *GuestServiceMock) ListGuests(ctx context.Context, eventID, query string) ([]model.GuestView, error) {
	args := m.Called(ctx, eventID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GuestView), args.Error(1)
}
