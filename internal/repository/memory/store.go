// Package memory is an in-process implementation of the repository ports.
// It backs the dev driver and the concurrency tests. Transactions are
// serialized on one mutex and rolled back through an undo journal.
package memory

import (
	"context"
	"sync"

	"vanta-access/internal/model"
	"vanta-access/internal/repository"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	events  map[string]*model.Event
	tickets map[string]*model.Ticket
	guests  map[string]*model.GuestEntry
	audit   []*model.AuditRecord
}

func NewStore() *Store {
	return &Store{
		events:  make(map[string]*model.Event),
		tickets: make(map[string]*model.Ticket),
		guests:  make(map[string]*model.GuestEntry),
	}
}

func (s *Store) TxManager() repository.TxManager { return &txManager{s: s} }
func (s *Store) Events() repository.EventRepository { return &eventRepo{s: s} }
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s: s} }
func (s *Store) Guests() repository.GuestRepository { return &guestRepo{s: s} }
func (s *Store) AuditLog() repository.AuditRepository { return &auditRepo{s: s} }

type txKey struct{}

type txState struct {
	undo []func()
}

func stateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// journal registers an undo step when the write happens inside a transaction.
// Must be called with s.mu held.
func journal(ctx context.Context, undo func()) {
	if st := stateFrom(ctx); st != nil {
		st.undo = append(st.undo, undo)
	}
}

type txManager struct {
	s *Store
}

func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		m.s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

// Lock is a no-op: WithTx already serializes every transaction.
func (m *txManager) Lock(ctx context.Context, keys ...string) error {
	return nil
}

func cloneTicket(t *model.Ticket) *model.Ticket {
	c := *t
	return &c
}

func cloneGuest(g *model.GuestEntry) *model.GuestEntry {
	c := *g
	return &c
}
