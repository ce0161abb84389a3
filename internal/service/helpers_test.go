package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/cache"
	"vanta-access/internal/fixture"
	"vanta-access/internal/repository/memory"
	"vanta-access/internal/service"

	"github.com/stretchr/testify/require"
)

const (
	eventID     = "E1"
	vipFemale   = "V-VIP-F"
	pistaMale   = "V-PISTA-M"
	promoterID  = "P1"
	doorStaffID = "D1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedAudit struct {
	actor string
	entry service.AuditEntry
}

// recordingAudit captures entries in memory and resolves the actor the same
// way the production recorder does.
type recordingAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (r *recordingAudit) Record(ctx context.Context, entry service.AuditEntry) {
	actor := "anonymous"
	if a, ok := auth.ActorFromContext(ctx); ok {
		actor = a.Identity()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedAudit{actor: actor, entry: entry})
}

func (r *recordingAudit) Failures() int64 { return 0 }

func (r *recordingAudit) byAction(action string) []recordedAudit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedAudit, 0)
	for _, e := range r.entries {
		if e.entry.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	store     *memory.Store
	clock     *testClock
	audit     *recordingAudit
	inventory service.InventoryService
	tickets   service.TicketService
	guests    service.GuestService
	events    service.EventService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	events, err := fixture.Load("../fixture/testdata/events.yaml")
	require.NoError(t, err)
	require.NoError(t, fixture.Seed(context.Background(), store.Events(), events))

	clk := &testClock{now: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)}
	audit := &recordingAudit{}
	gate := cache.NewNopInventory()

	inventory := service.NewInventoryService(store.TxManager(), store.Events(), store.Tickets(), gate, audit)
	quota := service.NewQuotaService(store.Tickets())

	return &harness{
		store:     store,
		clock:     clk,
		audit:     audit,
		inventory: inventory,
		tickets:   service.NewTicketService(store.TxManager(), store.Events(), store.Tickets(), inventory, quota, gate, audit, clk),
		guests:    service.NewGuestService(store.TxManager(), store.Events(), store.Guests(), audit, clk),
		events:    service.NewEventService(store.Events(), clk),
	}
}

func as(id string, role auth.Role) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: id, Role: role})
}

func asPromoter() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: promoterID, Email: "p1@vanta.club", Role: auth.RolePromoter})
}

func asDoor() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ID: doorStaffID, Email: "door@vanta.club", Role: auth.RoleDoor})
}

func strPtr(s string) *string { return &s }
