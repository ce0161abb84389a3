package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/cache"
	"vanta-access/internal/fixture"
	"vanta-access/internal/repository"
	"vanta-access/internal/service"
	"vanta-access/internal/testutil"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresTicketService 走真正的 FOR UPDATE 與 pg_advisory_xact_lock
func newPostgresTicketService(t *testing.T, pool *pgxpool.Pool) service.TicketService {
	t.Helper()

	events, err := fixture.Load("../fixture/testdata/events.yaml")
	require.NoError(t, err)
	eventRepo := repository.NewEventRepository(pool)
	require.NoError(t, fixture.Seed(context.Background(), eventRepo, events))

	txm := repository.NewTxManager(pool)
	tickets := repository.NewTicketRepository(pool)
	gate := cache.NewNopInventory()
	audit := &recordingAudit{}
	clk := &testClock{now: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)}

	inventory := service.NewInventoryService(txm, eventRepo, tickets, gate, audit)
	quota := service.NewQuotaService(tickets)
	return service.NewTicketService(txm, eventRepo, tickets, inventory, quota, gate, audit, clk)
}

func TestPostgresIssue_ConcurrentNoOversell(t *testing.T) {
	pool := testutil.SetupDB(t)
	tickets := newPostgresTicketService(t, pool)

	const buyers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		oversold  int
		other     []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tickets.Issue(as(fmt.Sprintf("U%d", i), auth.RoleGuest), purchase(vipFemale))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrOversold):
				oversold++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 5, oversold)

	var sold int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM tickets WHERE variation_id = $1 AND status <> 'cancelled'`, vipFemale).Scan(&sold)
	require.NoError(t, err)
	assert.Equal(t, 20, sold)
}

func TestPostgresIssue_ConcurrentDocumentCap(t *testing.T) {
	pool := testutil.SetupDB(t)
	tickets := newPostgresTicketService(t, pool)
	ctx := asPromoter()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
		other    []error
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tickets.Issue(ctx, complimentary("12345678900"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrDocumentLimitExceeded):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, rejected)
}
