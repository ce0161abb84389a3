package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apperrors "vanta-access/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxManager runs a unit of work in one transaction. Repository calls made
// with the ctx handed to fn join that transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Lock serializes writers on the named resources until the surrounding
	// transaction ends. Keys are taken in sorted order.
	Lock(ctx context.Context, keys ...string) error
}

type txKey struct{}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgTxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &PgTxManager{pool: pool}
}

func (m *PgTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperrors.Transient(err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		// 使用獨立 context，避免 request 取消後 rollback 失敗
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Transient(err)
	}
	return nil
}

func (m *PgTxManager) Lock(ctx context.Context, keys ...string) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("lock %v: %w", keys, errNoTx)
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return apperrors.Transient(err)
		}
	}
	return nil
}

var errNoTx = errors.New("advisory lock requires a transaction")

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// conn returns the active transaction if there is one, otherwise the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// wrapErr maps pgx.ErrNoRows to the given sentinel and marks everything
// else as a retryable store failure.
func wrapErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Transient(err)
}

// Lock keys shared by the Postgres and in-memory stores.
func PromoterLockKey(eventID, promoterID string) string {
	return "promoter:" + eventID + ":" + promoterID
}

func DocumentLockKey(eventID, document string) string {
	return "document:" + eventID + ":" + document
}

func NominationLockKey(eventID, ruleID, staff string) string {
	return "nomination:" + eventID + ":" + ruleID + ":" + staff
}
