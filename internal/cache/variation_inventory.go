package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	apperrors "vanta-access/pkg/app_errors"

	"github.com/redis/go-redis/v9"
)

type VariationStock struct {
	Remaining int
	Limit     int
}

// VariationInventory is a sold-out gate in front of the database. It lets
// the API reject requests for exhausted variations without opening a
// transaction. The count inside the issuance transaction stays
// authoritative; reconciliation overwrites drift.
type VariationInventory interface {
	// 預熱：把剩餘數量寫入 Redis
	WarmUp(ctx context.Context, variationID string, limit, sold int) error
	// 獲取：剩餘數量與上限
	GetStock(ctx context.Context, variationID string) (VariationStock, error)
	// 佔用一張 (Lua 腳本確保原子性)
	TryAcquire(ctx context.Context, variationID string) error
	// 歸還一張，不超過上限 (Lua 腳本確保原子性)
	Release(ctx context.Context, variationID string) error
}

type RedisVariationInventoryImpl struct {
	client *redis.Client
}

func NewRedisVariationInventory(client *redis.Client) VariationInventory {
	return &RedisVariationInventoryImpl{
		client: client,
	}
}

func stockKey(variationID string) string {
	return fmt.Sprintf("variation:%s:stock", variationID)
}

func (m *RedisVariationInventoryImpl) WarmUp(ctx context.Context, variationID string, limit, sold int) error {
	remaining := limit - sold
	if remaining < 0 {
		remaining = 0
	}
	return m.client.HSet(ctx, stockKey(variationID), map[string]interface{}{
		"remaining": remaining,
		"limit":     limit,
	}).Err()
}

func (m *RedisVariationInventoryImpl) GetStock(ctx context.Context, variationID string) (VariationStock, error) {
	result, err := m.client.HGetAll(ctx, stockKey(variationID)).Result()
	if err != nil {
		return VariationStock{}, apperrors.Transient(err)
	}

	// 檢查 key 是否存在
	if len(result) == 0 {
		return VariationStock{}, apperrors.ErrInventoryNotWarm
	}

	remaining, err := strconv.Atoi(result["remaining"])
	if err != nil {
		return VariationStock{}, fmt.Errorf("invalid remaining: %v", err)
	}
	limit, err := strconv.Atoi(result["limit"])
	if err != nil {
		return VariationStock{}, fmt.Errorf("invalid limit: %v", err)
	}
	return VariationStock{Remaining: remaining, Limit: limit}, nil
}

var acquireScript = redis.NewScript(`
	local key = KEYS[1]

	-- 1. 檢查是否已預熱
	local remaining = redis.call('HGET', key, 'remaining')
	if not remaining then
		return -3
	end

	-- 2. 檢查剩餘數量
	if tonumber(remaining) <= 0 then
		return -1
	end

	-- 3. 扣減
	return redis.call('HINCRBY', key, 'remaining', -1)
`)

func (m *RedisVariationInventoryImpl) TryAcquire(ctx context.Context, variationID string) error {
	code, err := acquireScript.Run(ctx, m.client, []string{stockKey(variationID)}).Int64()
	if err != nil {
		return apperrors.Transient(err)
	}

	switch {
	case code >= 0:
		return nil
	case code == -1:
		return apperrors.ErrOversold
	case code == -3:
		return apperrors.ErrInventoryNotWarm
	default:
		return errors.New("unexpected result")
	}
}

var releaseScript = redis.NewScript(`
	local key = KEYS[1]
	local values = redis.call('HMGET', key, 'remaining', 'limit')
	if not values[1] or not values[2] then
		return 0
	end
	if tonumber(values[1]) >= tonumber(values[2]) then
		return tonumber(values[1])
	end
	return redis.call('HINCRBY', key, 'remaining', 1)
`)

func (m *RedisVariationInventoryImpl) Release(ctx context.Context, variationID string) error {
	if err := releaseScript.Run(ctx, m.client, []string{stockKey(variationID)}).Err(); err != nil {
		return apperrors.Transient(err)
	}
	return nil
}

type nopInventory struct{}

// NewNopInventory is used when no Redis is configured. Every call reports
// the gate as cold so callers fall through to the database.
func NewNopInventory() VariationInventory {
	return nopInventory{}
}

func (nopInventory) WarmUp(ctx context.Context, variationID string, limit, sold int) error {
	return nil
}

func (nopInventory) GetStock(ctx context.Context, variationID string) (VariationStock, error) {
	return VariationStock{}, apperrors.ErrInventoryNotWarm
}

func (nopInventory) TryAcquire(ctx context.Context, variationID string) error {
	return apperrors.ErrInventoryNotWarm
}

func (nopInventory) Release(ctx context.Context, variationID string) error {
	return nil
}
