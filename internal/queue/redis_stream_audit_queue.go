package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vanta-access/internal/model"
	"vanta-access/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StreamKey          = "audit:stream"
	DeadLetterKey      = "audit:dead"
	ConsumerGroupName  = "audit-writers"
	ConsumerNamePrefix = "writer"

	readBatch = 10
)

// RedisStreamAuditQueueConfig 可注入的逾時與重試設定；零值欄位使用預設。
type RedisStreamAuditQueueConfig struct {
	StreamKey          string
	DeadLetterKey      string
	ClaimMinIdleTime   time.Duration // PEL 中超過此時間才被 XAUTOCLAIM 領取
	MaxRetryCount      int           // 超過此次數移到 dead letter stream
	ReadGroupBlockTime time.Duration
}

func (c RedisStreamAuditQueueConfig) withDefaults() RedisStreamAuditQueueConfig {
	if c.StreamKey == "" {
		c.StreamKey = StreamKey
	}
	if c.DeadLetterKey == "" {
		c.DeadLetterKey = DeadLetterKey
	}
	if c.ClaimMinIdleTime <= 0 {
		c.ClaimMinIdleTime = 5 * time.Second
	}
	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = 5
	}
	if c.ReadGroupBlockTime <= 0 {
		c.ReadGroupBlockTime = 2 * time.Second
	}
	return c
}

// RedisStreamAuditQueueImpl 稽核紀錄不可遺失：無法寫入的紀錄一律搬到
// dead letter stream 再 XACK，保留原始內容與原因供人工補寫。
type RedisStreamAuditQueueImpl struct {
	client   *redis.Client
	consumer string
	cfg      RedisStreamAuditQueueConfig
}

// NewRedisStreamAuditQueue 建立 Redis Stream 版 AuditQueue。config 可為 nil。
func NewRedisStreamAuditQueue(ctx context.Context, client *redis.Client, consumerID string, config *RedisStreamAuditQueueConfig) (AuditQueue, error) {
	if consumerID == "" {
		consumerID = uuid.NewString()
	}
	var cfg RedisStreamAuditQueueConfig
	if config != nil {
		cfg = *config
	}
	q := &RedisStreamAuditQueueImpl{
		client:   client,
		consumer: fmt.Sprintf("%s:%s", ConsumerNamePrefix, consumerID),
		cfg:      cfg.withDefaults(),
	}

	err := client.XGroupCreateMkStream(ctx, q.cfg.StreamKey, ConsumerGroupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("ensure consumer group: %w", err)
	}
	return q, nil
}

// Publish 除了完整 JSON 也寫入 action/actor/target，方便直接 XRANGE 查看
func (q *RedisStreamAuditQueueImpl) Publish(ctx context.Context, record *model.AuditRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.StreamKey,
		Values: map[string]any{
			"record": string(payload),
			"action": record.Action,
			"actor":  record.Actor,
			"target": record.TargetID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd audit record %s: %w", record.ID, err)
	}
	return nil
}

func (q *RedisStreamAuditQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		reclaimed := make(chan struct{})
		go func() {
			defer close(reclaimed)
			q.reclaimLoop(ctx, out)
		}()
		for ctx.Err() == nil {
			q.readNew(ctx, out)
		}
		<-reclaimed
	}()
	return out, nil
}

func (q *RedisStreamAuditQueueImpl) Close() error {
	return nil
}

// readNew 只讀從未投遞過的訊息(">")；pending 的交給 reclaimLoop
func (q *RedisStreamAuditQueueImpl) readNew(ctx context.Context, out chan<- Delivery) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroupName,
		Consumer: q.consumer,
		Streams:  []string{q.cfg.StreamKey, ">"},
		Count:    readBatch,
		Block:    q.cfg.ReadGroupBlockTime,
	}).Result()
	if errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.WithComponent("mq").Error("XReadGroup failed", zap.Error(err))
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return
	}
	for _, stream := range streams {
		if stream.Stream == q.cfg.StreamKey {
			q.deliver(ctx, out, stream.Messages, false)
		}
	}
}

// reclaimLoop 定時用 XAUTOCLAIM 領回閒置過久的訊息，形成延遲重試
func (q *RedisStreamAuditQueueImpl) reclaimLoop(ctx context.Context, out chan<- Delivery) {
	ticker := time.NewTicker(q.cfg.ClaimMinIdleTime)
	defer ticker.Stop()
	start := "0-0"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		claimed, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.cfg.StreamKey,
			Group:    ConsumerGroupName,
			Consumer: q.consumer,
			MinIdle:  q.cfg.ClaimMinIdleTime,
			Count:    readBatch,
			Start:    start,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() == nil {
				logger.WithComponent("mq").Error("XAutoClaim failed", zap.Error(err))
			}
			continue
		}
		start = next
		if start == "" {
			start = "0-0"
		}
		q.deliver(ctx, out, claimed, true)
	}
}

func (q *RedisStreamAuditQueueImpl) deliver(ctx context.Context, out chan<- Delivery, msgs []redis.XMessage, reclaimed bool) {
	for _, msg := range msgs {
		if reclaimed && q.exhausted(ctx, msg) {
			continue
		}
		record, err := decodeRecord(msg)
		if err != nil {
			q.deadLetter(ctx, msg, err.Error())
			continue
		}
		select {
		case out <- q.delivery(ctx, msg, record):
		case <-ctx.Done():
			return
		}
	}
}

// exhausted 重試次數用完的訊息搬到 dead letter
func (q *RedisStreamAuditQueueImpl) exhausted(ctx context.Context, msg redis.XMessage) bool {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.cfg.StreamKey,
		Group:  ConsumerGroupName,
		Start:  msg.ID,
		End:    msg.ID,
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.WithComponent("mq").Warn("XPending failed", zap.String("message_id", msg.ID), zap.Error(err))
		return false
	}
	if len(pending) == 0 || int(pending[0].RetryCount) < q.cfg.MaxRetryCount {
		return false
	}
	q.deadLetter(ctx, msg, fmt.Sprintf("retries exhausted (%d)", pending[0].RetryCount))
	return true
}

func decodeRecord(msg redis.XMessage) (*model.AuditRecord, error) {
	payload, ok := msg.Values["record"].(string)
	if !ok {
		return nil, errors.New("missing record field")
	}
	var record model.AuditRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

func (q *RedisStreamAuditQueueImpl) delivery(ctx context.Context, msg redis.XMessage, record *model.AuditRecord) Delivery {
	return Delivery{
		Data: record,
		Ack:  func() { q.ack(ctx, msg.ID) },
		Nack: func(requeue bool) {
			if requeue {
				// 留在 PEL，ClaimMinIdleTime 後由 reclaimLoop 重新投遞
				logger.WithComponent("mq").Info("audit record will be retried",
					zap.String("message_id", msg.ID), zap.String("record_id", record.ID))
				return
			}
			q.deadLetter(ctx, msg, "rejected by writer")
		},
	}
}

// deadLetter 先寫入 dead letter 再 XACK；寫入失敗時不 ack，讓訊息留在 PEL
func (q *RedisStreamAuditQueueImpl) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	log := logger.WithComponent("mq").With(zap.String("message_id", msg.ID), zap.String("reason", reason))

	values := map[string]any{"origin_id": msg.ID, "reason": reason}
	for k, v := range msg.Values {
		values[k] = v
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.cfg.DeadLetterKey, Values: values}).Err(); err != nil {
		log.Error("failed to dead-letter audit record", zap.Error(err))
		return
	}
	log.Error("audit record moved to dead letter stream", zap.String("stream", q.cfg.DeadLetterKey))
	q.ack(ctx, msg.ID)
}

func (q *RedisStreamAuditQueueImpl) ack(ctx context.Context, id string) {
	if err := q.client.XAck(ctx, q.cfg.StreamKey, ConsumerGroupName, id).Err(); err != nil {
		logger.WithComponent("mq").Error("XAck failed", zap.String("message_id", id), zap.Error(err))
	}
}
