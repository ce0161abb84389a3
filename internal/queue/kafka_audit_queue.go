package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"vanta-access/internal/model"
	"vanta-access/pkg/logger"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

type KafkaAuditQueueConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	ClientID      string
	MaxRetryCount int
}

// KafkaAuditQueueImpl publishes audit records to a Kafka topic. A Nack with
// requeue re-produces the record with an incremented retry header, since
// Kafka has no per-message redelivery.
type KafkaAuditQueueImpl struct {
	cfg      KafkaAuditQueueConfig
	producer *kgo.Client

	mu       sync.Mutex
	consumer *kgo.Client
}

func NewKafkaAuditQueue(ctx context.Context, cfg KafkaAuditQueueConfig) (AuditQueue, error) {
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 5
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "vanta-access"
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := producer.Ping(ctx); err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &KafkaAuditQueueImpl{cfg: cfg, producer: producer}, nil
}

func (q *KafkaAuditQueueImpl) Publish(ctx context.Context, record *model.AuditRecord) error {
	return q.produce(ctx, record, 0)
}

func (q *KafkaAuditQueueImpl) produce(ctx context.Context, record *model.AuditRecord, retries int) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	r := &kgo.Record{
		Key:   []byte(record.TargetID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: retryHeader, Value: []byte(strconv.Itoa(retries))},
		},
	}
	if err := q.producer.ProduceSync(ctx, r).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

func (q *KafkaAuditQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(q.cfg.Brokers...),
		kgo.ClientID(q.cfg.ClientID),
		kgo.ConsumerGroup(q.cfg.GroupID),
		kgo.ConsumeTopics(q.cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	q.mu.Lock()
	q.consumer = consumer
	q.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		q.pollLoop(ctx, consumer, out)
	}()
	return out, nil
}

func (q *KafkaAuditQueueImpl) pollLoop(ctx context.Context, consumer *kgo.Client, out chan<- Delivery) {
	log := logger.WithComponent("mq")
	for {
		if ctx.Err() != nil {
			return
		}

		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return
				}
				log.Error("kafka fetch failed",
					zap.String("topic", fe.Topic), zap.Int32("partition", fe.Partition), zap.Error(fe.Err))
			}
			continue
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			r := iter.Next()
			d := q.newDelivery(ctx, consumer, r)
			if d == nil {
				continue
			}
			select {
			case out <- *d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func retryCount(r *kgo.Record) int {
	for _, h := range r.Headers {
		if h.Key == retryHeader {
			n, _ := strconv.Atoi(string(h.Value))
			return n
		}
	}
	return 0
}

func (q *KafkaAuditQueueImpl) newDelivery(ctx context.Context, consumer *kgo.Client, r *kgo.Record) *Delivery {
	log := logger.WithComponent("mq")
	commit := func() {
		if err := consumer.CommitRecords(ctx, r); err != nil {
			log.Error("kafka commit failed", zap.Int64("offset", r.Offset), zap.Error(err))
		}
	}

	var record model.AuditRecord
	if err := json.Unmarshal(r.Value, &record); err != nil {
		log.Warn("unmarshal audit record failed", zap.Int64("offset", r.Offset), zap.Error(err))
		commit()
		return nil
	}

	retries := retryCount(r)
	return &Delivery{
		Data: &record,
		Ack:  commit,
		Nack: func(requeue bool) {
			if requeue && retries+1 < q.cfg.MaxRetryCount {
				if err := q.produce(ctx, &record, retries+1); err != nil {
					// 不 commit，重啟後從此 offset 重新消費
					log.Error("kafka requeue failed", zap.String("record_id", record.ID), zap.Error(err))
					return
				}
			} else if requeue {
				log.Error("discard poison audit message", zap.String("record_id", record.ID), zap.Int("retries", retries))
			}
			commit()
		},
	}
}

func (q *KafkaAuditQueueImpl) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumer != nil {
		q.consumer.Close()
		q.consumer = nil
	}
	q.producer.Close()
	return nil
}
