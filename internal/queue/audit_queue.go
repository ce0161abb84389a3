package queue

import (
	"context"

	"vanta-access/internal/model"
)

type Delivery struct {
	Data *model.AuditRecord
	Ack  func()
	Nack func(requeue bool)
}

type AuditQueue interface {
	// 發送稽核紀錄到隊列
	Publish(ctx context.Context, record *model.AuditRecord) error
	// 訂閱稽核紀錄
	Subscribe(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

type AuditQueueImpl struct {
	// 使用 Go channel 來模擬 MQ 隊列
	ch chan *model.AuditRecord
}

func NewAuditQueue(bufferSize int) AuditQueue {
	return &AuditQueueImpl{
		ch: make(chan *model.AuditRecord, bufferSize),
	}
}

// Publish blocks only until ctx is done; a full buffer surfaces as the ctx error.
func (q *AuditQueueImpl) Publish(ctx context.Context, record *model.AuditRecord) error {
	select {
	case q.ch <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *AuditQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case record := <-q.ch:
				// 將原始紀錄包裝成 Delivery 格式給 Worker
				d := Delivery{
					Data: record,
					Ack:  func() { /* 記憶體版不用做特別動作 */ },
					Nack: func(requeue bool) {
						if requeue {
							select {
							case q.ch <- record: // 簡單模擬重回隊列
							default:
							}
						}
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (q *AuditQueueImpl) Close() error {
	return nil
}
