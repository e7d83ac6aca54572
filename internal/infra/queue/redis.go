package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// RedisUpdateQueue реализует очередь задач на базе Redis lists.
// Полученная задача переносится в список обработки и удаляется из него только после подтверждения.
type RedisUpdateQueue struct {
	client     *redis.Client
	key        string
	processing string
	wait       time.Duration
}

var _ domain.UpdateQueue = (*RedisUpdateQueue)(nil)

// NewRedisUpdateQueue создаёт очередь по указанному ключу.
func NewRedisUpdateQueue(client *redis.Client, key string) *RedisUpdateQueue {
	return &RedisUpdateQueue{client: client, key: key, processing: key + ":processing", wait: time.Second}
}

// Enqueue публикует задачу в очередь.
func (q *RedisUpdateQueue) Enqueue(ctx context.Context, job domain.UpdateJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе переносит задачу из очереди в список обработки.
func (q *RedisUpdateQueue) Receive(ctx context.Context) (domain.UpdateJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.UpdateJob{}, nil, err
		}

		start := time.Now()
		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.wait).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.UpdateJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			metrics.ObserveNetworkRequest("redis", "blmove", q.key, start, err)
			return domain.UpdateJob{}, nil, err
		}
		metrics.ObserveNetworkRequest("redis", "blmove", q.key, start, nil)

		var job domain.UpdateJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.client.LRem(context.Background(), q.processing, 1, raw).Err()
			return domain.UpdateJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFor(raw, job), nil
	}
}

// Recover возвращает в очередь задачи, оставшиеся в списке обработки после аварийной остановки.
// Вызывается до запуска потребителей; задачи других живых воркеров будут обработаны повторно.
func (q *RedisUpdateQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		start := time.Now()
		err := q.client.LMove(ctx, q.processing, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		metrics.ObserveNetworkRequest("redis", "lmove", q.processing, start, err)
		if err != nil {
			return moved, fmt.Errorf("recover jobs: %w", err)
		}
		moved++
	}
}

func (q *RedisUpdateQueue) ackFor(raw string, job domain.UpdateJob) domain.AckFunc {
	return func(success bool) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		if success {
			err := q.client.LRem(ctx, q.processing, 1, raw).Err()
			metrics.ObserveNetworkRequest("redis", "lrem", q.processing, start, err)
			return err
		}
		job.Attempt++
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, q.key, payload)
			pipe.LRem(ctx, q.processing, 1, raw)
			return nil
		})
		metrics.ObserveNetworkRequest("redis", "requeue", q.key, start, err)
		return err
	}
}
