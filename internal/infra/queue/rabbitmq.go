package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// RabbitUpdateQueue реализует очередь задач фанаута поверх AMQP.
type RabbitUpdateQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.UpdateQueue = (*RabbitUpdateQueue)(nil)

// NewRabbitUpdateQueue подключается к брокеру и объявляет durable очередь.
func NewRabbitUpdateQueue(amqpURL, queue string, prefetch int) (*RabbitUpdateQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return &RabbitUpdateQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitUpdateQueue) Enqueue(ctx context.Context, job domain.UpdateJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RabbitUpdateQueue) Receive(ctx context.Context) (domain.UpdateJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.UpdateJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.UpdateJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.UpdateJob{}, nil, ErrQueueClosed
		}
		var job domain.UpdateJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.UpdateJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFor(d, job), nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitUpdateQueue) Close() error {
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return q.conn.Close()
}

func (q *RabbitUpdateQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// ackFor при неуспехе публикует задачу заново с увеличенным номером попытки,
// а исходное сообщение подтверждает.
func (q *RabbitUpdateQueue) ackFor(d amqp.Delivery, job domain.UpdateJob) domain.AckFunc {
	return func(success bool) error {
		if success {
			return d.Ack(false)
		}
		job.Attempt++
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.Enqueue(ctx, job); err != nil {
			return d.Nack(false, true)
		}
		return d.Ack(false)
	}
}
