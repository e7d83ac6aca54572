package queue

import (
	"context"

	"insiderr-api/internal/domain"
)

// ErrQueueClosed возвращается при работе с закрытой очередью.
var ErrQueueClosed = domain.ErrQueueClosed

// MemoryUpdateQueue реализует ограниченную очередь задач внутри процесса.
type MemoryUpdateQueue struct {
	jobs chan domain.UpdateJob
	done chan struct{}
}

var _ domain.UpdateQueue = (*MemoryUpdateQueue)(nil)

// NewMemoryUpdateQueue создаёт очередь ёмкостью size.
func NewMemoryUpdateQueue(size int) *MemoryUpdateQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryUpdateQueue{jobs: make(chan domain.UpdateJob, size), done: make(chan struct{})}
}

// Enqueue блокируется, пока в очереди нет места.
func (q *MemoryUpdateQueue) Enqueue(ctx context.Context, job domain.UpdateJob) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive блокирующе читает задачу из очереди.
func (q *MemoryUpdateQueue) Receive(ctx context.Context) (domain.UpdateJob, domain.AckFunc, error) {
	select {
	case job := <-q.jobs:
		return job, q.ackFor(job), nil
	case <-q.done:
		return domain.UpdateJob{}, nil, ErrQueueClosed
	case <-ctx.Done():
		return domain.UpdateJob{}, nil, ctx.Err()
	}
}

// Len возвращает количество ожидающих задач.
func (q *MemoryUpdateQueue) Len() int {
	return len(q.jobs)
}

// Close останавливает очередь; ожидающие задачи теряются.
func (q *MemoryUpdateQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// ackFor возвращает подтверждение, которое никогда не блокирует потребителя.
// При заполненном буфере повтор дожидается места в отдельной горутине.
func (q *MemoryUpdateQueue) ackFor(job domain.UpdateJob) domain.AckFunc {
	return func(success bool) error {
		if success {
			return nil
		}
		job.Attempt++
		select {
		case <-q.done:
			return ErrQueueClosed
		default:
		}
		select {
		case q.jobs <- job:
			return nil
		default:
		}
		go func() {
			select {
			case q.jobs <- job:
			case <-q.done:
			}
		}()
		return nil
	}
}
