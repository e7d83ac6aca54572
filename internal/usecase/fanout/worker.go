package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// Appender записывает изменение в журнал канала.
type Appender interface {
	Append(ctx context.Context, channelKey string, entity domain.Entity, at time.Time) (domain.Update, error)
}

const DefaultMaxAttempts = 5

// recoverer реализуют очереди, которые хранят полученные, но не подтверждённые задачи.
type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Worker разбирает очередь фанаута и пишет записи в журналы каналов.
type Worker struct {
	queue       domain.UpdateQueue
	channels    domain.ChannelRepo
	posts       domain.PostRepo
	index       Appender
	consumers   int
	maxAttempts int
	log         zerolog.Logger
}

// NewWorker создаёт обработчик очереди с заданным числом потребителей.
func NewWorker(queue domain.UpdateQueue, channels domain.ChannelRepo, posts domain.PostRepo, index Appender, consumers, maxAttempts int, logger zerolog.Logger) *Worker {
	if consumers <= 0 {
		consumers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		queue:       queue,
		channels:    channels,
		posts:       posts,
		index:       index,
		consumers:   consumers,
		maxAttempts: maxAttempts,
		log:         logger,
	}
}

// Run запускает потребителей и блокируется до отмены ctx или закрытия очереди.
func (w *Worker) Run(ctx context.Context) error {
	if r, ok := w.queue.(recoverer); ok {
		moved, err := r.Recover(ctx)
		if err != nil {
			return fmt.Errorf("возврат незавершённых задач: %w", err)
		}
		if moved > 0 {
			w.log.Warn().Int("jobs", moved).Msg("fanout: незавершённые задачи возвращены в очередь")
		}
	}
	p := pool.New().WithContext(ctx)
	for i := 0; i < w.consumers; i++ {
		consumer := w.log.With().Int("consumer", i).Logger()
		p.Go(func(ctx context.Context) error {
			w.consume(ctx, consumer)
			return nil
		})
	}
	return p.Wait()
}

func (w *Worker) consume(ctx context.Context, log zerolog.Logger) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				return
			}
			wait := b.NextBackOff()
			log.Error().Err(err).Dur("retry_in", wait).Msg("fanout: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		w.process(ctx, job, ack, log)
	}
}

func (w *Worker) process(ctx context.Context, job domain.UpdateJob, ack domain.AckFunc, log zerolog.Logger) {
	jobLog := log.With().
		Str("job_id", job.ID).
		Str("what", job.What).
		Str("channel", job.Channel).
		Int("attempt", job.Attempt).
		Logger()

	err := w.Handle(ctx, job)
	metrics.ObserveFanout("append", err)
	if err == nil {
		if ackErr := ack(true); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("fanout: не удалось подтвердить задачу")
		}
		return
	}
	if job.Attempt+1 < w.maxAttempts {
		jobLog.Warn().Err(err).Msg("fanout: задача завершилась ошибкой, повторим позже")
		if ackErr := ack(false); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("fanout: не удалось вернуть задачу в очередь")
		}
		return
	}
	jobLog.Error().Err(err).Msg("fanout: достигнут предел попыток, задача отброшена")
	if ackErr := ack(true); ackErr != nil {
		jobLog.Error().Err(ackErr).Msg("fanout: не удалось подтвердить отброшенную задачу")
	}
}

// report передаёт модераторам жалобу или отзыв. Доставкой служит журнал сервиса.
func (w *Worker) report(job domain.UpdateJob) {
	if job.Task == domain.TaskFlag {
		w.log.Warn().Str("what", job.What).Str("kind", job.WhatKind).Str("post", job.PostKey).
			Time("at", job.Time).Msg("fanout: поступила жалоба")
		return
	}
	w.log.Info().Str("feedback", job.What).Str("user", job.UserID).Str("content", job.Content).
		Time("at", job.Time).Msg("fanout: поступил отзыв")
}

// Handle записывает одну задачу в журнал канала. Задачи для неизвестного канала
// или удалённого поста пропускаются без ошибки. Жалобы и отзывы только журналируются.
func (w *Worker) Handle(ctx context.Context, job domain.UpdateJob) error {
	switch job.Task {
	case domain.TaskFlag, domain.TaskFeedback:
		w.report(job)
		return nil
	}
	if _, err := w.channels.GetChannel(ctx, job.Channel); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.log.Error().Str("channel", job.Channel).Str("what", job.What).Msg("fanout: неизвестный канал, задача пропущена")
			return nil
		}
		return fmt.Errorf("получение канала: %w", err)
	}
	if job.PostKey != "" {
		if _, err := w.posts.GetPost(ctx, job.PostKey); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				w.log.Warn().Str("post", job.PostKey).Str("what", job.What).Msg("fanout: пост удалён, задача пропущена")
				return nil
			}
			return fmt.Errorf("получение поста: %w", err)
		}
	}
	entity := domain.Entity{Key: job.What, Kind: job.WhatKind, PostKey: job.PostKey}
	if _, err := w.index.Append(ctx, job.Channel, entity, job.Time); err != nil {
		return err
	}
	return nil
}
