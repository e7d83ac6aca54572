package fanout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// Service ставит в очередь запись изменения в журналы каналов.
type Service struct {
	queue domain.UpdateQueue
	now   func() time.Time
	log   zerolog.Logger
}

// NewService создаёт сервис фанаута.
func NewService(queue domain.UpdateQueue, logger zerolog.Logger) *Service {
	return &Service{queue: queue, now: time.Now, log: logger}
}

// Notify ставит по одной задаче на каждый канал и возвращает число поставленных задач.
// Ошибка одного канала логируется и не мешает остальным.
func (s *Service) Notify(ctx context.Context, entity domain.Entity, channels []string) int {
	at := domain.Timestamp(s.now())
	seen := make(map[string]struct{}, len(channels))
	enqueued := 0
	for _, channel := range channels {
		if _, ok := seen[channel]; ok || channel == "" {
			continue
		}
		seen[channel] = struct{}{}
		job := domain.UpdateJob{
			ID:       uuid.NewString(),
			What:     entity.Key,
			WhatKind: entity.Kind,
			PostKey:  entity.PostKey,
			Channel:  channel,
			Channels: channels,
			Time:     at,
		}
		err := s.queue.Enqueue(ctx, job)
		metrics.ObserveFanout("enqueue", err)
		if err != nil {
			s.log.Error().Err(err).Str("what", entity.Key).Str("channel", channel).Msg("fanout: не удалось поставить задачу")
			continue
		}
		enqueued++
	}
	return enqueued
}
