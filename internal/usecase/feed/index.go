package feed

import (
	"context"
	"fmt"
	"time"

	"insiderr-api/internal/domain"
)

const (
	DefaultCount = 100
	MaxCount     = 500
)

// Index ведёт журнал изменений канала, упорядоченный по (время, ключ записи).
type Index struct {
	updates      domain.UpdateRepo
	defaultCount int
	maxCount     int
	now          func() time.Time
}

// NewIndex создаёт индекс. Нулевые лимиты заменяются значениями по умолчанию.
func NewIndex(updates domain.UpdateRepo, defaultCount, maxCount int) *Index {
	if defaultCount <= 0 {
		defaultCount = DefaultCount
	}
	if maxCount <= 0 {
		maxCount = MaxCount
	}
	return &Index{updates: updates, defaultCount: defaultCount, maxCount: maxCount, now: time.Now}
}

// Append добавляет запись об изменении сущности в журнал канала.
func (i *Index) Append(ctx context.Context, channelKey string, entity domain.Entity, at time.Time) (domain.Update, error) {
	update, err := i.updates.InsertUpdate(ctx, domain.Update{
		Key:        domain.NewKey(),
		Created:    domain.Timestamp(at),
		What:       entity.Key,
		WhatKind:   entity.Kind,
		PostKey:    entity.PostKey,
		ChannelKey: channelKey,
	})
	if err != nil {
		return domain.Update{}, fmt.Errorf("запись в журнал канала %s: %w", channelKey, err)
	}
	return update, nil
}

// Scan читает до |count| записей от курсора. Положительный count идёт вперёд по времени,
// отрицательный назад, ноль означает значение по умолчанию. Записи из будущего не возвращаются.
func (i *Index) Scan(ctx context.Context, channelKey string, cursor Cursor, count int) ([]domain.Update, error) {
	forward, limit := i.normalize(count)
	updates, err := i.updates.ScanUpdates(ctx, domain.UpdateQuery{
		ChannelKey: channelKey,
		Since:      cursor.Time,
		AfterKey:   cursor.Key,
		Forward:    forward,
		Until:      domain.Timestamp(i.now()),
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("чтение журнала канала %s: %w", channelKey, err)
	}
	return updates, nil
}

func (i *Index) normalize(count int) (bool, int) {
	if count == 0 {
		count = i.defaultCount
	}
	forward := count > 0
	if count > i.maxCount {
		count = i.maxCount
	}
	if count < -i.maxCount {
		count = -i.maxCount
	}
	if count < 0 {
		count = -count
	}
	return forward, count
}
