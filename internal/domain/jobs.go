package domain

import (
	"context"
	"time"
)

// Виды фоновых задач. Пустой Task означает запись изменения в журнал канала.
const (
	TaskFlag     = "flag"
	TaskFeedback = "feedback"
)

// UpdateJob содержит задачу записи изменения в журнал одного канала
// либо уведомление модераторов о жалобе или отзыве.
type UpdateJob struct {
	ID       string    `json:"job_id"`
	Task     string    `json:"task,omitempty"`
	UserID   string    `json:"user,omitempty"`
	Content  string    `json:"content,omitempty"`
	What     string    `json:"what"`
	WhatKind string    `json:"what_kind"`
	PostKey  string    `json:"post,omitempty"`
	Channel  string    `json:"channel"`
	Channels []string  `json:"channels"`
	Time     time.Time `json:"time"`
	Attempt  int       `json:"attempt,omitempty"`
}

// UpdateQueue описывает очередь задач фанаута.
type UpdateQueue interface {
	Enqueue(ctx context.Context, job UpdateJob) error
	Receive(ctx context.Context) (UpdateJob, AckFunc, error)
}

// AckFunc подтверждает обработку задачи или возвращает её в очередь с увеличенным номером попытки.
type AckFunc func(success bool) error
