package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// ErrEmptyFeedback возвращается для отзыва без текста.
var ErrEmptyFeedback = fmt.Errorf("%w: пустой отзыв", domain.ErrInvalidInput)

// Service принимает жалобы на посты и комментарии и отзывы пользователей.
type Service struct {
	posts    domain.PostRepo
	comments domain.CommentRepo
	reports  domain.ReportRepo
	queue    domain.UpdateQueue
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис жалоб. queue может быть nil, тогда модераторы не уведомляются.
func NewService(posts domain.PostRepo, comments domain.CommentRepo, reports domain.ReportRepo, queue domain.UpdateQueue, logger zerolog.Logger) *Service {
	return &Service{posts: posts, comments: comments, reports: reports, queue: queue, now: time.Now, log: logger}
}

// Flag сохраняет жалобу на пост или комментарий и ставит уведомление в очередь.
func (s *Service) Flag(ctx context.Context, user domain.User, key string) (domain.Flag, error) {
	flag := domain.Flag{Key: domain.NewKey(), EntityKey: key, Created: domain.Timestamp(s.now())}
	post, err := s.posts.GetPost(ctx, key)
	switch {
	case err == nil:
		flag.EntityKind, flag.PostKey = domain.KindPost, post.Key
	case errors.Is(err, domain.ErrNotFound):
		comment, err := s.comments.GetComment(ctx, key)
		if err != nil {
			return domain.Flag{}, fmt.Errorf("поиск сущности %s: %w", key, err)
		}
		flag.EntityKind, flag.PostKey = domain.KindComment, comment.PostKey
	default:
		return domain.Flag{}, fmt.Errorf("получение поста: %w", err)
	}

	flag, err = s.reports.CreateFlag(ctx, flag)
	if err != nil {
		return domain.Flag{}, fmt.Errorf("сохранение жалобы: %w", err)
	}
	s.log.Info().Str("flag", flag.Key).Str("what", key).Str("user", user.ID).Msg("reports: жалоба сохранена")
	s.enqueue(ctx, domain.UpdateJob{
		Task:     domain.TaskFlag,
		What:     flag.EntityKey,
		WhatKind: flag.EntityKind,
		PostKey:  flag.PostKey,
		Time:     flag.Created,
	})
	return flag, nil
}

// Feedback сохраняет отзыв пользователя и ставит уведомление в очередь.
func (s *Service) Feedback(ctx context.Context, user domain.User, content string) (domain.Feedback, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Feedback{}, ErrEmptyFeedback
	}
	fb, err := s.reports.CreateFeedback(ctx, domain.Feedback{
		Key:     domain.NewKey(),
		UserID:  user.ID,
		Content: content,
		Created: domain.Timestamp(s.now()),
	})
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("сохранение отзыва: %w", err)
	}
	s.enqueue(ctx, domain.UpdateJob{
		Task:     domain.TaskFeedback,
		What:     fb.Key,
		WhatKind: domain.KindFeedback,
		UserID:   fb.UserID,
		Content:  fb.Content,
		Time:     fb.Created,
	})
	return fb, nil
}

// FlagsFor возвращает жалобы на сущность.
func (s *Service) FlagsFor(ctx context.Context, key string) ([]domain.Flag, error) {
	return s.reports.ListFlags(ctx, key)
}

// RecentFeedback возвращает последние отзывы.
func (s *Service) RecentFeedback(ctx context.Context, limit int) ([]domain.Feedback, error) {
	return s.reports.ListFeedback(ctx, limit)
}

// enqueue не возвращает ошибку: запись уже сохранена, потерянное уведомление только журналируется.
func (s *Service) enqueue(ctx context.Context, job domain.UpdateJob) {
	if s.queue == nil {
		return
	}
	job.ID = uuid.NewString()
	err := s.queue.Enqueue(ctx, job)
	metrics.ObserveFanout(job.Task, err)
	if err != nil {
		s.log.Error().Err(err).Str("task", job.Task).Str("what", job.What).Msg("reports: не удалось поставить уведомление")
	}
}
