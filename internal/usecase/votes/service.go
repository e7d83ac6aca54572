package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// PseudonymResolver выдаёт псевдоним пользователя внутри поста.
type PseudonymResolver interface {
	ResolveOrAssign(ctx context.Context, postKey, userID string) (int, error)
	Lookup(ctx context.Context, postKey, userID string) (int, bool, error)
}

// Notifier рассылает изменение по каналам поста.
type Notifier interface {
	Notify(ctx context.Context, entity domain.Entity, channels []string) int
}

// Service управляет голосами за посты и комментарии.
type Service struct {
	posts    domain.PostRepo
	votes    domain.VoteRepo
	identity PseudonymResolver
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис голосов. notifier может быть nil.
func NewService(posts domain.PostRepo, votes domain.VoteRepo, identity PseudonymResolver, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{posts: posts, votes: votes, identity: identity, notifier: notifier, now: time.Now, log: logger}
}

type castOptions struct {
	keepOpposite bool
	created      time.Time
}

// CastOption настраивает запись голоса.
type CastOption func(*castOptions)

// KeepOpposite отключает удаление противоположных голосов. Используется при массовом импорте.
func KeepOpposite() CastOption {
	return func(o *castOptions) { o.keepOpposite = true }
}

// At задаёт время создания голоса.
func At(t time.Time) CastOption {
	return func(o *castOptions) { o.created = t }
}

// Cast записывает голос пользователя. Противоположные голоса того же псевдонима удаляются.
// Удаление и вставка не атомарны, повторный голос в том же направлении создаёт ещё одну запись.
func (s *Service) Cast(ctx context.Context, entity domain.Votable, userID string, dir domain.Direction, opts ...CastOption) (domain.Vote, error) {
	var o castOptions
	for _, opt := range opts {
		opt(&o)
	}
	post, err := s.posts.GetPost(ctx, entity.OwningPostKey())
	if err != nil {
		return domain.Vote{}, fmt.Errorf("получение поста: %w", err)
	}
	pseudonym, err := s.identity.ResolveOrAssign(ctx, post.Key, userID)
	if err != nil {
		return domain.Vote{}, err
	}
	if !o.keepOpposite {
		removed, err := s.votes.DeleteVotes(ctx, entity.VotableKey(), pseudonym, dir.Opposite())
		if err != nil {
			return domain.Vote{}, fmt.Errorf("удаление противоположных голосов: %w", err)
		}
		if removed > 0 {
			metrics.VotesTotal.WithLabelValues("replace", string(dir.Opposite())).Add(float64(removed))
		}
	}
	created := o.created
	if created.IsZero() {
		created = s.now()
	}
	vote, err := s.votes.InsertVote(ctx, domain.Vote{
		Key:       domain.NewKey(),
		EntityKey: entity.VotableKey(),
		PostKey:   post.Key,
		Direction: dir,
		Pseudonym: pseudonym,
		Created:   domain.Timestamp(created),
	})
	if err != nil {
		return domain.Vote{}, fmt.Errorf("сохранение голоса: %w", err)
	}
	metrics.VotesTotal.WithLabelValues("cast", string(dir)).Inc()
	if s.notifier != nil {
		s.notifier.Notify(ctx, domain.Entity{Key: vote.Key, Kind: vote.Kind(), PostKey: post.Key}, post.Channels)
	}
	return vote, nil
}

// Retract удаляет все голоса пользователя за сущность в заданном направлении.
// Пользователь без псевдонима в посте ничего не удаляет.
func (s *Service) Retract(ctx context.Context, entity domain.Votable, userID string, dir domain.Direction) (int, error) {
	pseudonym, ok, err := s.identity.Lookup(ctx, entity.OwningPostKey(), userID)
	if err != nil {
		return 0, fmt.Errorf("получение поста: %w", err)
	}
	if !ok {
		return 0, nil
	}
	removed, err := s.votes.DeleteVotes(ctx, entity.VotableKey(), pseudonym, dir)
	if err != nil {
		return 0, fmt.Errorf("удаление голосов: %w", err)
	}
	metrics.VotesTotal.WithLabelValues("retract", string(dir)).Add(float64(removed))
	return removed, nil
}

// Tally считает голоса за сущность.
func (s *Service) Tally(ctx context.Context, entity domain.Votable) (domain.Tally, error) {
	up, err := s.votes.CountVotes(ctx, entity.VotableKey(), domain.DirectionUp)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("подсчёт голосов за: %w", err)
	}
	down, err := s.votes.CountVotes(ctx, entity.VotableKey(), domain.DirectionDown)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("подсчёт голосов против: %w", err)
	}
	return domain.Tally{Up: up, Down: down}, nil
}

// Reconcile приводит число голосов пользователя в одном направлении к count. Только для администраторов.
// Противоположные голоса не трогаются, изменения в ленты не попадают.
func (s *Service) Reconcile(ctx context.Context, entity domain.Votable, userID string, dir domain.Direction, count int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: отрицательное число голосов", domain.ErrInvalidInput)
	}
	pseudonym, err := s.identity.ResolveOrAssign(ctx, entity.OwningPostKey(), userID)
	if err != nil {
		return 0, err
	}
	keys, err := s.votes.ListVoteKeys(ctx, entity.VotableKey(), pseudonym, dir)
	if err != nil {
		return 0, fmt.Errorf("список голосов: %w", err)
	}
	switch {
	case len(keys) > count:
		if err := s.votes.DeleteVoteKeys(ctx, keys[:len(keys)-count]); err != nil {
			return 0, fmt.Errorf("удаление лишних голосов: %w", err)
		}
	case len(keys) < count:
		for i := len(keys); i < count; i++ {
			_, err := s.votes.InsertVote(ctx, domain.Vote{
				Key:       domain.NewKey(),
				EntityKey: entity.VotableKey(),
				PostKey:   entity.OwningPostKey(),
				Direction: dir,
				Pseudonym: pseudonym,
				Created:   domain.Timestamp(s.now()),
			})
			if err != nil {
				return 0, fmt.Errorf("добавление голоса: %w", err)
			}
		}
	}
	s.log.Info().Str("entity", entity.VotableKey()).Str("direction", string(dir)).
		Int("from", len(keys)).Int("to", count).Msg("votes: голоса сверены")
	return count - len(keys), nil
}
