package identity

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

const (
	DefaultMaxProbes = 1000
	DefaultSpace     = 1000000
)

// Service выдаёт пользователям стабильные псевдонимы внутри поста.
type Service struct {
	posts     domain.PostRepo
	maxProbes int
	space     int
	randN     func(n int) int
	log       zerolog.Logger
}

// NewService создаёт сервис псевдонимов. Нулевые параметры заменяются значениями по умолчанию.
func NewService(posts domain.PostRepo, maxProbes, space int, logger zerolog.Logger) *Service {
	if maxProbes <= 0 {
		maxProbes = DefaultMaxProbes
	}
	if space <= 1 {
		space = DefaultSpace
	}
	return &Service{posts: posts, maxProbes: maxProbes, space: space, randN: rand.IntN, log: logger}
}

// ResolveOrAssign возвращает псевдоним пользователя в посте, выдавая новый при первом обращении.
// Чтение и запись карты псевдонимов выполняются под блокировкой одного поста.
func (s *Service) ResolveOrAssign(ctx context.Context, postKey, userID string) (int, error) {
	var (
		pseudonym int
		assigned  bool
	)
	err := s.posts.LockPost(ctx, postKey, func(post *domain.Post) (bool, error) {
		if p, ok := post.IdentityMap[userID]; ok {
			pseudonym = p
			return false, nil
		}
		used := make(map[int]struct{}, len(post.IdentityMap))
		for _, p := range post.IdentityMap {
			used[p] = struct{}{}
		}
		p, err := s.pick(used)
		if err != nil {
			return false, err
		}
		if post.IdentityMap == nil {
			post.IdentityMap = make(map[string]int)
		}
		post.IdentityMap[userID] = p
		pseudonym, assigned = p, true
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("псевдоним в посте %s: %w", postKey, err)
	}
	if assigned {
		metrics.PseudonymsAssigned.Inc()
		s.log.Debug().Str("post", postKey).Int("pseudonym", pseudonym).Msg("identity: выдан псевдоним")
	}
	return pseudonym, nil
}

// Lookup возвращает псевдоним без выдачи нового.
func (s *Service) Lookup(ctx context.Context, postKey, userID string) (int, bool, error) {
	post, err := s.posts.GetPost(ctx, postKey)
	if err != nil {
		return 0, false, err
	}
	p, ok := post.IdentityMap[userID]
	return p, ok, nil
}

// ResolveRealUser возвращает реальный ID пользователя по псевдониму. Только для администраторов.
func (s *Service) ResolveRealUser(ctx context.Context, postKey string, pseudonym int) (string, error) {
	post, err := s.posts.GetPost(ctx, postKey)
	if err != nil {
		return "", err
	}
	for userID, p := range post.IdentityMap {
		if p == pseudonym {
			return userID, nil
		}
	}
	return "", domain.ErrNotFound
}

// pick перебирает случайные значения из [1, space) не более maxProbes раз.
func (s *Service) pick(used map[int]struct{}) (int, error) {
	for i := 0; i < s.maxProbes; i++ {
		candidate := 1 + s.randN(s.space-1)
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
	}
	return 0, domain.ErrResourceExhausted
}
