package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
)

var (
	ErrTitleInvalid   = errors.New("некорректный заголовок канала")
	ErrUnknownChannel = errors.New("неизвестный канал")
)

const maxTitleLen = 64

// Service управляет каналами.
type Service struct {
	repo domain.ChannelRepo
	log  zerolog.Logger
}

// NewService создаёт новый сервис каналов.
func NewService(repo domain.ChannelRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// NormalizeTitle приводит заголовок канала к каноничному виду.
func NormalizeTitle(input string) (string, error) {
	title := strings.Join(strings.Fields(input), " ")
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return "", ErrTitleInvalid
	}
	return title, nil
}

// Create создаёт канал с уникальным заголовком.
func (s *Service) Create(ctx context.Context, title string) (domain.Channel, error) {
	normalized, err := NormalizeTitle(title)
	if err != nil {
		return domain.Channel{}, err
	}
	ch, err := s.repo.CreateChannel(ctx, normalized)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("создание канала %q: %w", normalized, err)
	}
	s.log.Info().Str("channel", ch.Key).Str("title", ch.Title).Msg("channels: канал создан")
	return ch, nil
}

// Ensure возвращает канал по заголовку, создавая его при отсутствии.
func (s *Service) Ensure(ctx context.Context, title string) (domain.Channel, error) {
	ch, err := s.ByTitle(ctx, title)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Channel{}, err
	}
	ch, err = s.Create(ctx, title)
	if errors.Is(err, domain.ErrDuplicate) {
		return s.ByTitle(ctx, title)
	}
	return ch, err
}

// ByTitle ищет канал по заголовку.
func (s *Service) ByTitle(ctx context.Context, title string) (domain.Channel, error) {
	normalized, err := NormalizeTitle(title)
	if err != nil {
		return domain.Channel{}, err
	}
	return s.repo.GetChannelByTitle(ctx, normalized)
}

// Get возвращает канал по ключу.
func (s *Service) Get(ctx context.Context, key string) (domain.Channel, error) {
	return s.repo.GetChannel(ctx, key)
}

// List возвращает все каналы.
func (s *Service) List(ctx context.Context) ([]domain.Channel, error) {
	return s.repo.ListChannels(ctx)
}

// ValidateKeys проверяет, что все ключи ссылаются на существующие каналы, и убирает повторы.
func (s *Service) ValidateKeys(ctx context.Context, keys []string) ([]string, error) {
	cleaned := NormalizeKeys(keys)
	for _, key := range cleaned {
		if _, err := s.repo.GetChannel(ctx, key); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, key)
			}
			return nil, fmt.Errorf("получение канала %s: %w", key, err)
		}
	}
	return cleaned, nil
}

// NormalizeKeys удаляет пустые и дублирующиеся значения, сохраняя порядок.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	cleaned := make([]string, 0, len(keys))
	for _, key := range keys {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
