package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
)

var (
	ErrEmptyContent = fmt.Errorf("%w: пустой текст", domain.ErrInvalidInput)
	ErrNoChannels   = fmt.Errorf("%w: пост без каналов", domain.ErrInvalidInput)
)

// PseudonymResolver выдаёт псевдоним пользователя внутри поста.
type PseudonymResolver interface {
	ResolveOrAssign(ctx context.Context, postKey, userID string) (int, error)
}

// ChannelValidator проверяет ключи каналов.
type ChannelValidator interface {
	ValidateKeys(ctx context.Context, keys []string) ([]string, error)
}

// Notifier рассылает изменение по каналам поста.
type Notifier interface {
	Notify(ctx context.Context, entity domain.Entity, channels []string) int
}

// Tallier считает голоса за сущность.
type Tallier interface {
	Tally(ctx context.Context, entity domain.Votable) (domain.Tally, error)
}

// NewPost содержит поля создаваемого поста.
type NewPost struct {
	Content    string
	Theme      string
	Background string
	Role       string
	RoleText   string
	Channels   []string
	// Created задаёт время публикации; нулевое значение означает текущий момент.
	Created time.Time
}

// NewComment содержит поля создаваемого комментария.
type NewComment struct {
	Content  string
	Role     string
	RoleText string
	Created  time.Time
}

// CommentView содержит комментарий с подсчётом голосов.
type CommentView struct {
	Comment domain.Comment
	Tally   domain.Tally
}

// Service управляет постами и комментариями.
type Service struct {
	store    domain.Store
	identity PseudonymResolver
	channels ChannelValidator
	tallies  Tallier
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис постов. notifier может быть nil.
func NewService(store domain.Store, identity PseudonymResolver, channels ChannelValidator, tallies Tallier, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		identity: identity,
		channels: channels,
		tallies:  tallies,
		notifier: notifier,
		now:      time.Now,
		log:      logger,
	}
}

// CreatePost публикует пост от имени автора. Автор получает псевдоним 0.
func (s *Service) CreatePost(ctx context.Context, author domain.User, in NewPost) (domain.Post, error) {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Post{}, ErrEmptyContent
	}
	channels, err := s.channels.ValidateKeys(ctx, in.Channels)
	if err != nil {
		return domain.Post{}, err
	}
	if len(channels) == 0 {
		return domain.Post{}, ErrNoChannels
	}
	created := in.Created
	if created.IsZero() {
		created = s.now()
	}
	post, err := s.store.CreatePost(ctx, domain.Post{
		Key:         domain.NewKey(),
		AuthorID:    author.ID,
		Content:     in.Content,
		Theme:       in.Theme,
		Background:  in.Background,
		Role:        in.Role,
		RoleText:    in.RoleText,
		Channels:    channels,
		IdentityMap: map[string]int{author.ID: domain.AuthorPseudonym},
		Created:     domain.Timestamp(created),
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}
	s.notify(ctx, domain.Entity{Key: post.Key, Kind: domain.KindPost, PostKey: post.Key}, post.Channels)
	return post, nil
}

// AddComment добавляет комментарий под псевдонимом пользователя в этом посте.
func (s *Service) AddComment(ctx context.Context, postKey string, user domain.User, in NewComment) (domain.Comment, error) {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Comment{}, ErrEmptyContent
	}
	post, err := s.store.GetPost(ctx, postKey)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("получение поста: %w", err)
	}
	pseudonym, err := s.identity.ResolveOrAssign(ctx, post.Key, user.ID)
	if err != nil {
		return domain.Comment{}, err
	}
	created := in.Created
	if created.IsZero() {
		created = s.now()
	}
	comment, err := s.store.CreateComment(ctx, domain.Comment{
		Key:       domain.NewKey(),
		PostKey:   post.Key,
		Pseudonym: pseudonym,
		Content:   in.Content,
		Role:      in.Role,
		RoleText:  in.RoleText,
		Created:   domain.Timestamp(created),
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("сохранение комментария: %w", err)
	}
	s.notify(ctx, domain.Entity{Key: comment.Key, Kind: domain.KindComment, PostKey: post.Key}, post.Channels)
	return comment, nil
}

// ListComments возвращает опубликованные комментарии поста от новых к старым.
func (s *Service) ListComments(ctx context.Context, postKey string) ([]CommentView, error) {
	if _, err := s.store.GetPost(ctx, postKey); err != nil {
		return nil, fmt.Errorf("получение поста: %w", err)
	}
	comments, err := s.store.ListComments(ctx, postKey, domain.Timestamp(s.now()))
	if err != nil {
		return nil, fmt.Errorf("список комментариев: %w", err)
	}
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		tally, err := s.tallies.Tally(ctx, c)
		if err != nil {
			return nil, err
		}
		views = append(views, CommentView{Comment: c, Tally: tally})
	}
	return views, nil
}

// Get возвращает пост по ключу.
func (s *Service) Get(ctx context.Context, key string) (domain.Post, error) {
	return s.store.GetPost(ctx, key)
}

// Votable находит пост или комментарий по ключу.
func (s *Service) Votable(ctx context.Context, key string) (domain.Votable, error) {
	post, err := s.store.GetPost(ctx, key)
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.store.GetComment(ctx, key)
}

// Recent возвращает последние посты.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Post, error) {
	return s.store.ListPosts(ctx, limit)
}

// DeletePost физически удаляет пост вместе с голосами, комментариями, жалобами и записями журналов.
func (s *Service) DeletePost(ctx context.Context, key string) error {
	if _, err := s.store.GetPost(ctx, key); err != nil {
		return err
	}
	if err := s.store.DeleteVotesByPost(ctx, key); err != nil {
		return fmt.Errorf("удаление голосов: %w", err)
	}
	if err := s.store.DeleteCommentsByPost(ctx, key); err != nil {
		return fmt.Errorf("удаление комментариев: %w", err)
	}
	if err := s.store.DeleteFlagsByPost(ctx, key); err != nil {
		return fmt.Errorf("удаление жалоб: %w", err)
	}
	if err := s.store.DeleteUpdatesByPost(ctx, key); err != nil {
		return fmt.Errorf("удаление записей журнала: %w", err)
	}
	if err := s.store.DeletePost(ctx, key); err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	s.log.Info().Str("post", key).Msg("posts: пост удалён")
	return nil
}

func (s *Service) notify(ctx context.Context, entity domain.Entity, channels []string) {
	if s.notifier == nil {
		return
	}
	if n := s.notifier.Notify(ctx, entity, channels); n < len(channels) {
		s.log.Warn().Str("what", entity.Key).Int("enqueued", n).Int("channels", len(channels)).Msg("posts: изменение попало не во все каналы")
	}
}
