package domain

import (
	"context"
	"time"
)

// PostRepo управляет постами.
type PostRepo interface {
	CreatePost(ctx context.Context, post Post) (Post, error)
	GetPost(ctx context.Context, key string) (Post, error)
	// GetPosts возвращает найденные посты, отсутствующие ключи пропускаются.
	GetPosts(ctx context.Context, keys []string) ([]Post, error)
	ListPosts(ctx context.Context, limit int) ([]Post, error)
	// LockPost выполняет fn в транзакции, ограниченной одной записью поста.
	// Если fn вернула true, изменённый пост сохраняется до фиксации транзакции.
	LockPost(ctx context.Context, key string, fn func(post *Post) (bool, error)) error
	DeletePost(ctx context.Context, key string) error
}

// CommentRepo управляет комментариями.
type CommentRepo interface {
	CreateComment(ctx context.Context, comment Comment) (Comment, error)
	GetComment(ctx context.Context, key string) (Comment, error)
	// ListComments возвращает комментарии поста от новых к старым. Нулевой until снимает ограничение.
	ListComments(ctx context.Context, postKey string, until time.Time) ([]Comment, error)
	CountComments(ctx context.Context, postKey string, until time.Time) (int, error)
	DeleteCommentsByPost(ctx context.Context, postKey string) error
}

// VoteRepo хранит записи голосов.
type VoteRepo interface {
	InsertVote(ctx context.Context, vote Vote) (Vote, error)
	GetVote(ctx context.Context, key string) (Vote, error)
	// DeleteVotes удаляет все голоса псевдонима за сущность в заданном направлении.
	DeleteVotes(ctx context.Context, entityKey string, pseudonym int, dir Direction) (int, error)
	CountVotes(ctx context.Context, entityKey string, dir Direction) (int, error)
	ListVoteKeys(ctx context.Context, entityKey string, pseudonym int, dir Direction) ([]string, error)
	DeleteVoteKeys(ctx context.Context, keys []string) error
	DeleteVotesByPost(ctx context.Context, postKey string) error
}

// ChannelRepo управляет каналами.
type ChannelRepo interface {
	// CreateChannel возвращает ErrDuplicate, если заголовок занят.
	CreateChannel(ctx context.Context, title string) (Channel, error)
	GetChannel(ctx context.Context, key string) (Channel, error)
	GetChannelByTitle(ctx context.Context, title string) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
}

// UpdateQuery описывает диапазонное чтение журнала канала.
type UpdateQuery struct {
	ChannelKey string
	Since      time.Time
	// AfterKey задаёт вторичную границу по ключу; пустое значение делает границу по времени включающей.
	AfterKey string
	Forward  bool
	Until    time.Time
	Limit    int
}

// UpdateRepo хранит журнал изменений по каналам.
type UpdateRepo interface {
	InsertUpdate(ctx context.Context, update Update) (Update, error)
	ScanUpdates(ctx context.Context, q UpdateQuery) ([]Update, error)
	// UpdatesForPosts возвращает изменения постов в интервале [since, until] от новых к старым.
	UpdatesForPosts(ctx context.Context, postKeys []string, since, until time.Time, kinds []string) ([]Update, error)
	DeleteUpdatesByPost(ctx context.Context, postKey string) error
	DeleteUpdatesBefore(ctx context.Context, before time.Time) (int64, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	// CreateUser возвращает ErrDuplicate, если хеш ключа уже зарегистрирован.
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByPubKeyHash(ctx context.Context, hash string) (User, error)
}

// TokenRepo хранит токены доступа пользователей.
type TokenRepo interface {
	// ReplaceToken удаляет прежние токены пользователя и сохраняет новый.
	ReplaceToken(ctx context.Context, userID, token string) error
	UserByToken(ctx context.Context, token string) (User, error)
}

// ReportRepo хранит жалобы и отзывы.
type ReportRepo interface {
	CreateFlag(ctx context.Context, flag Flag) (Flag, error)
	// ListFlags возвращает жалобы на сущность от новых к старым.
	ListFlags(ctx context.Context, entityKey string) ([]Flag, error)
	DeleteFlagsByPost(ctx context.Context, postKey string) error
	CreateFeedback(ctx context.Context, fb Feedback) (Feedback, error)
	// ListFeedback возвращает последние отзывы; limit <= 0 означает 100.
	ListFeedback(ctx context.Context, limit int) ([]Feedback, error)
}

// AuthProvider сопоставляет токен с реальным пользователем.
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (User, error)
}

// Store объединяет все репозитории одного хранилища.
type Store interface {
	PostRepo
	CommentRepo
	VoteRepo
	ChannelRepo
	UpdateRepo
	UserRepo
	TokenRepo
	ReportRepo
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
