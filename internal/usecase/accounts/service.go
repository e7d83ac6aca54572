package accounts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"

	"insiderr-api/internal/domain"
)

// ErrEmptyPubKey возвращается при регистрации без публичного ключа.
var ErrEmptyPubKey = fmt.Errorf("%w: пустой публичный ключ", domain.ErrInvalidInput)

const (
	hashIterations = 1
	hashMemory     = 64 * 1024
	hashThreads    = 4
	hashKeyLen     = 32
)

// Service регистрирует пользователей и выдаёт токены доступа.
type Service struct {
	users  domain.UserRepo
	tokens domain.TokenRepo
	salt   []byte
	now    func() time.Time
	log    zerolog.Logger
}

var _ domain.AuthProvider = (*Service)(nil)

// NewService создаёт сервис аккаунтов.
func NewService(users domain.UserRepo, tokens domain.TokenRepo, salt string, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, salt: []byte(salt), now: time.Now, log: logger}
}

// HashPubKey возвращает детерминированный argon2id-хеш публичного ключа.
func (s *Service) HashPubKey(pubKey string) string {
	sum := argon2.IDKey([]byte(pubKey), s.salt, hashIterations, hashMemory, hashThreads, hashKeyLen)
	return base64.RawStdEncoding.EncodeToString(sum)
}

// Register создаёт пользователя. Повторная регистрация ключа возвращает domain.ErrDuplicate.
func (s *Service) Register(ctx context.Context, pubKey, description string) (domain.User, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return domain.User{}, ErrEmptyPubKey
	}
	hash := s.HashPubKey(pubKey)
	if _, err := s.users.GetUserByPubKeyHash(ctx, hash); err == nil {
		return domain.User{}, domain.ErrDuplicate
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("поиск пользователя: %w", err)
	}
	user, err := s.users.CreateUser(ctx, domain.User{
		ID:          domain.NewKey(),
		PubKeyHash:  hash,
		Description: strings.TrimSpace(description),
		CreatedAt:   domain.Timestamp(s.now()),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("создание пользователя: %w", err)
	}
	s.log.Info().Str("user", user.ID).Msg("accounts: пользователь зарегистрирован")
	return user, nil
}

// Login выдаёт новый токен пользователю. Прежние токены пользователя перестают действовать.
func (s *Service) Login(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return "", fmt.Errorf("поиск пользователя: %w", err)
	}
	token := uuid.NewString()
	if err := s.tokens.ReplaceToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("сохранение токена: %w", err)
	}
	return token, nil
}

// Authenticate возвращает пользователя по токену.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	user, err := s.tokens.UserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthenticated
		}
		return domain.User{}, fmt.Errorf("проверка токена: %w", err)
	}
	return user, nil
}
