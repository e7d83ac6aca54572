package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/domain"
)

func newService() *Service {
	store := memstore.New()
	return NewService(store, store, "test-salt", zerolog.Nop())
}

func TestRegisterRejectsDuplicateKey(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Register(ctx, "ssh-ed25519 AAAA", "tester")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PubKeyHash == "ssh-ed25519 AAAA" || user.PubKeyHash == "" {
		t.Fatalf("ключ должен храниться только в виде хеша")
	}
	if _, err := svc.Register(ctx, " ssh-ed25519 AAAA ", ""); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("ожидали ErrDuplicate, получили %v", err)
	}
	if _, err := svc.Register(ctx, "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput, получили %v", err)
	}
}

func TestHashPubKeyDependsOnSalt(t *testing.T) {
	a := NewService(nil, nil, "salt-a", zerolog.Nop())
	b := NewService(nil, nil, "salt-b", zerolog.Nop())
	if a.HashPubKey("key") != a.HashPubKey("key") {
		t.Fatalf("хеш должен быть детерминированным")
	}
	if a.HashPubKey("key") == b.HashPubKey("key") {
		t.Fatalf("хеш должен зависеть от соли")
	}
}

func TestLoginReplacesToken(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, _ := svc.Register(ctx, "key", "")

	first, err := svc.Login(ctx, user.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := svc.Login(ctx, user.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Authenticate(ctx, first); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("старый токен должен быть отозван, получили %v", err)
	}
	authed, err := svc.Authenticate(ctx, second)
	if err != nil || authed.ID != user.ID {
		t.Fatalf("ожидали пользователя %s, получили %v (%v)", user.ID, authed.ID, err)
	}
	if _, err := svc.Login(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("ожидали ErrUnauthenticated, получили %v", err)
	}
}
