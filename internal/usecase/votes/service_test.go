package votes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/domain"
	"insiderr-api/internal/usecase/identity"
)

type recordingNotifier struct {
	entities []domain.Entity
	channels [][]string
}

func (n *recordingNotifier) Notify(_ context.Context, entity domain.Entity, channels []string) int {
	n.entities = append(n.entities, entity)
	n.channels = append(n.channels, channels)
	return len(channels)
}

type fixture struct {
	store    *memstore.Store
	svc      *Service
	notifier *recordingNotifier
	post     domain.Post
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	post, err := store.CreatePost(context.Background(), domain.Post{
		Key:         domain.NewKey(),
		AuthorID:    "author",
		Channels:    []string{"general"},
		IdentityMap: map[string]int{"author": domain.AuthorPseudonym},
		Created:     domain.Timestamp(time.Now()),
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	notifier := &recordingNotifier{}
	ids := identity.NewService(store, 0, 0, zerolog.Nop())
	return fixture{store: store, svc: NewService(store, store, ids, notifier, zerolog.Nop()), notifier: notifier, post: post}
}

func TestCastReplacesOppositeVote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.svc.Cast(ctx, f.post, "a", domain.DirectionUp); err != nil {
		t.Fatalf("cast up: %v", err)
	}
	if _, err := f.svc.Cast(ctx, f.post, "a", domain.DirectionDown); err != nil {
		t.Fatalf("cast down: %v", err)
	}
	tally, err := f.svc.Tally(ctx, f.post)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Up != 0 || tally.Down != 1 {
		t.Fatalf("ожидали 0/1, получили %d/%d", tally.Up, tally.Down)
	}
	if len(f.notifier.entities) != 2 {
		t.Fatalf("ожидали 2 уведомления, получили %d", len(f.notifier.entities))
	}
	last := f.notifier.entities[1]
	if last.Kind != domain.KindDownVote || last.PostKey != f.post.Key {
		t.Fatalf("неожиданное уведомление: %+v", last)
	}
	if f.notifier.channels[1][0] != "general" {
		t.Fatalf("ожидали канал general")
	}
}

func TestCastSameDirectionTwiceKeepsBoth(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Cast(ctx, f.post, "a", domain.DirectionUp); err != nil {
			t.Fatalf("cast: %v", err)
		}
	}
	tally, _ := f.svc.Tally(ctx, f.post)
	if tally.Up != 2 {
		t.Fatalf("повторный голос сохраняется как отдельная запись, получили %d", tally.Up)
	}
}

func TestCastKeepOpposite(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, _ = f.svc.Cast(ctx, f.post, "a", domain.DirectionUp)
	if _, err := f.svc.Cast(ctx, f.post, "a", domain.DirectionDown, KeepOpposite()); err != nil {
		t.Fatalf("cast: %v", err)
	}
	tally, _ := f.svc.Tally(ctx, f.post)
	if tally.Up != 1 || tally.Down != 1 {
		t.Fatalf("ожидали 1/1, получили %d/%d", tally.Up, tally.Down)
	}
}

func TestCastOnCommentUsesPostPseudonym(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	comment, _ := f.store.CreateComment(ctx, domain.Comment{Key: domain.NewKey(), PostKey: f.post.Key, Created: domain.Timestamp(time.Now())})

	vote, err := f.svc.Cast(ctx, comment, "author", domain.DirectionUp)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if vote.Pseudonym != domain.AuthorPseudonym || vote.EntityKey != comment.Key || vote.PostKey != f.post.Key {
		t.Fatalf("неожиданный голос: %+v", vote)
	}
	postTally, _ := f.svc.Tally(ctx, f.post)
	if postTally.Up != 0 {
		t.Fatalf("голос за комментарий не должен учитываться у поста")
	}
}

func TestRetract(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, _ = f.svc.Cast(ctx, f.post, "a", domain.DirectionUp)
	_, _ = f.svc.Cast(ctx, f.post, "a", domain.DirectionUp)
	_, _ = f.svc.Cast(ctx, f.post, "b", domain.DirectionUp)

	removed, err := f.svc.Retract(ctx, f.post, "a", domain.DirectionUp)
	if err != nil {
		t.Fatalf("retract: %v", err)
	}
	if removed != 2 {
		t.Fatalf("ожидали удаление 2 голосов, получили %d", removed)
	}
	tally, _ := f.svc.Tally(ctx, f.post)
	if tally.Up != 1 {
		t.Fatalf("голос b должен остаться")
	}

	removed, err = f.svc.Retract(ctx, f.post, "stranger", domain.DirectionDown)
	if err != nil || removed != 0 {
		t.Fatalf("ожидали 0 без ошибки, получили %d (%v)", removed, err)
	}
	stored, _ := f.store.GetPost(ctx, f.post.Key)
	if _, ok := stored.IdentityMap["stranger"]; ok {
		t.Fatalf("отзыв голоса не должен выдавать псевдоним")
	}
}

func TestCastUnknownPost(t *testing.T) {
	f := setup(t)
	missing := domain.Post{Key: "missing"}
	if _, err := f.svc.Cast(context.Background(), missing, "a", domain.DirectionUp); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestReconcile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	delta, err := f.svc.Reconcile(ctx, f.post, "a", domain.DirectionUp, 3)
	if err != nil || delta != 3 {
		t.Fatalf("ожидали +3, получили %d (%v)", delta, err)
	}
	delta, err = f.svc.Reconcile(ctx, f.post, "a", domain.DirectionUp, 1)
	if err != nil || delta != -2 {
		t.Fatalf("ожидали -2, получили %d (%v)", delta, err)
	}
	tally, _ := f.svc.Tally(ctx, f.post)
	if tally.Up != 1 {
		t.Fatalf("ожидали 1 голос, получили %d", tally.Up)
	}
	if len(f.notifier.entities) != 0 {
		t.Fatalf("сверка не должна попадать в ленты")
	}
	if _, err := f.svc.Reconcile(ctx, f.post, "a", domain.DirectionUp, -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput, получили %v", err)
	}
}
