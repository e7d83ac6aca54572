package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/domain"
	"insiderr-api/internal/usecase/channels"
	"insiderr-api/internal/usecase/identity"
	"insiderr-api/internal/usecase/votes"
)

type recordingNotifier struct{ kinds []string }

func (n *recordingNotifier) Notify(_ context.Context, entity domain.Entity, channels []string) int {
	n.kinds = append(n.kinds, entity.Kind)
	return len(channels)
}

type fixture struct {
	store    *memstore.Store
	svc      *Service
	votes    *votes.Service
	notifier *recordingNotifier
	channel  domain.Channel
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	logger := zerolog.Nop()
	chans := channels.NewService(store, logger)
	ch, err := chans.Create(context.Background(), "general")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	ids := identity.NewService(store, 0, 0, logger)
	notifier := &recordingNotifier{}
	voteSvc := votes.NewService(store, store, ids, notifier, logger)
	return fixture{
		store:    store,
		svc:      NewService(store, ids, chans, voteSvc, notifier, logger),
		votes:    voteSvc,
		notifier: notifier,
		channel:  ch,
	}
}

func TestCommentPseudonyms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := domain.User{ID: "author"}
	post, err := f.svc.CreatePost(ctx, author, NewPost{Content: "hello", Channels: []string{f.channel.Key}})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	a1, err := f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "first"})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	b, _ := f.svc.AddComment(ctx, post.Key, domain.User{ID: "b"}, NewComment{Content: "second"})
	a2, _ := f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "third"})
	own, _ := f.svc.AddComment(ctx, post.Key, author, NewComment{Content: "reply"})

	if a1.Pseudonym != a2.Pseudonym {
		t.Fatalf("псевдоним A должен совпадать: %d != %d", a1.Pseudonym, a2.Pseudonym)
	}
	if a1.Pseudonym == b.Pseudonym || a1.Pseudonym == 0 || b.Pseudonym == 0 {
		t.Fatalf("ожидали разные ненулевые псевдонимы")
	}
	if own.Pseudonym != domain.AuthorPseudonym {
		t.Fatalf("автор комментирует под псевдонимом 0")
	}
	if len(f.notifier.kinds) != 5 || f.notifier.kinds[0] != domain.KindPost || f.notifier.kinds[1] != domain.KindComment {
		t.Fatalf("неожиданные уведомления: %v", f.notifier.kinds)
	}

	list, err := f.svc.ListComments(ctx, post.Key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("ожидали 4 комментария, получили %d", len(list))
	}
}

func TestListCommentsHidesFuture(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, _ := f.svc.CreatePost(ctx, domain.User{ID: "author"}, NewPost{Content: "hello", Channels: []string{f.channel.Key}})
	_, _ = f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "later", Created: time.Now().Add(time.Hour)})
	c, _ := f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "now"})
	if _, err := f.votes.Cast(ctx, c, "b", domain.DirectionUp); err != nil {
		t.Fatalf("cast: %v", err)
	}

	list, _ := f.svc.ListComments(ctx, post.Key)
	if len(list) != 1 || list[0].Comment.Key != c.Key || list[0].Tally.Up != 1 {
		t.Fatalf("ожидали один опубликованный комментарий с голосом, получили %+v", list)
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := domain.User{ID: "u"}
	if _, err := f.svc.CreatePost(ctx, user, NewPost{Content: "  ", Channels: []string{f.channel.Key}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput, получили %v", err)
	}
	if _, err := f.svc.CreatePost(ctx, user, NewPost{Content: "x"}); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("ожидали ErrNoChannels, получили %v", err)
	}
	if _, err := f.svc.CreatePost(ctx, user, NewPost{Content: "x", Channels: []string{"nope"}}); !errors.Is(err, channels.ErrUnknownChannel) {
		t.Fatalf("ожидали ErrUnknownChannel, получили %v", err)
	}
	if _, err := f.svc.AddComment(ctx, "missing", user, NewComment{Content: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestVotableResolvesPostAndComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, _ := f.svc.CreatePost(ctx, domain.User{ID: "author"}, NewPost{Content: "hello", Channels: []string{f.channel.Key}})
	c, _ := f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "x"})

	v, err := f.svc.Votable(ctx, post.Key)
	if err != nil || v.OwningPostKey() != post.Key {
		t.Fatalf("ожидали пост, получили %v (%v)", v, err)
	}
	v, err = f.svc.Votable(ctx, c.Key)
	if err != nil || v.VotableKey() != c.Key || v.OwningPostKey() != post.Key {
		t.Fatalf("ожидали комментарий, получили %v (%v)", v, err)
	}
	if _, err := f.svc.Votable(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestDeletePostCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post, _ := f.svc.CreatePost(ctx, domain.User{ID: "author"}, NewPost{Content: "hello", Channels: []string{f.channel.Key}})
	c, _ := f.svc.AddComment(ctx, post.Key, domain.User{ID: "a"}, NewComment{Content: "x"})
	_, _ = f.votes.Cast(ctx, post, "a", domain.DirectionUp)
	_, _ = f.votes.Cast(ctx, c, "b", domain.DirectionDown)
	_, _ = f.store.InsertUpdate(ctx, domain.Update{Key: "u1", What: post.Key, PostKey: post.Key, ChannelKey: f.channel.Key, Created: post.Created})
	_, _ = f.store.CreateFlag(ctx, domain.Flag{Key: "f1", EntityKey: c.Key, EntityKind: domain.KindComment, PostKey: post.Key, Created: post.Created})

	if err := f.svc.DeletePost(ctx, post.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.store.GetPost(ctx, post.Key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("пост должен быть удалён")
	}
	if _, err := f.store.GetComment(ctx, c.Key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("комментарий должен быть удалён")
	}
	if n, _ := f.store.CountVotes(ctx, c.Key, domain.DirectionDown); n != 0 {
		t.Fatalf("голоса за комментарий должны быть удалены")
	}
	updates, _ := f.store.ScanUpdates(ctx, domain.UpdateQuery{ChannelKey: f.channel.Key, Forward: true, Until: time.Now().Add(time.Hour)})
	if len(updates) != 0 {
		t.Fatalf("записи журнала должны быть удалены")
	}
	if flags, _ := f.store.ListFlags(ctx, c.Key); len(flags) != 0 {
		t.Fatalf("жалобы должны быть удалены")
	}
	if err := f.svc.DeletePost(ctx, post.Key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}
