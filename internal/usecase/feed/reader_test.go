package feed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type storeTallier struct{ store *memstore.Store }

func (s storeTallier) Tally(ctx context.Context, entity domain.Votable) (domain.Tally, error) {
	up, _ := s.store.CountVotes(ctx, entity.VotableKey(), domain.DirectionUp)
	down, _ := s.store.CountVotes(ctx, entity.VotableKey(), domain.DirectionDown)
	return domain.Tally{Up: up, Down: down}, nil
}

type fixture struct {
	store   *memstore.Store
	index   *Index
	reader  *Reader
	channel domain.Channel
}

func setup(t *testing.T, now time.Time) fixture {
	t.Helper()
	store := memstore.New()
	ch, err := store.CreateChannel(context.Background(), "general")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	idx := NewIndex(store, 0, 0)
	idx.now = func() time.Time { return now }
	reader := NewReader(idx, store, store, store, storeTallier{store: store}, zerolog.Nop())
	return fixture{store: store, index: idx, reader: reader, channel: ch}
}

func (f fixture) post(t *testing.T, content string, created time.Time) domain.Post {
	t.Helper()
	p, err := f.store.CreatePost(context.Background(), domain.Post{
		Key:         domain.NewKey(),
		AuthorID:    "author",
		Content:     content,
		Channels:    []string{f.channel.Key},
		IdentityMap: map[string]int{"author": 0},
		Created:     domain.Timestamp(created),
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func (f fixture) insert(t *testing.T, key, what, kind, postKey string, at time.Time) {
	t.Helper()
	_, err := f.store.InsertUpdate(context.Background(), domain.Update{
		Key: key, Created: at, What: what, WhatKind: kind, PostKey: postKey, ChannelKey: f.channel.Key,
	})
	if err != nil {
		t.Fatalf("insert update: %v", err)
	}
}

func TestReadChannelPostLifecycle(t *testing.T) {
	f := setup(t, t0.Add(time.Minute))
	ctx := context.Background()
	post := f.post(t, "hello world", t0)
	if _, err := f.index.Append(ctx, f.channel.Key, domain.Entity{Key: post.Key, Kind: domain.KindPost, PostKey: post.Key}, t0); err != nil {
		t.Fatalf("append: %v", err)
	}

	since := EncodeCursor(Cursor{Time: t0.Add(-time.Second)})
	page, err := f.reader.ReadChannel(ctx, f.channel.Key, since, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", len(page.Entries))
	}
	entry := page.Entries[0]
	if entry.Post.Content != "hello world" || entry.WhatKind != domain.KindPost {
		t.Fatalf("неожиданная запись: %+v", entry)
	}
	if entry.Cursor != EncodeCursor(Cursor{Time: post.Created, Key: post.Key}) {
		t.Fatalf("курсор записи должен указывать на пост, получили %s", entry.Cursor)
	}

	if err := f.store.DeletePost(ctx, post.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	page, err = f.reader.ReadChannel(ctx, f.channel.Key, since, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Fatalf("удалённый пост не должен попадать в ленту, получили %d", len(page.Entries))
	}
}

func TestReadChannelKeepsFreshestPerEntity(t *testing.T) {
	f := setup(t, t0.Add(time.Hour))
	ctx := context.Background()
	p1 := f.post(t, "one", t0)
	p2 := f.post(t, "two", t0)
	f.insert(t, "u1", p1.Key, domain.KindPost, p1.Key, t0.Add(1*time.Second))
	f.insert(t, "u2", p2.Key, domain.KindPost, p2.Key, t0.Add(2*time.Second))
	f.insert(t, "u3", p1.Key, domain.KindPost, p1.Key, t0.Add(3*time.Second))

	page, err := f.reader.ReadChannel(ctx, f.channel.Key, EncodeCursor(Cursor{Time: t0}), 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(page.Entries))
	}
	if page.Entries[0].What != p2.Key || page.Entries[1].What != p1.Key {
		t.Fatalf("ожидали порядок p2, p1")
	}
	if !page.Entries[1].At.Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("должна остаться самая свежая запись, получили %s", page.Entries[1].At)
	}
	if page.Next != EncodeCursor(Cursor{Time: t0.Add(3 * time.Second), Key: "u3"}) {
		t.Fatalf("неожиданный курсор продолжения: %s", page.Next)
	}

	back, err := f.reader.ReadChannel(ctx, f.channel.Key, "", -10)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(back.Entries) != 2 || back.Entries[0].What != p1.Key {
		t.Fatalf("обратное чтение должно начинаться с самой свежей записи")
	}
}

func TestReadChannelTieBreakResumesWithoutGaps(t *testing.T) {
	f := setup(t, t0.Add(time.Hour))
	ctx := context.Background()
	posts := []domain.Post{f.post(t, "a", t0), f.post(t, "b", t0), f.post(t, "c", t0)}
	for i, key := range []string{"ka", "kb", "kc"} {
		f.insert(t, key, posts[i].Key, domain.KindPost, posts[i].Key, t0)
	}

	cursor := EncodeCursor(Cursor{Time: t0})
	var got []string
	for i := 0; i < 4; i++ {
		page, err := f.reader.ReadChannel(ctx, f.channel.Key, cursor, 1)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, e := range page.Entries {
			got = append(got, e.Post.Content)
		}
		cursor = page.Next
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("ожидали a b c без повторов, получили %v", got)
	}
}

func TestReadChannelHidesFuture(t *testing.T) {
	now := t0.Add(time.Minute)
	f := setup(t, now)
	ctx := context.Background()
	visible := f.post(t, "visible", t0)
	backdated := f.post(t, "scheduled", now.Add(time.Hour))
	f.insert(t, "u1", visible.Key, domain.KindPost, visible.Key, t0)
	f.insert(t, "u2", backdated.Key, domain.KindPost, backdated.Key, now.Add(time.Hour))
	f.insert(t, "u3", backdated.Key, domain.KindComment, backdated.Key, t0.Add(time.Second))

	page, err := f.reader.ReadChannel(ctx, f.channel.Key, EncodeCursor(Cursor{Time: t0}), 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].Post.Key != visible.Key {
		t.Fatalf("ожидали только видимый пост, получили %d записей", len(page.Entries))
	}
}

func TestReadChannelInvalidCursorReadsFromNow(t *testing.T) {
	f := setup(t, t0.Add(time.Minute))
	ctx := context.Background()
	p := f.post(t, "one", t0)
	f.insert(t, "u1", p.Key, domain.KindPost, p.Key, t0)

	page, err := f.reader.ReadChannel(ctx, f.channel.Key, "not-a-cursor", 10)
	if err != nil {
		t.Fatalf("некорректный курсор не должен быть ошибкой: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Fatalf("чтение вперёд от текущего момента должно быть пустым")
	}
	page, err = f.reader.ReadChannel(ctx, f.channel.Key, "not-a-cursor", -10)
	if err != nil || len(page.Entries) != 1 {
		t.Fatalf("ожидали 1 запись при чтении назад, получили %d (%v)", len(page.Entries), err)
	}
}

func TestReadChannelSnapshotCounts(t *testing.T) {
	now := t0.Add(time.Minute)
	f := setup(t, now)
	ctx := context.Background()
	p := f.post(t, "one", t0)
	f.insert(t, "u1", p.Key, domain.KindPost, p.Key, t0)
	_, _ = f.store.CreateComment(ctx, domain.Comment{Key: "c1", PostKey: p.Key, Created: t0})
	_, _ = f.store.CreateComment(ctx, domain.Comment{Key: "c2", PostKey: p.Key, Created: now.Add(time.Hour)})
	_, _ = f.store.InsertVote(ctx, domain.Vote{Key: "v1", EntityKey: p.Key, PostKey: p.Key, Direction: domain.DirectionUp, Pseudonym: 1})
	_, _ = f.store.InsertVote(ctx, domain.Vote{Key: "v2", EntityKey: p.Key, PostKey: p.Key, Direction: domain.DirectionDown, Pseudonym: 2})
	_, _ = f.store.InsertVote(ctx, domain.Vote{Key: "v3", EntityKey: "c1", PostKey: p.Key, Direction: domain.DirectionUp, Pseudonym: 2})

	page, err := f.reader.ReadChannel(ctx, f.channel.Key, "", -10)
	if err != nil || len(page.Entries) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d (%v)", len(page.Entries), err)
	}
	e := page.Entries[0]
	if e.CommentCount != 1 || e.Tally.Up != 1 || e.Tally.Down != 1 {
		t.Fatalf("неожиданный снимок: comments=%d up=%d down=%d", e.CommentCount, e.Tally.Up, e.Tally.Down)
	}
}

func TestReadChannelUnknownChannel(t *testing.T) {
	f := setup(t, t0)
	if _, err := f.reader.ReadChannel(context.Background(), "missing", "", 10); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного канала")
	}
}

func TestScanCapsCount(t *testing.T) {
	f := setup(t, t0.Add(time.Hour))
	f.index.maxCount = 2
	for i, key := range []string{"a", "b", "c"} {
		f.insert(t, key, key, domain.KindChannel, "", t0.Add(time.Duration(i)*time.Second))
	}
	updates, err := f.index.Scan(context.Background(), f.channel.Key, Cursor{Time: t0}, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(updates) != 2 || updates[0].Key != "a" || updates[1].Key != "b" {
		t.Fatalf("ожидали a, b")
	}
	updates, _ = f.index.Scan(context.Background(), f.channel.Key, Cursor{Time: t0.Add(2 * time.Second), Key: "c"}, -10)
	if len(updates) != 2 || updates[0].Key != "b" || updates[1].Key != "a" {
		t.Fatalf("ожидали b, a при чтении назад строго до курсора")
	}
}

func TestUpdatesFor(t *testing.T) {
	f := setup(t, t0.Add(time.Hour))
	ctx := context.Background()
	p1 := f.post(t, "one", t0)
	p2 := f.post(t, "two", t0)
	gone := "deleted-post"
	f.insert(t, "u1", "c1", domain.KindComment, p1.Key, t0.Add(3*time.Second))
	f.insert(t, "u2", "v1", domain.KindUpVote, p2.Key, t0.Add(1*time.Second))
	f.insert(t, "u3", "c1", domain.KindComment, p1.Key, t0.Add(2*time.Second))
	f.insert(t, "u4", "c9", domain.KindComment, gone, t0.Add(2*time.Second))
	f.insert(t, "u5", "c0", domain.KindComment, p1.Key, t0.Add(-time.Second))

	page, err := f.reader.UpdatesFor(ctx, []string{p1.Key, p2.Key, gone}, t0, nil)
	if err != nil {
		t.Fatalf("updates: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(page.Entries))
	}
	if page.Entries[0].What != "v1" || page.Entries[1].What != "c1" || !page.Entries[1].At.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("неожиданный порядок: %s, %s", page.Entries[0].What, page.Entries[1].What)
	}
	if !page.Since.Equal(t0.Add(time.Hour)) {
		t.Fatalf("ожидали since = момент чтения")
	}

	page, _ = f.reader.UpdatesFor(ctx, []string{p1.Key, p2.Key}, t0, []string{domain.KindUpVote})
	if len(page.Entries) != 1 || page.Entries[0].What != "v1" {
		t.Fatalf("фильтр по виду не сработал")
	}
}
