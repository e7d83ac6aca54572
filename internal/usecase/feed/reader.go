package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// Tallier считает голоса за сущность.
type Tallier interface {
	Tally(ctx context.Context, entity domain.Votable) (domain.Tally, error)
}

// PostView содержит снимок поста на момент чтения.
type PostView struct {
	Post         domain.Post
	CommentCount int
	Tally        domain.Tally
}

// Entry описывает одну запись ленты.
type Entry struct {
	PostView
	// Cursor указывает на сам пост: (время создания, ключ).
	Cursor   string
	What     string
	WhatKind string
	At       time.Time
}

// Page содержит страницу ленты канала.
type Page struct {
	Entries []Entry
	// Next указывает на последнюю прочитанную запись журнала и продолжает чтение без пропусков.
	Next string
}

// UpdatesPage содержит изменения выбранных постов.
type UpdatesPage struct {
	Entries []Entry
	// Since передаётся следующим запросом, чтобы получить только новые изменения.
	Since time.Time
}

// Reader отдаёт ленту канала клиентам.
type Reader struct {
	index    *Index
	channels domain.ChannelRepo
	posts    domain.PostRepo
	comments domain.CommentRepo
	tallies  Tallier
	log      zerolog.Logger
}

// NewReader создаёт читателя лент.
func NewReader(index *Index, channels domain.ChannelRepo, posts domain.PostRepo, comments domain.CommentRepo, tallies Tallier, logger zerolog.Logger) *Reader {
	return &Reader{index: index, channels: channels, posts: posts, comments: comments, tallies: tallies, log: logger}
}

// ReadChannel возвращает страницу ленты канала от курсора rawCursor.
// Пустой или некорректный курсор означает текущий момент без ключа.
func (r *Reader) ReadChannel(ctx context.Context, channelKey, rawCursor string, count int) (Page, error) {
	start := time.Now()
	if _, err := r.channels.GetChannel(ctx, channelKey); err != nil {
		return Page{}, fmt.Errorf("канал %s: %w", channelKey, err)
	}
	now := domain.Timestamp(r.index.now())
	cursor := Cursor{Time: now}
	if rawCursor != "" {
		decoded, err := DecodeCursor(rawCursor)
		if err != nil {
			r.log.Warn().Err(err).Str("channel", channelKey).Msg("feed: некорректный курсор, читаем от текущего момента")
		} else {
			cursor = decoded
		}
	}

	updates, err := r.index.Scan(ctx, channelKey, cursor, count)
	if err != nil {
		return Page{}, err
	}
	forward, _ := r.index.normalize(count)

	page := Page{Next: EncodeCursor(cursor)}
	if len(updates) > 0 {
		last := updates[len(updates)-1]
		page.Next = EncodeCursor(Cursor{Time: last.Created, Key: last.Key})
	}
	page.Entries, err = r.entries(ctx, freshest(updates, forward), now)
	if err != nil {
		return Page{}, err
	}

	direction := "forward"
	if !forward {
		direction = "backward"
	}
	metrics.FeedReadSeconds.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	return page, nil
}

// UpdatesFor возвращает последние изменения выбранных постов начиная с since, по возрастанию времени.
// Пустой kinds означает все виды сущностей.
func (r *Reader) UpdatesFor(ctx context.Context, postKeys []string, since time.Time, kinds []string) (UpdatesPage, error) {
	now := domain.Timestamp(r.index.now())
	if len(postKeys) == 0 {
		return UpdatesPage{Entries: []Entry{}, Since: now}, nil
	}
	updates, err := r.index.updates.UpdatesForPosts(ctx, postKeys, since, now, kinds)
	if err != nil {
		return UpdatesPage{}, fmt.Errorf("изменения постов: %w", err)
	}
	entries, err := r.entries(ctx, freshest(updates, false), now)
	if err != nil {
		return UpdatesPage{}, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return UpdatesPage{Entries: entries, Since: now}, nil
}

// Snapshot собирает снимок поста: число видимых комментариев и голоса.
func (r *Reader) Snapshot(ctx context.Context, post domain.Post) (PostView, error) {
	return r.snapshot(ctx, post, domain.Timestamp(r.index.now()))
}

func (r *Reader) snapshot(ctx context.Context, post domain.Post, now time.Time) (PostView, error) {
	comments, err := r.comments.CountComments(ctx, post.Key, now)
	if err != nil {
		return PostView{}, fmt.Errorf("подсчёт комментариев: %w", err)
	}
	tally, err := r.tallies.Tally(ctx, post)
	if err != nil {
		return PostView{}, err
	}
	return PostView{Post: post, CommentCount: comments, Tally: tally}, nil
}

// entries превращает записи журнала в записи ленты, отбрасывая удалённые и будущие посты.
func (r *Reader) entries(ctx context.Context, updates []domain.Update, now time.Time) ([]Entry, error) {
	keys := make([]string, 0, len(updates))
	seen := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		if u.PostKey == "" {
			continue
		}
		if _, ok := seen[u.PostKey]; ok {
			continue
		}
		seen[u.PostKey] = struct{}{}
		keys = append(keys, u.PostKey)
	}
	posts, err := r.posts.GetPosts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("получение постов: %w", err)
	}
	byKey := make(map[string]domain.Post, len(posts))
	for _, p := range posts {
		byKey[p.Key] = p
	}

	views := make(map[string]PostView, len(posts))
	entries := make([]Entry, 0, len(updates))
	for _, u := range updates {
		if u.PostKey == "" {
			metrics.FeedEntriesDropped.WithLabelValues("no_post").Inc()
			continue
		}
		post, ok := byKey[u.PostKey]
		if !ok {
			metrics.FeedEntriesDropped.WithLabelValues("deleted").Inc()
			continue
		}
		if post.Created.After(now) {
			metrics.FeedEntriesDropped.WithLabelValues("future").Inc()
			continue
		}
		view, ok := views[post.Key]
		if !ok {
			view, err = r.snapshot(ctx, post, now)
			if err != nil {
				return nil, err
			}
			views[post.Key] = view
		}
		entries = append(entries, Entry{
			PostView: view,
			Cursor:   EncodeCursor(Cursor{Time: post.Created, Key: post.Key}),
			What:     u.What,
			WhatKind: u.WhatKind,
			At:       u.Created,
		})
	}
	return entries, nil
}

// freshest оставляет по одной, самой свежей записи на сущность и сохраняет порядок сканирования.
func freshest(updates []domain.Update, forward bool) []domain.Update {
	desc := make([]domain.Update, len(updates))
	copy(desc, updates)
	if forward {
		reverse(desc)
	}
	seen := make(map[string]struct{}, len(desc))
	kept := make([]domain.Update, 0, len(desc))
	for _, u := range desc {
		if _, ok := seen[u.What]; ok {
			continue
		}
		seen[u.What] = struct{}{}
		kept = append(kept, u)
	}
	if forward {
		reverse(kept)
	}
	return kept
}

func reverse(updates []domain.Update) {
	for i, j := 0, len(updates)-1; i < j; i, j = i+1, j-1 {
		updates[i], updates[j] = updates[j], updates[i]
	}
}
