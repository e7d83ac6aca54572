package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/queue"
	"insiderr-api/internal/usecase/feed"
)

type flakyQueue struct {
	failFor string
	jobs    []domain.UpdateJob
}

func (q *flakyQueue) Enqueue(_ context.Context, job domain.UpdateJob) error {
	if job.Channel == q.failFor {
		return errors.New("broker unavailable")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *flakyQueue) Receive(ctx context.Context) (domain.UpdateJob, domain.AckFunc, error) {
	<-ctx.Done()
	return domain.UpdateJob{}, nil, ctx.Err()
}

type countingAppender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *countingAppender) Append(context.Context, string, domain.Entity, time.Time) (domain.Update, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return domain.Update{}, a.err
}

func (a *countingAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestNotifySkipsFailedChannel(t *testing.T) {
	q := &flakyQueue{failFor: "b"}
	svc := NewService(q, zerolog.Nop())
	entity := domain.Entity{Key: "p1", Kind: domain.KindPost, PostKey: "p1"}

	n := svc.Notify(context.Background(), entity, []string{"a", "b", "c", "a", ""})
	if n != 2 {
		t.Fatalf("ожидали 2 задачи, получили %d", n)
	}
	if q.jobs[0].Channel != "a" || q.jobs[1].Channel != "c" {
		t.Fatalf("неожиданные каналы: %+v", q.jobs)
	}
	if q.jobs[0].What != "p1" || q.jobs[0].WhatKind != domain.KindPost || q.jobs[0].ID == q.jobs[1].ID {
		t.Fatalf("неожиданная задача: %+v", q.jobs[0])
	}
	if !q.jobs[0].Time.Equal(q.jobs[1].Time) {
		t.Fatalf("все задачи одного изменения должны иметь одно время")
	}
}

func TestHandleSkipsUnknownChannelAndDeletedPost(t *testing.T) {
	store := memstore.New()
	ch, _ := store.CreateChannel(context.Background(), "general")
	appender := &countingAppender{}
	w := NewWorker(queue.NewMemoryUpdateQueue(1), store, store, appender, 1, 3, zerolog.Nop())

	if err := w.Handle(context.Background(), domain.UpdateJob{Channel: "missing", What: "x"}); err != nil {
		t.Fatalf("неизвестный канал не должен быть ошибкой: %v", err)
	}
	if err := w.Handle(context.Background(), domain.UpdateJob{Channel: ch.Key, What: "c1", PostKey: "gone"}); err != nil {
		t.Fatalf("удалённый пост не должен быть ошибкой: %v", err)
	}
	if appender.count() != 0 {
		t.Fatalf("запись в журнал не ожидалась")
	}
	if err := w.Handle(context.Background(), domain.UpdateJob{Channel: ch.Key, What: ch.Key, WhatKind: domain.KindChannel}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if appender.count() != 1 {
		t.Fatalf("ожидали одну запись")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("условие не выполнилось вовремя")
}

func TestWorkerAppendsToChannelIndex(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := store.CreateChannel(ctx, "general")
	post, _ := store.CreatePost(ctx, domain.Post{Key: "p1", Channels: []string{ch.Key}, Created: time.Now()})

	q := queue.NewMemoryUpdateQueue(8)
	index := feed.NewIndex(store, 0, 0)
	svc := NewService(q, zerolog.Nop())
	w := NewWorker(q, store, store, index, 2, 3, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	svc.Notify(ctx, domain.Entity{Key: post.Key, Kind: domain.KindPost, PostKey: post.Key}, post.Channels)

	waitFor(t, func() bool {
		updates, _ := store.ScanUpdates(ctx, domain.UpdateQuery{ChannelKey: ch.Key, Forward: true, Until: time.Now().Add(time.Hour)})
		return len(updates) == 1
	})
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}

func TestWorkerDropsAfterMaxAttempts(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := store.CreateChannel(ctx, "general")

	q := queue.NewMemoryUpdateQueue(8)
	appender := &countingAppender{err: errors.New("db down")}
	w := NewWorker(q, store, store, appender, 1, 3, zerolog.Nop())
	go func() { _ = w.Run(ctx) }()

	if err := q.Enqueue(ctx, domain.UpdateJob{ID: "j1", Channel: ch.Key, What: ch.Key}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return appender.count() == 3 && q.Len() == 0 })
	time.Sleep(50 * time.Millisecond)
	if appender.count() != 3 {
		t.Fatalf("ожидали ровно 3 попытки, получили %d", appender.count())
	}
}

func TestWorkerStopsWhenQueueClosed(t *testing.T) {
	store := memstore.New()
	q := queue.NewMemoryUpdateQueue(1)
	w := NewWorker(q, store, store, &countingAppender{}, 2, 1, zerolog.Nop())
	q.Close()
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("ожидали штатную остановку, получили %v", err)
	}
}

// gatedAppender задерживает первую запись до сигнала и завершает её ошибкой.
type gatedAppender struct {
	countingAppender
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *gatedAppender) Append(ctx context.Context, channel string, entity domain.Entity, at time.Time) (domain.Update, error) {
	first := false
	a.once.Do(func() { first = true })
	if first {
		close(a.started)
		<-a.release
		a.mu.Lock()
		a.calls++
		a.mu.Unlock()
		return domain.Update{}, errors.New("temporary failure")
	}
	return a.countingAppender.Append(ctx, channel, entity, at)
}

func TestWorkerRetryDoesNotStallOnFullQueue(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := store.CreateChannel(ctx, "general")

	q := queue.NewMemoryUpdateQueue(1)
	appender := &gatedAppender{started: make(chan struct{}), release: make(chan struct{})}
	w := NewWorker(q, store, store, appender, 1, 3, zerolog.Nop())
	go func() { _ = w.Run(ctx) }()

	if err := q.Enqueue(ctx, domain.UpdateJob{ID: "a", Channel: ch.Key, What: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-appender.started
	if err := q.Enqueue(ctx, domain.UpdateJob{ID: "b", Channel: ch.Key, What: "b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	close(appender.release)

	waitFor(t, func() bool { return appender.count() == 3 })

	notifyCtx, notifyCancel := context.WithTimeout(ctx, time.Second)
	defer notifyCancel()
	if n := NewService(q, zerolog.Nop()).Notify(notifyCtx, domain.Entity{Key: "c", Kind: domain.KindChannel}, []string{ch.Key}); n != 1 {
		t.Fatalf("очередь должна принимать новые задачи, поставлено %d", n)
	}
	waitFor(t, func() bool { return appender.count() == 4 })
}

type recoveringQueue struct {
	*queue.MemoryUpdateQueue
	recovered int
}

func (q *recoveringQueue) Recover(context.Context) (int, error) {
	q.recovered++
	return 0, nil
}

func TestWorkerRecoversQueueBeforeConsuming(t *testing.T) {
	store := memstore.New()
	q := &recoveringQueue{MemoryUpdateQueue: queue.NewMemoryUpdateQueue(1)}
	q.Close()
	w := NewWorker(q, store, store, &countingAppender{}, 1, 1, zerolog.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if q.recovered != 1 {
		t.Fatalf("ожидали один вызов Recover, получили %d", q.recovered)
	}
}

func TestHandleReportsSkipIndex(t *testing.T) {
	store := memstore.New()
	appender := &countingAppender{}
	w := NewWorker(queue.NewMemoryUpdateQueue(1), store, store, appender, 1, 3, zerolog.Nop())

	for _, job := range []domain.UpdateJob{
		{Task: domain.TaskFlag, What: "p1", WhatKind: domain.KindPost, PostKey: "p1"},
		{Task: domain.TaskFeedback, What: "f1", UserID: "u1", Content: "hi"},
	} {
		if err := w.Handle(context.Background(), job); err != nil {
			t.Fatalf("%s: %v", job.Task, err)
		}
	}
	if appender.count() != 0 {
		t.Fatalf("жалобы и отзывы не должны попадать в журналы каналов")
	}
}
