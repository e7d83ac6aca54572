package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"insiderr-api/internal/adapters/memstore"
	"insiderr-api/internal/adapters/repo"
	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/cache"
	"insiderr-api/internal/infra/config"
	"insiderr-api/internal/infra/db"
	"insiderr-api/internal/infra/queue"
	"insiderr-api/internal/usecase/accounts"
	"insiderr-api/internal/usecase/channels"
	"insiderr-api/internal/usecase/fanout"
	"insiderr-api/internal/usecase/feed"
	"insiderr-api/internal/usecase/identity"
	"insiderr-api/internal/usecase/posts"
	"insiderr-api/internal/usecase/reports"
	"insiderr-api/internal/usecase/votes"
)

// App собирает хранилище, очередь и сервисы по конфигурации.
type App struct {
	Store domain.Store
	Queue domain.UpdateQueue
	// Replies хранит ответы для повторных запросов; nil, если Redis не настроен.
	Replies domain.Cache

	Accounts *accounts.Service
	Channels *channels.Service
	Identity *identity.Service
	Votes    *votes.Service
	Posts    *posts.Service
	Fanout   *fanout.Service
	Index    *feed.Index
	Reader   *feed.Reader
	Reports  *reports.Service
	Worker   *fanout.Worker

	closers []func()
}

// Open подключает внешние зависимости и создаёт сервисы.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{}
	store, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.Close()
			return nil, fmt.Errorf("подключение к redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Replies = cache.NewRedis(client, "reply:")
	}

	q, err := a.openQueue(cfg, client)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = q

	a.Fanout = fanout.NewService(q, logger.With().Str("component", "fanout").Logger())
	a.Identity = identity.NewService(store, cfg.Identity.MaxProbes, cfg.Identity.Space, logger.With().Str("component", "identity").Logger())
	a.Channels = channels.NewService(store, logger.With().Str("component", "channels").Logger())
	a.Accounts = accounts.NewService(store, store, cfg.PubKeySalt, logger.With().Str("component", "accounts").Logger())
	a.Votes = votes.NewService(store, store, a.Identity, a.Fanout, logger.With().Str("component", "votes").Logger())
	a.Posts = posts.NewService(store, a.Identity, a.Channels, a.Votes, a.Fanout, logger.With().Str("component", "posts").Logger())
	a.Index = feed.NewIndex(store, cfg.Feed.DefaultCount, cfg.Feed.MaxCount)
	a.Reader = feed.NewReader(a.Index, store, store, store, a.Votes, logger.With().Str("component", "feed").Logger())
	a.Reports = reports.NewService(store, store, store, q, logger.With().Str("component", "reports").Logger())
	a.Worker = fanout.NewWorker(q, store, store, a.Index, cfg.Fanout.Workers, cfg.Fanout.MaxAttempts, logger.With().Str("component", "fanout_worker").Logger())
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.Store, error) {
	switch cfg.Storage {
	case "memory":
		return memstore.New(), nil
	case "postgres":
		pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConn)
		if err != nil {
			return nil, fmt.Errorf("подключение к БД: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := repo.Migrate(ctx, pool, logger); err != nil {
			return nil, fmt.Errorf("миграции: %w", err)
		}
		return repo.NewPostgres(pool), nil
	}
	return nil, fmt.Errorf("неизвестное хранилище %q", cfg.Storage)
}

func (a *App) openQueue(cfg config.AppConfig, client *redis.Client) (domain.UpdateQueue, error) {
	switch cfg.Fanout.Backend {
	case "memory":
		q := queue.NewMemoryUpdateQueue(cfg.Fanout.QueueSize)
		a.closers = append(a.closers, q.Close)
		return q, nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("очередь redis требует REDIS_ADDR")
		}
		return queue.NewRedisUpdateQueue(client, cfg.Fanout.QueueKey), nil
	case "rabbitmq":
		q, err := queue.NewRabbitUpdateQueue(cfg.RabbitURL, cfg.Fanout.QueueKey, cfg.Fanout.Workers)
		if err != nil {
			return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
		}
		a.closers = append(a.closers, func() { _ = q.Close() })
		return q, nil
	}
	return nil, fmt.Errorf("неизвестная очередь %q", cfg.Fanout.Backend)
}

// InProcessFanout сообщает, что задачи фанаута должны обрабатываться внутри API.
func (a *App) InProcessFanout(cfg config.AppConfig) bool {
	return cfg.Fanout.Backend == "memory"
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
