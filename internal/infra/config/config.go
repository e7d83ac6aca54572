package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Storage выбирает хранилище: postgres или memory.
	Storage   string `envconfig:"STORAGE" default:"postgres"`
	PGDSN     string `envconfig:"PG_DSN"`
	PGMaxConn int32  `envconfig:"PG_MAX_CONNS" default:"10"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Fanout struct {
		// Backend выбирает очередь: memory, redis или rabbitmq.
		Backend     string `envconfig:"QUEUE_BACKEND" default:"memory"`
		QueueKey    string `envconfig:"FANOUT_QUEUE_KEY" default:"update_jobs"`
		Workers     int    `envconfig:"FANOUT_WORKERS" default:"4"`
		QueueSize   int    `envconfig:"FANOUT_QUEUE_SIZE" default:"1024"`
		MaxAttempts int    `envconfig:"FANOUT_MAX_ATTEMPTS" default:"5"`
	} `envconfig:""`

	Identity struct {
		MaxProbes int `envconfig:"PSEUDONYM_MAX_PROBES" default:"1000"`
		Space     int `envconfig:"PSEUDONYM_SPACE" default:"1000000"`
	} `envconfig:""`

	Feed struct {
		DefaultCount int `envconfig:"FEED_DEFAULT_COUNT" default:"100"`
		MaxCount     int `envconfig:"FEED_MAX_COUNT" default:"500"`
	} `envconfig:""`

	ReplyCacheTTL time.Duration `envconfig:"REPLY_CACHE_TTL" default:"60s"`
	PubKeySalt    string        `envconfig:"PUBKEY_SALT" default:"/8uVjwsTUDgiFkDt"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
