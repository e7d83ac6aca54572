package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"insiderr-api/internal/app"
	"insiderr-api/internal/infra/config"
	applog "insiderr-api/internal/infra/log"
	"insiderr-api/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "fanout")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Fanout.Backend == "memory" {
		logger.Fatal().Msg("fanout: очередь memory обрабатывается внутри api, задайте QUEUE_BACKEND=redis или rabbitmq")
	}

	application, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("fanout: не удалось инициализировать зависимости")
	}
	defer application.Close()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Int("workers", cfg.Fanout.Workers).Str("backend", cfg.Fanout.Backend).Msg("fanout: старт")
	if err := application.Worker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("fanout: воркер остановлен с ошибкой")
	}
	logger.Info().Msg("fanout: остановка")
}
