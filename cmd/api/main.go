package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"

	"insiderr-api/internal/adapters/httpapi"
	"insiderr-api/internal/app"
	"insiderr-api/internal/infra/config"
	httpinfra "insiderr-api/internal/infra/http"
	applog "insiderr-api/internal/infra/log"
	"insiderr-api/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать зависимости")
	}
	defer application.Close()

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	httpapi.New(httpapi.Deps{
		Accounts: application.Accounts,
		Posts:    application.Posts,
		Votes:    application.Votes,
		Channels: application.Channels,
		Reader:   application.Reader,
		Reports:  application.Reports,
		Cache:    application.Replies,
		CacheTTL: cfg.ReplyCacheTTL,
		Log:      logger.With().Str("component", "httpapi").Logger(),
	}).Mount(server.Router)

	var wg conc.WaitGroup
	if application.InProcessFanout(cfg) {
		wg.Go(func() {
			if err := application.Worker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("api: фанаут остановлен")
			}
		})
	}
	wg.Go(func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	})

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
	wg.Wait()
}
