package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	VotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "votes_total",
		Help: "Операции с голосами",
	}, []string{"operation", "direction"})

	PseudonymsAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pseudonyms_assigned_total",
		Help: "Новые псевдонимы, выданные в постах",
	})

	FanoutJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_jobs_total",
		Help: "Задачи фанаута по результату",
	}, []string{"stage", "status"})

	FeedReadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_read_seconds",
		Help:    "Время чтения ленты канала",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	FeedEntriesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_entries_dropped_total",
		Help: "Записи журнала, отброшенные при чтении ленты",
	}, []string{"reason"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		VotesTotal,
		PseudonymsAssigned,
		FanoutJobsTotal,
		FeedReadSeconds,
		FeedEntriesDropped,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFanout отмечает результат этапа фанаута.
func ObserveFanout(stage string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	FanoutJobsTotal.WithLabelValues(stage, status).Inc()
}
