package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/bootstrap"
	"github.com/kirillkom/movie-search-assistant/internal/config"
	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/observability/logging"
	"github.com/kirillkom/movie-search-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := bootstrap.NewQueue(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer queue.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = queue.SubscribeAnswered(ctx, func(_ context.Context, event domain.AnswerEvent) error {
		workerMetrics.StartEvent()
		workerMetrics.FinishEvent(serviceName, string(event.Source), event.Strategy, event.Duration)
		if !event.AnsweredAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.AnsweredAt))
		}
		slog.Debug("answer_event_recorded",
			"session_id", event.SessionID,
			"source", event.Source,
			"strategy", event.Strategy,
			"hit_count", event.HitCount,
		)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
