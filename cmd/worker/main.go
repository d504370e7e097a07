package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/bootstrap"
	"github.com/kirillkom/action-orchestrator/internal/config"
	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/observability/logging"
	"github.com/kirillkom/action-orchestrator/internal/observability/metrics"
)

const conversionTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	worker, err := bootstrap.NewWorker(ctx, cfg, workerMetrics)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
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

	slog.Info("worker_subscribed", "subject_prefix", cfg.NATSSubjectPrefix, "queue_group", cfg.NATSQueueGroup)
	err = worker.Events.SubscribeDraftEvents(ctx, func(handlerCtx context.Context, event domain.DraftEvent) error {
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveEventLag(time.Since(event.OccurredAt))
		}
		processCtx, cancel := context.WithTimeout(logging.WithAttrs(handlerCtx, "draft_id", event.DraftID), conversionTimeout)
		defer cancel()

		workerMetrics.StartConversion()
		start := time.Now()
		err := worker.Conversion.ProcessApproved(processCtx, event)
		workerMetrics.FinishConversion(time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
