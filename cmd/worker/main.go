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

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/cvgram/internal/bootstrap"
	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/observability/logging"
	"github.com/kirillkom/cvgram/internal/observability/metrics"
)

const (
	serviceName    = "cvgram-worker"
	processTimeout = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		NATSClientName: serviceName,
		OnIngested: func(rec domain.CvRecord) {
			workerMetrics.ObserveKeywords(serviceName, len(rec.Keywords))
			workerMetrics.ObserveQueueLag(serviceName, time.Since(rec.UploadedAt))
		},
		OnRetry: func(operation string, _ int, _ error) {
			workerMetrics.ObserveRetry(serviceName, operation)
		},
		OnRepublished: func(count int) {
			workerMetrics.ObserveRepublished(serviceName, count)
		},
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	slots := semaphore.NewWeighted(int64(concurrency))

	go app.RunPendingSweep(ctx)

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", concurrency)
	err = app.Queue.SubscribeCvUploaded(ctx, func(handlerCtx context.Context, storageKey string) error {
		if err := slots.Acquire(ctx, 1); err != nil {
			return err
		}
		// the subscription delivers serially, so work is handed off to
		// keep up to WorkerConcurrency ingestions running
		go func() {
			defer slots.Release(1)

			processCtx, cancel := context.WithTimeout(context.WithoutCancel(handlerCtx), processTimeout)
			defer cancel()

			workerMetrics.StartIngestion()
			start := time.Now()
			err := app.Processor.ProcessByKey(processCtx, storageKey)
			workerMetrics.FinishIngestion(serviceName, time.Since(start), err)
			if err != nil {
				logger.Error("cv_ingestion_failed", "storage_key", storageKey, "error", err)
				return
			}
			logger.Info("cv_ingested", "storage_key", storageKey)
		}()
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	// wait for running ingestions before closing connections
	_ = slots.Acquire(context.Background(), int64(concurrency))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
