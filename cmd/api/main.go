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

	httpadapter "github.com/kirillkom/cvgram/internal/adapters/http"
	"github.com/kirillkom/cvgram/internal/bootstrap"
	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/observability/logging"
	"github.com/kirillkom/cvgram/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("cvgram-api", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{NATSClientName: "cvgram-api"})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The memory catalog lives in this process only, so ingestion runs here.
	if cfg.CatalogBackend == config.CatalogMemory {
		go func() {
			err := app.Queue.SubscribeCvUploaded(ctx, func(handlerCtx context.Context, storageKey string) error {
				return app.Processor.ProcessByKey(handlerCtx, storageKey)
			})
			if err != nil {
				logger.Error("embedded_worker_failed", "error", err)
			}
		}()
		go app.RunPendingSweep(ctx)
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Catalog:   app.Catalog,
		Uploader:  app.Uploader,
		Downloads: app.Downloads,
		Identity:  app.Identity,
		Blobs:     app.Blobs,
		Metrics:   metrics.NewHTTPServerMetrics("cvgram-api"),
	})
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr, "catalog", cfg.CatalogBackend, "storage", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}
}
