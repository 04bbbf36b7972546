package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/cvgram/internal/core/ports"
)

const DefaultPendingAge = 2 * time.Minute

type RepublishOptions struct {
	// OnRepublished is called after each sweep that re-sent events.
	OnRepublished func(count int)
}

// RepublishUseCase re-publishes upload events for records that stayed
// pending longer than pendingAge. Ingestion skips records that are no
// longer pending, so a duplicate event costs one catalog lookup.
type RepublishUseCase struct {
	catalog    ports.CatalogService
	queue      ports.MessageQueue
	pendingAge time.Duration
	options    RepublishOptions
	now        func() time.Time
}

func NewRepublishUseCase(
	catalog ports.CatalogService,
	queue ports.MessageQueue,
	pendingAge time.Duration,
	options RepublishOptions,
) *RepublishUseCase {
	if pendingAge <= 0 {
		pendingAge = DefaultPendingAge
	}
	return &RepublishUseCase{
		catalog:    catalog,
		queue:      queue,
		pendingAge: pendingAge,
		options:    options,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RepublishStale returns how many events were published. A failed publish
// does not stop the sweep; the errors are joined.
func (uc *RepublishUseCase) RepublishStale(ctx context.Context) (int, error) {
	stale, err := uc.catalog.ListPending(ctx, uc.now().Add(-uc.pendingAge))
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}

	var (
		published int
		errs      []error
	)
	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := uc.queue.PublishCvUploaded(ctx, rec.StorageKey); err != nil {
			errs = append(errs, fmt.Errorf("republish %s: %w", rec.StorageKey, err))
			continue
		}
		published++
		slog.Info("cv_upload_republished", "storage_key", rec.StorageKey, "uploaded_at", rec.UploadedAt)
	}
	if published > 0 && uc.options.OnRepublished != nil {
		uc.options.OnRepublished(published)
	}
	return published, errors.Join(errs...)
}

// Run sweeps on every tick until ctx is done.
func (uc *RepublishUseCase) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.RepublishStale(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Warn("cv_pending_sweep_failed", "republished", n, "error", err)
			}
		}
	}
}
