package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

type ProcessOptions struct {
	// OnCompleted is called with the catalog state after a successful write.
	OnCompleted func(rec domain.CvRecord)
}

type ProcessCvUseCase struct {
	catalog   ports.CatalogService
	extractor ports.TextExtractor
	keywords  ports.KeywordExtractor
	retrier   ports.Retrier
	options   ProcessOptions
}

func NewProcessCvUseCase(
	catalog ports.CatalogService,
	extractor ports.TextExtractor,
	keywords ports.KeywordExtractor,
	retrier ports.Retrier,
	options ProcessOptions,
) *ProcessCvUseCase {
	return &ProcessCvUseCase{
		catalog:   catalog,
		extractor: extractor,
		keywords:  keywords,
		retrier:   retrier,
		options:   options,
	}
}

// ProcessByKey extracts keywords for a pending record and stores the
// outcome. Records that are already processed or failed are left alone, and
// transient extraction failures leave the record pending for redelivery.
func (uc *ProcessCvUseCase) ProcessByKey(ctx context.Context, storageKey string) error {
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		return domain.WrapError(domain.ErrInvalidInput, "process cv", errors.New("storage key is required"))
	}

	current, err := uc.lookup(ctx, storageKey)
	if err != nil {
		return err
	}
	if current.Status != domain.CvStatusPending {
		slog.Info("cv_ingestion_skipped", "storage_key", storageKey, "status", current.Status)
		return nil
	}

	result := domain.IngestionResult{StorageKey: storageKey, Status: domain.CvStatusProcessed}
	keywords, extractErr := uc.extractKeywords(ctx, storageKey)
	if extractErr != nil {
		if errors.Is(extractErr, context.Canceled) || errors.Is(extractErr, context.DeadlineExceeded) {
			return extractErr
		}
		if isTransientExtractionError(extractErr) {
			slog.Warn("cv_extraction_deferred", "storage_key", storageKey, "error", extractErr)
			return extractErr
		}
		slog.Warn("cv_extraction_failed", "storage_key", storageKey, "error", extractErr)
		result.Status = domain.CvStatusFailed
	} else {
		result.Keywords = keywords
	}

	rec, err := uc.complete(ctx, result)
	if err != nil {
		if extractErr != nil {
			return fmt.Errorf("%w; record failed status: %v", extractErr, err)
		}
		return err
	}

	if uc.options.OnCompleted != nil {
		uc.options.OnCompleted(*rec)
	}
	return extractErr
}

// lookup waits for the record to be registered; the upload event can
// overtake the catalog write on another replica.
func (uc *ProcessCvUseCase) lookup(ctx context.Context, storageKey string) (*domain.CvRecord, error) {
	var rec *domain.CvRecord
	err := uc.retry(ctx, "catalog.get_by_storage_key", func(callCtx context.Context) error {
		out, err := uc.catalog.GetByStorageKey(callCtx, storageKey)
		if err != nil {
			return err
		}
		rec = out
		return nil
	}, isRetryableIngestionError)
	if err != nil {
		return nil, fmt.Errorf("lookup record: %w", err)
	}
	return rec, nil
}

func (uc *ProcessCvUseCase) extractKeywords(ctx context.Context, storageKey string) ([]string, error) {
	var text string
	err := uc.retry(ctx, "extractor.extract", func(callCtx context.Context) error {
		out, err := uc.extractor.Extract(callCtx, storageKey)
		if err != nil {
			return err
		}
		text = out
		return nil
	}, isTransientExtractionError)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return uc.keywords.Extract(text), nil
}

// complete writes the result. The catalog itself never waits for a missing
// record, so a lost race with registration is retried here.
func (uc *ProcessCvUseCase) complete(ctx context.Context, result domain.IngestionResult) (*domain.CvRecord, error) {
	var rec *domain.CvRecord
	err := uc.retry(ctx, "catalog.complete_ingestion", func(callCtx context.Context) error {
		out, err := uc.catalog.CompleteIngestion(callCtx, result)
		if err != nil {
			return err
		}
		rec = out
		return nil
	}, isRetryableIngestionError)
	if err != nil {
		return nil, fmt.Errorf("complete ingestion: %w", err)
	}
	return rec, nil
}

func (uc *ProcessCvUseCase) retry(ctx context.Context, op string, fn func(context.Context) error, retryable func(error) bool) error {
	if uc.retrier == nil {
		return fn(ctx)
	}
	return uc.retrier.Retry(ctx, op, fn, retryable)
}

func isRetryableIngestionError(err error) bool {
	return domain.IsKind(err, domain.ErrRecordNotFound) || domain.IsKind(err, domain.ErrTemporary)
}

func isTransientExtractionError(err error) bool {
	return domain.IsKind(err, domain.ErrUpstream) || domain.IsKind(err, domain.ErrTemporary)
}
