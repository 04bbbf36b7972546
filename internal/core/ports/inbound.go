package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

// CatalogService is the inbound contract of the CV metadata catalog.
type CatalogService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.CvRecord, error)
	ListByOwner(ctx context.Context, caller domain.Identity, ownerEmail string) ([]domain.CvRecord, error)
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.CvRecord, error)
	CompleteIngestion(ctx context.Context, result domain.IngestionResult) (*domain.CvRecord, error)
	Get(ctx context.Context, cvID string) (*domain.CvRecord, error)
	GetByStorageKey(ctx context.Context, storageKey string) (*domain.CvRecord, error)
	ListPending(ctx context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error)
}

// CvUploader stores an uploaded document and registers it in the catalog.
type CvUploader interface {
	Upload(ctx context.Context, caller domain.Identity, filename string, size int64, body io.Reader) (*domain.CvRecord, error)
}

// DownloadURLIssuer issues time-limited download links for catalog records.
type DownloadURLIssuer interface {
	DownloadURL(ctx context.Context, caller domain.Identity, cvID string) (string, time.Time, error)
}

// CvProcessor is the inbound contract for asynchronous keyword ingestion.
type CvProcessor interface {
	ProcessByKey(ctx context.Context, storageKey string) error
}
