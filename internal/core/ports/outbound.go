package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

// CatalogRepository persists catalog records. Create must fail with
// domain.ErrDuplicateKey on a storage key collision and UpdateIngestion with
// domain.ErrRecordNotFound when the key is unknown.
type CatalogRepository interface {
	Create(ctx context.Context, rec *domain.CvRecord) error
	GetByID(ctx context.Context, id string) (*domain.CvRecord, error)
	GetByStorageKey(ctx context.Context, storageKey string) (*domain.CvRecord, error)
	UpdateIngestion(ctx context.Context, storageKey string, keywords []string, status domain.CvStatus) (*domain.CvRecord, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]domain.CvRecord, error)
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.CvRecord, error)
	ListPending(ctx context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error)
}

// ObjectMetadata travels with a stored blob.
type ObjectMetadata struct {
	ContentType  string
	OwnerEmail   string
	OriginalName string
	UploadedAt   time.Time
	// Size is the exact body length in bytes; zero means unknown.
	Size int64
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, meta ObjectMetadata, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishCvUploaded(ctx context.Context, storageKey string) error
	SubscribeCvUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, storageKey string) (string, error)
}

// KeywordExtractor derives catalog keywords from document text.
type KeywordExtractor interface {
	Extract(text string) []string
}

// IdentityVerifier resolves a bearer token to the caller identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Retrier runs fn under a retry policy; retryable reports which errors may
// be attempted again.
type Retrier interface {
	Retry(ctx context.Context, operation string, fn func(context.Context) error, retryable func(error) bool) error
}
