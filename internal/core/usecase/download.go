package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

const DefaultDownloadURLTTL = 60 * time.Second

type DownloadUseCase struct {
	catalog ports.CatalogService
	storage ports.ObjectStorage
	ttl     time.Duration
	now     func() time.Time
}

func NewDownloadUseCase(catalog ports.CatalogService, storage ports.ObjectStorage, ttl time.Duration) *DownloadUseCase {
	if ttl <= 0 {
		ttl = DefaultDownloadURLTTL
	}
	return &DownloadUseCase{
		catalog: catalog,
		storage: storage,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DownloadURL issues a signed link for any record visible through search,
// so every authenticated caller may download any CV in the shared pool.
func (uc *DownloadUseCase) DownloadURL(ctx context.Context, caller domain.Identity, cvID string) (string, time.Time, error) {
	if caller.Subject == "" && caller.Email == "" {
		return "", time.Time{}, domain.WrapError(domain.ErrUnauthorized, "download url", errors.New("anonymous caller"))
	}
	rec, err := uc.catalog.Get(ctx, cvID)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := uc.now().Add(uc.ttl)
	url, err := uc.storage.SignedDownloadURL(ctx, rec.StorageKey, uc.ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download url: %w", err)
	}
	return url, expiresAt, nil
}
