package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

type CatalogUseCase struct {
	repo  ports.CatalogRepository
	locks keyLocker
	now   func() time.Time
}

func NewCatalogUseCase(repo ports.CatalogRepository) *CatalogUseCase {
	return &CatalogUseCase{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (uc *CatalogUseCase) Register(ctx context.Context, req domain.RegisterRequest) (*domain.CvRecord, error) {
	owner := domain.NormalizeEmail(req.OwnerEmail)
	key := strings.TrimSpace(req.StorageKey)
	filename := strings.TrimSpace(req.OriginalFilename)

	switch {
	case owner == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("owner email is required"))
	case !strings.Contains(owner, "@"):
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", fmt.Errorf("malformed owner email %q", owner))
	case key == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("storage key is required"))
	}
	if filename == "" {
		filename = key[strings.LastIndex(key, "/")+1:]
	}

	rec := &domain.CvRecord{
		ID:               uuid.NewString(),
		OwnerEmail:       owner,
		StorageKey:       key,
		OriginalFilename: filename,
		UploadedAt:       uc.now(),
		Keywords:         []string{},
		Status:           domain.CvStatusPending,
	}

	unlock := uc.locks.lock(key)
	defer unlock()

	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create catalog record: %w", err)
	}
	return rec, nil
}

func (uc *CatalogUseCase) ListByOwner(ctx context.Context, caller domain.Identity, ownerEmail string) ([]domain.CvRecord, error) {
	owner := domain.NormalizeEmail(ownerEmail)
	if owner == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list by owner", errors.New("owner email is required"))
	}
	callerEmail := domain.NormalizeEmail(caller.Email)
	if callerEmail == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list by owner", errors.New("caller has no verified email"))
	}
	if callerEmail != owner {
		return nil, domain.WrapError(domain.ErrForbidden, "list by owner", errors.New("cross-user listing is not allowed"))
	}

	records, err := uc.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list records by owner: %w", err)
	}
	return orderedOrEmpty(records), nil
}

func (uc *CatalogUseCase) Search(ctx context.Context, query domain.SearchQuery) ([]domain.CvRecord, error) {
	query.Keywords = domain.NormalizeKeywords(query.Keywords)
	records, err := uc.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return orderedOrEmpty(records), nil
}

func (uc *CatalogUseCase) CompleteIngestion(ctx context.Context, result domain.IngestionResult) (*domain.CvRecord, error) {
	key := strings.TrimSpace(result.StorageKey)
	if key == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "complete ingestion", errors.New("storage key is required"))
	}
	if result.Status != domain.CvStatusProcessed && result.Status != domain.CvStatusFailed {
		return nil, domain.WrapError(domain.ErrInvalidInput, "complete ingestion",
			fmt.Errorf("extraction status must be processed or failed, got %q", result.Status))
	}

	keywords := domain.NormalizeKeywords(result.Keywords)
	if result.Status == domain.CvStatusFailed {
		keywords = []string{}
	}

	unlock := uc.locks.lock(key)
	defer unlock()

	rec, err := uc.repo.UpdateIngestion(ctx, key, keywords, result.Status)
	if err != nil {
		return nil, fmt.Errorf("update ingestion result: %w", err)
	}
	return rec, nil
}

func (uc *CatalogUseCase) Get(ctx context.Context, cvID string) (*domain.CvRecord, error) {
	cvID = strings.TrimSpace(cvID)
	if cvID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get record", errors.New("cv id is required"))
	}
	rec, err := uc.repo.GetByID(ctx, cvID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (uc *CatalogUseCase) GetByStorageKey(ctx context.Context, storageKey string) (*domain.CvRecord, error) {
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get record", errors.New("storage key is required"))
	}
	rec, err := uc.repo.GetByStorageKey(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("get record by storage key: %w", err)
	}
	return rec, nil
}

// ListPending returns records still awaiting ingestion that were uploaded
// before the cutoff, oldest first.
func (uc *CatalogUseCase) ListPending(ctx context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error) {
	records, err := uc.repo.ListPending(ctx, uploadedBefore)
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	records = orderedOrEmpty(records)
	slices.Reverse(records)
	return records, nil
}

func orderedOrEmpty(records []domain.CvRecord) []domain.CvRecord {
	if records == nil {
		return []domain.CvRecord{}
	}
	domain.SortByUploadedDesc(records)
	return records
}
