// Package memory is an in-process catalog store for local development and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

type CatalogRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.CvRecord
	byKey map[string]*domain.CvRecord
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		byID:  make(map[string]*domain.CvRecord),
		byKey: make(map[string]*domain.CvRecord),
	}
}

func (r *CatalogRepository) Create(_ context.Context, rec *domain.CvRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[rec.StorageKey]; ok {
		return domain.WrapError(domain.ErrDuplicateKey, "create record", fmt.Errorf("storage_key=%s", rec.StorageKey))
	}
	if _, ok := r.byID[rec.ID]; ok {
		return fmt.Errorf("create record: id collision %s", rec.ID)
	}
	stored := rec.Clone()
	r.byID[stored.ID] = &stored
	r.byKey[stored.StorageKey] = &stored
	return nil
}

func (r *CatalogRepository) GetByID(_ context.Context, id string) (*domain.CvRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("cv_id=%s", id))
	}
	out := rec.Clone()
	return &out, nil
}

func (r *CatalogRepository) GetByStorageKey(_ context.Context, storageKey string) (*domain.CvRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byKey[storageKey]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("storage_key=%s", storageKey))
	}
	out := rec.Clone()
	return &out, nil
}

func (r *CatalogRepository) UpdateIngestion(
	_ context.Context,
	storageKey string,
	keywords []string,
	status domain.CvStatus,
) (*domain.CvRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byKey[storageKey]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "update ingestion", fmt.Errorf("storage_key=%s", storageKey))
	}
	rec.Keywords = append(make([]string, 0, len(keywords)), keywords...)
	rec.Status = status
	out := rec.Clone()
	return &out, nil
}

func (r *CatalogRepository) ListByOwner(_ context.Context, ownerEmail string) ([]domain.CvRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CvRecord, 0)
	for _, rec := range r.byID {
		if rec.OwnerEmail == ownerEmail {
			out = append(out, rec.Clone())
		}
	}
	domain.SortByUploadedDesc(out)
	return out, nil
}

func (r *CatalogRepository) Search(_ context.Context, query domain.SearchQuery) ([]domain.CvRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CvRecord, 0)
	for _, rec := range r.byID {
		if domain.MatchesAll(*rec, query.Keywords) {
			out = append(out, rec.Clone())
		}
	}
	domain.SortByUploadedDesc(out)
	return out, nil
}

func (r *CatalogRepository) ListPending(_ context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CvRecord, 0)
	for _, rec := range r.byID {
		if rec.Status == domain.CvStatusPending && rec.UploadedAt.Before(uploadedBefore) {
			out = append(out, rec.Clone())
		}
	}
	domain.SortByUploadedDesc(out)
	return out, nil
}
