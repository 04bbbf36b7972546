package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

type catalogRepoFake struct {
	mu        sync.Mutex
	byKey     map[string]domain.CvRecord
	createErr error
	searchErr error
	searched  []domain.SearchQuery
}

func newCatalogRepoFake() *catalogRepoFake {
	return &catalogRepoFake{byKey: make(map[string]domain.CvRecord)}
}

func (f *catalogRepoFake) Create(_ context.Context, rec *domain.CvRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byKey[rec.StorageKey]; ok {
		return domain.WrapError(domain.ErrDuplicateKey, "create", errors.New(rec.StorageKey))
	}
	f.byKey[rec.StorageKey] = rec.Clone()
	return nil
}

func (f *catalogRepoFake) GetByID(_ context.Context, id string) (*domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byKey {
		if rec.ID == id {
			out := rec.Clone()
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrRecordNotFound, "get", errors.New(id))
}

func (f *catalogRepoFake) GetByStorageKey(_ context.Context, key string) (*domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byKey[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get", errors.New(key))
	}
	out := rec.Clone()
	return &out, nil
}

func (f *catalogRepoFake) UpdateIngestion(_ context.Context, key string, keywords []string, status domain.CvStatus) (*domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byKey[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "update", errors.New(key))
	}
	rec.Keywords = append([]string{}, keywords...)
	rec.Status = status
	f.byKey[key] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *catalogRepoFake) ListByOwner(_ context.Context, owner string) ([]domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CvRecord
	for _, rec := range f.byKey {
		if rec.OwnerEmail == owner {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (f *catalogRepoFake) Search(_ context.Context, query domain.SearchQuery) ([]domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []domain.CvRecord
	for _, rec := range f.byKey {
		if domain.MatchesAll(rec, query.Keywords) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (f *catalogRepoFake) ListPending(_ context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CvRecord
	for _, rec := range f.byKey {
		if rec.Status == domain.CvStatusPending && rec.UploadedAt.Before(uploadedBefore) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

type storageFake struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	meta    map[string]ports.ObjectMetadata
	saveErr error
	signErr error
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: make(map[string][]byte), meta: make(map[string]ports.ObjectMetadata)}
}

func (f *storageFake) Save(_ context.Context, key string, meta ports.ObjectMetadata, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = raw
	f.meta[key] = meta
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) SignedDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
	failKeys  map[string]bool
}

func (f *queueFake) PublishCvUploaded(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failKeys[key] {
		return domain.WrapError(domain.ErrTemporary, "publish", errors.New(key))
	}
	f.published = append(f.published, key)
	return nil
}

func (f *queueFake) SubscribeCvUploaded(context.Context, func(context.Context, string) error) error {
	return nil
}
