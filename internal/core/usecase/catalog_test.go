package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRegisterCreatesPendingRecord(t *testing.T) {
	repo := newCatalogRepoFake()
	uc := NewCatalogUseCase(repo)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	uc.now = fixedClock(now)

	rec, err := uc.Register(context.Background(), domain.RegisterRequest{
		OwnerEmail: "  Alice@Example.com ",
		StorageKey: "cvs/u1/1-cv.pdf",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if rec.ID == "" || rec.OwnerEmail != "alice@example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Status != domain.CvStatusPending || rec.Keywords == nil || len(rec.Keywords) != 0 {
		t.Fatalf("expected pending with empty keywords, got %+v", rec)
	}
	if rec.OriginalFilename != "1-cv.pdf" {
		t.Fatalf("expected filename derived from key, got %q", rec.OriginalFilename)
	}
	if !rec.UploadedAt.Equal(now) {
		t.Fatalf("uploaded_at = %v, want %v", rec.UploadedAt, now)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	cases := []domain.RegisterRequest{
		{OwnerEmail: "", StorageKey: "k"},
		{OwnerEmail: "not-an-email", StorageKey: "k"},
		{OwnerEmail: "a@example.com", StorageKey: "  "},
	}
	for _, req := range cases {
		if _, err := uc.Register(context.Background(), req); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Register(%+v) expected ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestRegisterDuplicateKeyKeepsOriginal(t *testing.T) {
	repo := newCatalogRepoFake()
	uc := NewCatalogUseCase(repo)

	first, err := uc.Register(context.Background(), domain.RegisterRequest{OwnerEmail: "a@example.com", StorageKey: "k1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err = uc.Register(context.Background(), domain.RegisterRequest{OwnerEmail: "b@example.com", StorageKey: "k1"})
	if !domain.IsKind(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	stored, _ := repo.GetByStorageKey(context.Background(), "k1")
	if stored.ID != first.ID || stored.OwnerEmail != "a@example.com" {
		t.Fatalf("original record changed: %+v", stored)
	}
}

func TestListByOwnerScopesToCaller(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	alice := domain.Identity{Subject: "u1", Email: "alice@example.com"}

	if _, err := uc.ListByOwner(context.Background(), domain.Identity{Subject: "u2"}, "alice@example.com"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := uc.ListByOwner(context.Background(), domain.Identity{Subject: "u2", Email: "bob@example.com"}, "alice@example.com"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	records, err := uc.ListByOwner(context.Background(), alice, "ALICE@example.com")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", records)
	}
}

func TestListByOwnerOrdersNewestFirst(t *testing.T) {
	repo := newCatalogRepoFake()
	uc := NewCatalogUseCase(repo)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range []string{"k1", "k2", "k3"} {
		uc.now = fixedClock(base.Add(time.Duration(i) * time.Hour))
		if _, err := uc.Register(context.Background(), domain.RegisterRequest{OwnerEmail: "a@example.com", StorageKey: key}); err != nil {
			t.Fatalf("Register(%s) error = %v", key, err)
		}
	}

	records, err := uc.ListByOwner(context.Background(), domain.Identity{Email: "a@example.com"}, "a@example.com")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(records) != 3 || records[0].StorageKey != "k3" || records[2].StorageKey != "k1" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestSearchNormalizesTermsAndMatchesAll(t *testing.T) {
	repo := newCatalogRepoFake()
	uc := NewCatalogUseCase(repo)
	ctx := context.Background()

	if _, err := uc.Register(ctx, domain.RegisterRequest{OwnerEmail: "a@example.com", StorageKey: "k1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.Register(ctx, domain.RegisterRequest{OwnerEmail: "b@example.com", StorageKey: "k2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CompleteIngestion(ctx, domain.IngestionResult{StorageKey: "k1", Keywords: []string{"Python", "AWS"}, Status: domain.CvStatusProcessed}); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CompleteIngestion(ctx, domain.IngestionResult{StorageKey: "k2", Keywords: []string{"python"}, Status: domain.CvStatusProcessed}); err != nil {
		t.Fatal(err)
	}

	got, err := uc.Search(ctx, domain.SearchQuery{Keywords: []string{" PYTHON ", "aw", "python"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].StorageKey != "k1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if want := []string{"python", "aw"}; len(repo.searched[0].Keywords) != 2 || repo.searched[0].Keywords[0] != want[0] {
		t.Fatalf("terms not normalized: %v", repo.searched[0].Keywords)
	}
}

func TestSearchPropagatesRepositoryError(t *testing.T) {
	repo := newCatalogRepoFake()
	repo.searchErr = domain.WrapError(domain.ErrUpstream, "scan", errors.New("boom"))
	uc := NewCatalogUseCase(repo)

	if _, err := uc.Search(context.Background(), domain.SearchQuery{}); !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestCompleteIngestionValidatesStatus(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	_, err := uc.CompleteIngestion(context.Background(), domain.IngestionResult{StorageKey: "k", Status: domain.CvStatusPending})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompleteIngestionUnknownKey(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	_, err := uc.CompleteIngestion(context.Background(), domain.IngestionResult{StorageKey: "ghost", Status: domain.CvStatusProcessed})
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCompleteIngestionFailedClearsKeywords(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	ctx := context.Background()
	if _, err := uc.Register(ctx, domain.RegisterRequest{OwnerEmail: "a@example.com", StorageKey: "k"}); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CompleteIngestion(ctx, domain.IngestionResult{StorageKey: "k", Keywords: []string{"go"}, Status: domain.CvStatusProcessed}); err != nil {
		t.Fatal(err)
	}

	rec, err := uc.CompleteIngestion(ctx, domain.IngestionResult{StorageKey: "k", Keywords: []string{"ignored"}, Status: domain.CvStatusFailed})
	if err != nil {
		t.Fatalf("CompleteIngestion() error = %v", err)
	}
	if rec.Status != domain.CvStatusFailed || len(rec.Keywords) != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetUnknownID(t *testing.T) {
	uc := NewCatalogUseCase(newCatalogRepoFake())
	if _, err := uc.Get(context.Background(), "nope"); !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
