package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

var recordColumnNames = []string{"cv_id", "owner_email", "storage_key", "original_filename", "uploaded_at", "keywords", "status"}

func newRepoWithMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CatalogRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateReturnsDuplicateKeyWhenConflictSkipsInsert(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO cvs").
		WithArgs("cv-1", "alice@example.com", "cvs/alice/1.pdf", "1.pdf", sqlmock.AnyArg(), []byte("[]"), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &domain.CvRecord{
		ID:               "cv-1",
		OwnerEmail:       "alice@example.com",
		StorageKey:       "cvs/alice/1.pdf",
		OriginalFilename: "1.pdf",
		UploadedAt:       time.Now().UTC(),
		Status:           domain.CvStatusPending,
	})
	if !domain.IsKind(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateInsertsRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO cvs").
		WithArgs("cv-1", "alice@example.com", "cvs/alice/1.pdf", "1.pdf", sqlmock.AnyArg(), []byte("[]"), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.CvRecord{
		ID:               "cv-1",
		OwnerEmail:       "alice@example.com",
		StorageKey:       "cvs/alice/1.pdf",
		OriginalFilename: "1.pdf",
		UploadedAt:       time.Now().UTC(),
		Keywords:         []string{},
		Status:           domain.CvStatusPending,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT cv_id, owner_email, storage_key").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateIngestionReturnsDomainNotFoundWhenNoRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE cvs").
		WithArgs("cvs/ghost.pdf", []byte(`["go"]`), "processed").
		WillReturnRows(sqlmock.NewRows(recordColumnNames))

	_, err := repo.UpdateIngestion(context.Background(), "cvs/ghost.pdf", []string{"go"}, domain.CvStatusProcessed)
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateIngestionReturnsUpdatedRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	uploaded := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE cvs").
		WithArgs("cvs/alice/1.pdf", []byte(`["python","aws"]`), "processed").
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow("cv-1", "alice@example.com", "cvs/alice/1.pdf", "1.pdf", uploaded, []byte(`["python","aws"]`), "processed"))

	rec, err := repo.UpdateIngestion(context.Background(), "cvs/alice/1.pdf", []string{"python", "aws"}, domain.CvStatusProcessed)
	if err != nil {
		t.Fatalf("UpdateIngestion() error = %v", err)
	}
	if rec.Status != domain.CvStatusProcessed || len(rec.Keywords) != 2 || rec.Keywords[0] != "python" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.UploadedAt.Equal(uploaded) {
		t.Fatalf("uploaded_at changed: %v", rec.UploadedAt)
	}
}

func TestListByOwnerScansRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("WHERE owner_email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow("cv-2", "alice@example.com", "k2", "2.pdf", now, []byte(`[]`), "pending").
			AddRow("cv-1", "alice@example.com", "k1", "1.pdf", now.Add(-time.Hour), []byte(`["go"]`), "processed"))

	records, err := repo.ListByOwner(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != "cv-2" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Keywords == nil {
		t.Fatalf("expected empty keyword slice, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPendingFiltersByStatusAndAge(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	cutoff := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("WHERE status = \\$1 AND uploaded_at < \\$2").
		WithArgs("pending", cutoff).
		WillReturnRows(sqlmock.NewRows(recordColumnNames).
			AddRow("cv-1", "alice@example.com", "k1", "1.pdf", cutoff.Add(-time.Hour), []byte(`[]`), "pending"))

	records, err := repo.ListPending(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(records) != 1 || records[0].StorageKey != "k1" || records[0].Status != domain.CvStatusPending {
		t.Fatalf("unexpected records: %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchFilteredBindsEveryTerm(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("strpos").
		WithArgs("processed", "python", "aws").
		WillReturnRows(sqlmock.NewRows(recordColumnNames))

	records, err := repo.Search(context.Background(), domain.SearchQuery{Keywords: []string{"Python", "aws"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildSearchQueryUnfilteredHasNoStatusFilter(t *testing.T) {
	query, args := buildSearchQuery(domain.SearchQuery{})
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	if strings.Contains(query, "WHERE") {
		t.Fatalf("unfiltered search must not filter rows: %s", query)
	}
	if !strings.HasSuffix(query, "ORDER BY uploaded_at DESC, cv_id ASC") {
		t.Fatalf("unexpected ordering clause: %s", query)
	}
}

func TestBuildSearchQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildSearchQuery(domain.SearchQuery{Keywords: []string{"go", "sql"}})
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
	if !strings.Contains(query, "strpos(kw, $2)") || !strings.Contains(query, "strpos(kw, $3)") {
		t.Fatalf("unexpected placeholders: %s", query)
	}
}
