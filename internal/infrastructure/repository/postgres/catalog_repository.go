package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

const recordColumns = `cv_id, owner_email, storage_key, original_filename, uploaded_at, keywords, status`

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS cvs (
	cv_id TEXT PRIMARY KEY,
	owner_email TEXT NOT NULL,
	storage_key TEXT NOT NULL UNIQUE,
	original_filename TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cvs_owner_uploaded ON cvs(owner_email, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_cvs_uploaded_at ON cvs(uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_cvs_status ON cvs(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) Create(ctx context.Context, rec *domain.CvRecord) error {
	keywordsJSON, err := marshalKeywords(rec.Keywords)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO cvs (`+recordColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (storage_key) DO NOTHING
`,
		rec.ID, rec.OwnerEmail, rec.StorageKey, rec.OriginalFilename, rec.UploadedAt, keywordsJSON, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDuplicateKey, "insert record", fmt.Errorf("storage_key=%s", rec.StorageKey))
	}
	return nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*domain.CvRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM cvs
WHERE cv_id = $1
`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("cv_id=%s", id))
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return &rec, nil
}

func (r *CatalogRepository) GetByStorageKey(ctx context.Context, storageKey string) (*domain.CvRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM cvs
WHERE storage_key = $1
`, storageKey)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("storage_key=%s", storageKey))
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return &rec, nil
}

// UpdateIngestion overwrites keywords and status in a single statement so
// concurrent writers of the same key resolve to last-write-wins.
func (r *CatalogRepository) UpdateIngestion(
	ctx context.Context,
	storageKey string,
	keywords []string,
	status domain.CvStatus,
) (*domain.CvRecord, error) {
	keywordsJSON, err := marshalKeywords(keywords)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE cvs
SET keywords = $2, status = $3
WHERE storage_key = $1
RETURNING `+recordColumns+`
`, storageKey, keywordsJSON, string(status))

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "update ingestion", fmt.Errorf("storage_key=%s", storageKey))
		}
		return nil, fmt.Errorf("update ingestion: %w", err)
	}
	return &rec, nil
}

func (r *CatalogRepository) ListByOwner(ctx context.Context, ownerEmail string) ([]domain.CvRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM cvs
WHERE owner_email = $1
ORDER BY uploaded_at DESC, cv_id ASC
`, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("list records by owner: %w", err)
	}
	return collectRecords(rows)
}

func (r *CatalogRepository) ListPending(ctx context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM cvs
WHERE status = $1 AND uploaded_at < $2
ORDER BY uploaded_at ASC, cv_id ASC
`, string(domain.CvStatusPending), uploadedBefore)
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	return collectRecords(rows)
}

func (r *CatalogRepository) Search(ctx context.Context, query domain.SearchQuery) ([]domain.CvRecord, error) {
	sqlText, args := buildSearchQuery(query)
	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return collectRecords(rows)
}

// buildSearchQuery requires, for every term, one keyword containing it.
// strpos avoids LIKE so user input never acts as a pattern.
func buildSearchQuery(query domain.SearchQuery) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + "\nFROM cvs\n")

	args := make([]any, 0, len(query.Keywords)+1)
	if query.Filtered() {
		args = append(args, string(domain.CvStatusProcessed))
		b.WriteString("WHERE status = $1\n")
		for _, term := range query.Keywords {
			args = append(args, strings.ToLower(term))
			fmt.Fprintf(&b, "AND EXISTS (SELECT 1 FROM jsonb_array_elements_text(keywords) AS kw WHERE strpos(kw, $%d) > 0)\n", len(args))
		}
	}
	b.WriteString("ORDER BY uploaded_at DESC, cv_id ASC")
	return b.String(), args
}

type recordScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row recordScanner) (domain.CvRecord, error) {
	var rec domain.CvRecord
	var keywordsRaw []byte
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.OwnerEmail,
		&rec.StorageKey,
		&rec.OriginalFilename,
		&rec.UploadedAt,
		&keywordsRaw,
		&status,
	)
	if err != nil {
		return domain.CvRecord{}, err
	}
	rec.Keywords = []string{}
	if len(keywordsRaw) > 0 {
		if err := json.Unmarshal(keywordsRaw, &rec.Keywords); err != nil {
			return domain.CvRecord{}, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	rec.UploadedAt = rec.UploadedAt.UTC()
	rec.Status = domain.CvStatus(status)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]domain.CvRecord, error) {
	defer rows.Close()

	out := make([]domain.CvRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func marshalKeywords(keywords []string) ([]byte, error) {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("marshal keywords: %w", err)
	}
	return raw, nil
}
