package domain

import (
	"strings"
	"time"
)

type CvStatus string

const (
	CvStatusPending   CvStatus = "pending"
	CvStatusProcessed CvStatus = "processed"
	CvStatusFailed    CvStatus = "failed"
)

func (s CvStatus) Valid() bool {
	switch s {
	case CvStatusPending, CvStatusProcessed, CvStatusFailed:
		return true
	default:
		return false
	}
}

// CvRecord is the catalog entry for one uploaded CV document.
type CvRecord struct {
	ID               string    `json:"cv_id"`
	OwnerEmail       string    `json:"email"`
	StorageKey       string    `json:"storage_key"`
	OriginalFilename string    `json:"original_filename"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Keywords         []string  `json:"keywords"`
	Status           CvStatus  `json:"status"`
}

// Clone returns a deep copy so callers never share the keyword slice.
func (r CvRecord) Clone() CvRecord {
	out := r
	out.Keywords = append(make([]string, 0, len(r.Keywords)), r.Keywords...)
	return out
}

type RegisterRequest struct {
	OwnerEmail       string
	StorageKey       string
	OriginalFilename string
}

type IngestionResult struct {
	StorageKey string
	Keywords   []string
	Status     CvStatus
}

type SearchQuery struct {
	Keywords []string
}

func (q SearchQuery) Filtered() bool {
	return len(q.Keywords) > 0
}

// Identity is the verified caller of a catalog operation.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
