package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

const (
	pdfContentType        = "application/pdf"
	DefaultUploadMaxBytes = 5 << 20
)

type UploadUseCase struct {
	catalog  ports.CatalogService
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	maxBytes int64
	now      func() time.Time
}

func NewUploadUseCase(
	catalog ports.CatalogService,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxBytes int64,
) *UploadUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	return &UploadUseCase{
		catalog:  catalog,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *UploadUseCase) Upload(
	ctx context.Context,
	caller domain.Identity,
	filename string,
	size int64,
	body io.Reader,
) (*domain.CvRecord, error) {
	owner := domain.NormalizeEmail(caller.Email)
	if owner == "" || caller.Subject == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload", errors.New("caller identity is incomplete"))
	}
	if size <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}
	if size > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("file too large: %d bytes, max %d", size, uc.maxBytes))
	}

	raw, err := io.ReadAll(io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(raw) == 0:
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	case int64(len(raw)) > uc.maxBytes:
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("file too large: more than %d bytes", uc.maxBytes))
	}
	if !mimetype.Detect(raw).Is(pdfContentType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("only PDF documents are accepted"))
	}

	now := uc.now()
	cleanName := sanitizeFilename(filename)
	storageKey := fmt.Sprintf("cvs/%s/%d-%s", caller.Subject, now.UnixMilli(), cleanName)

	meta := ports.ObjectMetadata{
		ContentType:  pdfContentType,
		OwnerEmail:   owner,
		OriginalName: filepath.Base(strings.TrimSpace(filename)),
		UploadedAt:   now,
		Size:         int64(len(raw)),
	}
	if err := uc.storage.Save(ctx, storageKey, meta, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	rec, err := uc.catalog.Register(ctx, domain.RegisterRequest{
		OwnerEmail:       owner,
		StorageKey:       storageKey,
		OriginalFilename: meta.OriginalName,
	})
	if err != nil {
		return nil, fmt.Errorf("register catalog record: %w", err)
	}

	// The record stays pending; the republish sweep re-announces it.
	if err := uc.queue.PublishCvUploaded(ctx, storageKey); err != nil {
		slog.Warn("cv_upload_publish_deferred", "storage_key", storageKey, "error", err)
	}

	return rec, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "cv.pdf"
	}
	return base
}
