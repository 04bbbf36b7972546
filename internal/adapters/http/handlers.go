package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

const (
	maxJSONBodyBytes   = 1 << 20
	multipartOverhead  = 64 << 10
	multipartMemory    = 1 << 20
	downloadURLSegment = "download-url"
)

func (rt *Router) searchCvs(w http.ResponseWriter, r *http.Request) {
	terms, err := domain.ParseKeywordQuery(r.URL.Query().Get("keywords"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	query := domain.SearchQuery{Keywords: terms}
	records, err := rt.catalog.Search(r.Context(), query)
	rt.recordOperation("search", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, query.Filtered(), len(records), time.Since(start))
	}

	message := "All CVs retrieved successfully"
	if query.Filtered() {
		message = "Filtered CVs retrieved successfully"
	}
	writeJSON(w, http.StatusOK, toListResponse(message, records))
}

func (rt *Router) cvSubresource(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "user":
		rt.listUserCvs(w, r, second)
	case second == downloadURLSegment:
		rt.downloadURL(w, r, first)
	default:
		writeErrorStatus(w, http.StatusNotFound, "route not found")
	}
}

func (rt *Router) listUserCvs(w http.ResponseWriter, r *http.Request, email string) {
	caller, _ := identityFromContext(r.Context())
	records, err := rt.catalog.ListByOwner(r.Context(), caller, email)
	rt.recordOperation("list_by_owner", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	owner := domain.NormalizeEmail(email)
	message := fmt.Sprintf("CVs for user %s retrieved successfully", owner)
	if len(records) == 0 {
		message = fmt.Sprintf("No CVs found for user %s", owner)
	}
	writeJSON(w, http.StatusOK, toListResponse(message, records))
}

func (rt *Router) downloadURL(w http.ResponseWriter, r *http.Request, cvID string) {
	caller, _ := identityFromContext(r.Context())
	url, expiresAt, err := rt.downloads.DownloadURL(r.Context(), caller, cvID)
	rt.recordOperation("download_url", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadURLResponse{URL: url, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)})
}

func (rt *Router) uploadCv(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.UploadMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorStatus(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", maxBytes))
			return
		}
		writeErrorStatus(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	caller, _ := identityFromContext(r.Context())
	rec, err := rt.uploader.Upload(r.Context(), caller, fileHeader.Filename, fileHeader.Size, file)
	rt.recordOperation("upload", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, fileHeader.Size)
	}
	writeJSON(w, http.StatusAccepted, toCvResponse(*rec))
}

type registerRequest struct {
	StorageKey       string `json:"storage_key"`
	OriginalFilename string `json:"original_filename"`
}

func (rt *Router) registerCv(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	caller, _ := identityFromContext(r.Context())
	if caller.Email == "" {
		writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "register", errors.New("caller has no verified email")))
		return
	}
	rec, err := rt.catalog.Register(r.Context(), domain.RegisterRequest{
		OwnerEmail:       caller.Email,
		StorageKey:       req.StorageKey,
		OriginalFilename: req.OriginalFilename,
	})
	rt.recordOperation("register", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCvResponse(*rec))
}

type ingestionRequest struct {
	StorageKey string   `json:"storage_key"`
	Keywords   []string `json:"keywords"`
	Status     string   `json:"status"`
}

func (rt *Router) completeIngestion(w http.ResponseWriter, r *http.Request) {
	if !isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.cfg.IngestionAPIKey) {
		rt.recordAuthFailure("ingestion_key")
		writeErrorStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ingestionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := rt.catalog.CompleteIngestion(r.Context(), domain.IngestionResult{
		StorageKey: req.StorageKey,
		Keywords:   req.Keywords,
		Status:     domain.CvStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	rt.recordOperation("complete_ingestion", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCvResponse(*rec))
}

func (rt *Router) serveBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	query := r.URL.Query()
	if err := rt.blobs.Verify(key, query.Get("expires"), query.Get("sig")); err != nil {
		writeError(w, r, err)
		return
	}

	meta, err := rt.blobs.Metadata(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := rt.blobs.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := meta.OriginalName
	if filename == "" {
		filename = path.Base(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("blob_copy_failed", "key", key, "error", err)
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}
