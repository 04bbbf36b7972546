package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type cvResponse struct {
	ID               string   `json:"cv_id"`
	Email            string   `json:"email"`
	StorageKey       string   `json:"storage_key"`
	S3Key            string   `json:"s3_key"`
	OriginalFilename string   `json:"original_filename"`
	UploadedAt       string   `json:"uploaded_at"`
	Keywords         []string `json:"keywords"`
	Status           string   `json:"status"`
}

type listResponse struct {
	Message string       `json:"message"`
	Count   int          `json:"count"`
	CVs     []cvResponse `json:"cvs"`
}

type downloadURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

func toCvResponse(rec domain.CvRecord) cvResponse {
	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return cvResponse{
		ID:               rec.ID,
		Email:            rec.OwnerEmail,
		StorageKey:       rec.StorageKey,
		S3Key:            rec.StorageKey,
		OriginalFilename: rec.OriginalFilename,
		UploadedAt:       rec.UploadedAt.UTC().Format(time.RFC3339),
		Keywords:         keywords,
		Status:           string(rec.Status),
	}
}

func toListResponse(message string, records []domain.CvRecord) listResponse {
	out := make([]cvResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toCvResponse(rec))
	}
	return listResponse{Message: message, Count: len(out), CVs: out}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps a domain error to its status. Server side failures get a
// generic message; the cause is only logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: errorCode(status), Message: message})
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: errorCode(status), Message: message})
}
