package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

// ListResult is the body of the catalog listing endpoints.
type ListResult struct {
	Message string            `json:"message"`
	Count   int               `json:"count"`
	CVs     []domain.CvRecord `json:"cvs"`
}

type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIError is a non-2xx answer from the API. It unwraps to the matching
// domain error kind so callers can use domain.IsKind.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cvgram api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return domain.ErrInvalidInput
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrRecordNotFound
	case http.StatusConflict:
		return domain.ErrDuplicateKey
	case http.StatusBadGateway:
		return domain.ErrUpstream
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return domain.ErrTemporary
	default:
		return nil
	}
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Search runs a keyword search. No keywords lists the whole catalog.
func (c *Client) Search(ctx context.Context, keywords []string) (ListResult, error) {
	target := c.baseURL + "/api/cvs"
	if terms := domain.NormalizeKeywords(keywords); len(terms) > 0 {
		target += "?" + url.Values{"keywords": {strings.Join(terms, ",")}}.Encode()
	}
	var out ListResult
	if err := c.getJSON(ctx, target, &out); err != nil {
		return ListResult{}, fmt.Errorf("search cvs: %w", err)
	}
	return out, nil
}

// ListMine lists the CVs owned by email, which must be the caller's own.
func (c *Client) ListMine(ctx context.Context, email string) (ListResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ListResult{}, domain.WrapError(domain.ErrInvalidInput, "list my cvs", errors.New("email is required"))
	}
	var out ListResult
	if err := c.getJSON(ctx, c.baseURL+"/api/cvs/user/"+url.PathEscape(email), &out); err != nil {
		return ListResult{}, fmt.Errorf("list my cvs: %w", err)
	}
	return out, nil
}

func (c *Client) DownloadURL(ctx context.Context, cvID string) (DownloadLink, error) {
	cvID = strings.TrimSpace(cvID)
	if cvID == "" {
		return DownloadLink{}, domain.WrapError(domain.ErrInvalidInput, "download url", errors.New("cv id is required"))
	}
	var out DownloadLink
	if err := c.getJSON(ctx, c.baseURL+"/api/cvs/"+url.PathEscape(cvID)+"/download-url", &out); err != nil {
		return DownloadLink{}, fmt.Errorf("download url: %w", err)
	}
	return out, nil
}

// Upload sends a document as multipart form field "file".
func (c *Client) Upload(ctx context.Context, filename string, body io.Reader) (domain.CvRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.CvRecord{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return domain.CvRecord{}, fmt.Errorf("copy upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.CvRecord{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cvs", &buf)
	if err != nil {
		return domain.CvRecord{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out domain.CvRecord
	if err := c.do(req, &out); err != nil {
		return domain.CvRecord{}, fmt.Errorf("upload cv: %w", err)
	}
	return out, nil
}

// TokenEmail reads the email claim of the configured token without
// verifying it. The API still verifies every request.
func (c *Client) TokenEmail() (string, error) {
	if c.token == "" {
		return "", domain.WrapError(domain.ErrUnauthorized, "token email", errors.New("no token configured"))
	}
	var claims struct {
		Email string `json:"email"`
		gojwt.RegisteredClaims
	}
	if _, _, err := gojwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "token email", err)
	}
	if claims.Email == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "token email", errors.New("token has no email claim"))
	}
	return domain.NormalizeEmail(claims.Email), nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.WrapError(domain.ErrTemporary, "cvgram request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Code, apiErr.Message = body.Error, body.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
