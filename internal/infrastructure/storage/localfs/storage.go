package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
)

const metaSuffix = ".meta.json"

// Storage keeps blobs on the local filesystem with a JSON metadata sidecar
// and issues HMAC signed download links served by the API under /blobs/.
type Storage struct {
	basePath   string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

type Options struct {
	BasePath   string
	PublicURL  string
	SigningKey string
}

type sidecar struct {
	ContentType  string    `json:"content_type"`
	OwnerEmail   string    `json:"email"`
	OriginalName string    `json:"originalname"`
	UploadedAt   time.Time `json:"uploaddate"`
	Size         int64     `json:"size"`
}

func New(options Options) (*Storage, error) {
	basePath := options.BasePath
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if strings.TrimSpace(options.SigningKey) == "" {
		return nil, errors.New("localfs signing key is required")
	}
	return &Storage{
		basePath:   basePath,
		publicURL:  strings.TrimRight(options.PublicURL, "/"),
		signingKey: []byte(options.SigningKey),
		now:        time.Now,
	}, nil
}

func (s *Storage) Save(_ context.Context, key string, meta ports.ObjectMetadata, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, data)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	raw, err := json.Marshal(sidecar{
		ContentType:  meta.ContentType,
		OwnerEmail:   meta.OwnerEmail,
		OriginalName: meta.OriginalName,
		UploadedAt:   meta.UploadedAt.UTC(),
		Size:         written,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, raw, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "open blob", fmt.Errorf("key=%s", key))
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Metadata returns the sidecar stored next to the blob.
func (s *Storage) Metadata(_ context.Context, key string) (ports.ObjectMetadata, error) {
	path, err := s.resolve(key)
	if err != nil {
		return ports.ObjectMetadata{}, err
	}
	raw, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.ObjectMetadata{}, domain.WrapError(domain.ErrRecordNotFound, "read blob metadata", fmt.Errorf("key=%s", key))
		}
		return ports.ObjectMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ports.ObjectMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return ports.ObjectMetadata{
		ContentType:  meta.ContentType,
		OwnerEmail:   meta.OwnerEmail,
		OriginalName: meta.OriginalName,
		UploadedAt:   meta.UploadedAt,
		Size:         meta.Size,
	}, nil
}

func (s *Storage) SignedDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("sig", s.sign(key, expires))
	return s.publicURL + "/blobs/" + escapeKey(key) + "?" + query.Encode(), nil
}

// Verify checks a signature issued by SignedDownloadURL.
func (s *Storage) Verify(key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return domain.WrapError(domain.ErrUnauthorized, "verify blob signature", errors.New("malformed expiry"))
	}
	if s.now().Unix() > exp {
		return domain.WrapError(domain.ErrUnauthorized, "verify blob signature", errors.New("link expired"))
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return domain.WrapError(domain.ErrUnauthorized, "verify blob signature", errors.New("signature mismatch"))
	}
	return nil
}

func (s *Storage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	_, _ = mac.Write([]byte(key))
	_, _ = mac.Write([]byte{'\n'})
	_, _ = mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Storage) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) || strings.HasSuffix(clean, metaSuffix) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob key", fmt.Errorf("invalid key %q", key))
	}
	return filepath.Join(s.basePath, clean), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
