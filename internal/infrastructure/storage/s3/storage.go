package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
	"github.com/kirillkom/cvgram/internal/infrastructure/awsconfig"
)

const (
	metaEmail        = "email"
	metaOriginalName = "originalname"
	metaUploadDate   = "uploaddate"
)

// API is the subset of the S3 client used by the storage adapter.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner issues time-limited GET links.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Storage struct {
	client    API
	presigner Presigner
	bucket    string
}

func New(client API, presigner Presigner, bucket string) *Storage {
	return &Storage{client: client, presigner: presigner, bucket: bucket}
}

// NewFromConfig builds the client; a custom endpoint switches to path-style
// addressing for LocalStack and MinIO and only sends checksums the operation
// requires, since those stores reject aws-chunked trailers.
func NewFromConfig(cfg aws.Config, opts awsconfig.Options, bucket string) *Storage {
	endpoint := awsconfig.BaseEndpoint(opts)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return New(client, s3.NewPresignClient(client), bucket)
}

func (s *Storage) Save(ctx context.Context, key string, meta ports.ObjectMetadata, data io.Reader) error {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uploadedAt := meta.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	// The signer hashes the payload over plain HTTP and S3 rejects chunked
	// uploads without a length, so the body must be seekable and sized.
	body, size, err := sizedBody(data, meta.Size)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			metaEmail:        meta.OwnerEmail,
			metaOriginalName: meta.OriginalName,
			metaUploadDate:   uploadedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return domain.WrapError(domain.ErrUpstream, "put object", err)
	}
	return nil
}

func sizedBody(data io.Reader, size int64) (io.ReadSeeker, int64, error) {
	if rs, ok := data.(io.ReadSeeker); ok && size > 0 {
		return rs, size, nil
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, 0, fmt.Errorf("buffer object body: %w", err)
	}
	return bytes.NewReader(raw), int64(len(raw)), nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get object", fmt.Errorf("key=%s", key))
		}
		return nil, domain.WrapError(domain.ErrUpstream, "get object", err)
	}
	return out.Body, nil
}

func (s *Storage) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.WrapError(domain.ErrUpstream, "presign get object", err)
	}
	return req.URL, nil
}
