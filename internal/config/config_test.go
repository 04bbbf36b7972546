package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CATALOG_BACKEND", "")
	t.Setenv("DOWNLOAD_URL_TTL", "")
	t.Setenv("KEYWORDS_MAX", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("INGEST_SWEEP_INTERVAL", "")
	t.Setenv("INGEST_PENDING_AGE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CatalogBackend != CatalogPostgres {
		t.Fatalf("expected default catalog postgres, got %q", cfg.CatalogBackend)
	}
	if cfg.DynamoDBTable != "CVs" || cfg.S3Bucket != "cvgram-cv-bucket" {
		t.Fatalf("unexpected aws defaults: table=%q bucket=%q", cfg.DynamoDBTable, cfg.S3Bucket)
	}
	if cfg.DownloadURLTTL != 60*time.Second {
		t.Fatalf("expected default ttl 60s, got %v", cfg.DownloadURLTTL)
	}
	if cfg.KeywordsMax != 200 {
		t.Fatalf("expected default keywords max 200, got %d", cfg.KeywordsMax)
	}
	if cfg.UploadMaxBytes != 5<<20 {
		t.Fatalf("expected default upload limit 5 MiB, got %d", cfg.UploadMaxBytes)
	}
	if cfg.NATSSubject != "cvs.uploaded" {
		t.Fatalf("expected default subject cvs.uploaded, got %q", cfg.NATSSubject)
	}
	if cfg.IngestSweepInterval != time.Minute || cfg.IngestPendingAge != 2*time.Minute {
		t.Fatalf("unexpected sweep defaults: interval=%v age=%v", cfg.IngestSweepInterval, cfg.IngestPendingAge)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CATALOG_BACKEND", "DynamoDB")
	t.Setenv("DOWNLOAD_URL_TTL", "90")
	t.Setenv("CVGRAM_SEARCH_DEBOUNCE", "250ms")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("UPLOAD_MAX_BYTES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CatalogBackend != CatalogDynamoDB {
		t.Fatalf("expected dynamodb, got %q", cfg.CatalogBackend)
	}
	if cfg.DownloadURLTTL != 90*time.Second {
		t.Fatalf("expected bare seconds to parse, got %v", cfg.DownloadURLTTL)
	}
	if cfg.ClientSearchDebounce != 250*time.Millisecond {
		t.Fatalf("expected 250ms debounce, got %v", cfg.ClientSearchDebounce)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.UploadMaxBytes != 5<<20 {
		t.Fatalf("expected fallback for malformed value, got %d", cfg.UploadMaxBytes)
	}
}

func TestLoadYAMLFileIsOverriddenByEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvgram.yaml")
	content := "S3_BUCKET: from-file\nkeywords_max: 50\nNATS_SUBJECT: file.subject\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("S3_BUCKET", "")
	t.Setenv("KEYWORDS_MAX", "")
	t.Setenv("NATS_SUBJECT", "env.subject")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.S3Bucket != "from-file" {
		t.Fatalf("expected bucket from file, got %q", cfg.S3Bucket)
	}
	if cfg.KeywordsMax != 50 {
		t.Fatalf("expected keywords max from file, got %d", cfg.KeywordsMax)
	}
	if cfg.NATSSubject != "env.subject" {
		t.Fatalf("expected env to win, got %q", cfg.NATSSubject)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		CatalogBackend:    CatalogMemory,
		StorageBackend:    StorageLocalFS,
		StorageSigningKey: "k",
		AuthMode:          AuthJWT,
		JWTSecret:         "s",
		UploadMaxBytes:    1,
		DownloadURLTTL:    time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	broken := valid
	broken.CatalogBackend = "redis"
	broken.JWTSecret = ""
	if err := broken.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}
