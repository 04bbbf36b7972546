package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/core/ports"
	"github.com/kirillkom/cvgram/internal/observability/metrics"
)

const serviceName = "cvgram-api"

// BlobServer serves localfs blobs behind signed links.
type BlobServer interface {
	Verify(key, expires, signature string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Metadata(ctx context.Context, key string) (ports.ObjectMetadata, error)
}

type Dependencies struct {
	Catalog   ports.CatalogService
	Uploader  ports.CvUploader
	Downloads ports.DownloadURLIssuer
	Identity  ports.IdentityVerifier
	Blobs     BlobServer
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	catalog   ports.CatalogService
	uploader  ports.CvUploader
	downloads ports.DownloadURLIssuer
	identity  ports.IdentityVerifier
	blobs     BlobServer
	metrics   *metrics.HTTPServerMetrics
	contract  routers.Router
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	rt := &Router{
		cfg:       cfg,
		catalog:   deps.Catalog,
		uploader:  deps.Uploader,
		downloads: deps.Downloads,
		identity:  deps.Identity,
		blobs:     deps.Blobs,
		metrics:   deps.Metrics,
	}
	if cfg.OpenAPIValidation {
		_, contract, err := loadOpenAPI(context.Background())
		if err != nil {
			// the document is embedded, so this only fails on a broken build
			panic(err)
		}
		rt.contract = contract
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPISpec)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("GET /api/cvs", rt.authenticated(rt.searchCvs))
	mux.HandleFunc("POST /api/cvs", rt.authenticated(rt.uploadCv))
	mux.HandleFunc("POST /api/cvs/register", rt.authenticated(rt.registerCv))
	// /api/cvs/user/{email} and /api/cvs/{cv_id}/download-url overlap as
	// mux patterns, so one route dispatches both.
	mux.HandleFunc("GET /api/cvs/{first}/{second}", rt.authenticated(rt.cvSubresource))
	mux.HandleFunc("POST /internal/ingestions", rt.completeIngestion)
	if rt.blobs != nil {
		mux.HandleFunc("GET /blobs/{key...}", rt.serveBlob)
	}

	var handler http.Handler = mux
	if rt.contract != nil {
		handler = openAPIValidationMiddleware(handler, rt.contract)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.rejectHook("backpressure"))
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejectHook("rate_limit"))
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = recoverMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(openAPIDocument); err != nil {
		slog.Warn("openapi_write_failed", "error", err)
	}
}

func (rt *Router) rejectHook(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() { rt.metrics.RecordRejected(serviceName, reason) }
}

func (rt *Router) recordAuthFailure(scheme string) {
	if rt.metrics != nil {
		rt.metrics.RecordAuthFailure(serviceName, scheme)
	}
}

func (rt *Router) recordOperation(operation string, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordCatalogOperation(serviceName, operation, err)
	}
}
