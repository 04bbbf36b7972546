package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	httpadapter "github.com/kirillkom/cvgram/internal/adapters/http"
	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
	"github.com/kirillkom/cvgram/internal/core/usecase"
	"github.com/kirillkom/cvgram/internal/infrastructure/awsconfig"
	"github.com/kirillkom/cvgram/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/cvgram/internal/infrastructure/identity/cognito"
	"github.com/kirillkom/cvgram/internal/infrastructure/identity/jwt"
	"github.com/kirillkom/cvgram/internal/infrastructure/keywords"
	"github.com/kirillkom/cvgram/internal/infrastructure/queue/nats"
	"github.com/kirillkom/cvgram/internal/infrastructure/repository/dynamodb"
	"github.com/kirillkom/cvgram/internal/infrastructure/repository/memory"
	"github.com/kirillkom/cvgram/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/cvgram/internal/infrastructure/resilience"
	"github.com/kirillkom/cvgram/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/cvgram/internal/infrastructure/storage/s3"
)

// Options customizes the wiring for a single binary.
type Options struct {
	// NATSClientName identifies the process on the NATS server.
	NATSClientName string
	// OnIngested observes every catalog write made by the worker.
	OnIngested func(rec domain.CvRecord)
	// OnRetry observes retried publish and ingestion attempts.
	OnRetry func(operation string, attempt int, err error)
	// OnRepublished observes events re-sent by the pending sweep.
	OnRepublished func(count int)
}

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Storage   ports.ObjectStorage
	Blobs     httpadapter.BlobServer
	Identity  ports.IdentityVerifier
	Catalog   ports.CatalogService
	Uploader  ports.CvUploader
	Downloads ports.DownloadURLIssuer
	Processor ports.CvProcessor
	// Republisher recovers uploads whose event was lost; run it next to
	// the consumer with RunPendingSweep.
	Republisher *usecase.RepublishUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	awsOpts := awsconfig.Options{
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.AWSEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		loaded, err := awsconfig.Load(ctx, awsOpts)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg = &loaded
		return loaded, nil
	}

	repo, err := app.catalogRepository(ctx, cfg, awsOpts, loadAWS)
	if err != nil {
		return nil, err
	}

	storage, err := app.objectStorage(cfg, awsOpts, loadAWS)
	if err != nil {
		return nil, err
	}

	identity, err := identityVerifier(cfg, awsOpts, loadAWS)
	if err != nil {
		return nil, err
	}
	app.Identity = identity

	publishPolicy := resilience.PublishPolicy(resilience.RetrySettings{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}, cfg.BreakerEnabled)
	publishPolicy.OnRetry = opts.OnRetry
	publishExecutor := resilience.NewExecutor(publishPolicy)
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         opts.NATSClientName,
		ResilienceExecutor: publishExecutor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	// Upload events can overtake the catalog write, so the worker keeps
	// retrying a missing record for longer than the publish path.
	ingestPolicy := resilience.IngestPolicy(resilience.RetrySettings{
		MaxAttempts:    cfg.IngestRetryAttempts,
		InitialBackoff: cfg.IngestRetryBackoff,
		MaxBackoff:     cfg.IngestRetryMaxWait,
	})
	ingestPolicy.OnRetry = opts.OnRetry
	ingestRetrier := resilience.NewExecutor(ingestPolicy)

	catalog := usecase.NewCatalogUseCase(repo)
	app.Catalog = catalog
	app.Uploader = usecase.NewUploadUseCase(catalog, storage, queue, cfg.UploadMaxBytes)
	app.Downloads = usecase.NewDownloadUseCase(catalog, storage, cfg.DownloadURLTTL)
	app.Processor = usecase.NewProcessCvUseCase(
		catalog,
		pdf.NewExtractor(storage, cfg.UploadMaxBytes),
		keywords.NewExtractor(cfg.KeywordsMax),
		ingestRetrier,
		usecase.ProcessOptions{OnCompleted: opts.OnIngested},
	)
	app.Republisher = usecase.NewRepublishUseCase(catalog, queue, cfg.IngestPendingAge,
		usecase.RepublishOptions{OnRepublished: opts.OnRepublished})

	ok = true
	return app, nil
}

func (a *App) catalogRepository(
	ctx context.Context,
	cfg config.Config,
	awsOpts awsconfig.Options,
	loadAWS func() (aws.Config, error),
) (ports.CatalogRepository, error) {
	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { closeDB(db) })
		repo := postgres.NewCatalogRepository(db)
		if cfg.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		return repo, nil
	case config.CatalogDynamoDB:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			o.BaseEndpoint = awsconfig.BaseEndpoint(awsOpts)
		})
		repo := dynamodb.NewCatalogRepository(client, cfg.DynamoDBTable)
		if cfg.EnsureSchema {
			if err := repo.EnsureTable(ctx); err != nil {
				return nil, fmt.Errorf("ensure table: %w", err)
			}
		}
		return repo, nil
	case config.CatalogMemory:
		slog.Warn("catalog_memory_backend", "detail", "records are lost on restart and not shared between processes")
		return memory.NewCatalogRepository(), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

func (a *App) objectStorage(
	cfg config.Config,
	awsOpts awsconfig.Options,
	loadAWS func() (aws.Config, error),
) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		storage := s3.NewFromConfig(awsCfg, awsOpts, cfg.S3Bucket)
		a.Storage = storage
		return storage, nil
	case config.StorageLocalFS:
		storage, err := localfs.New(localfs.Options{
			BasePath:   cfg.StoragePath,
			PublicURL:  cfg.PublicBaseURL,
			SigningKey: cfg.StorageSigningKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		a.Storage = storage
		a.Blobs = storage
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func identityVerifier(
	cfg config.Config,
	awsOpts awsconfig.Options,
	loadAWS func() (aws.Config, error),
) (ports.IdentityVerifier, error) {
	switch cfg.AuthMode {
	case config.AuthJWT:
		verifier, err := jwt.NewVerifier(jwt.Options{
			HMACSecret:      cfg.JWTSecret,
			RSAPublicKeyPEM: cfg.JWTPublicKeyPEM,
			Issuer:          cfg.JWTIssuer,
			Audience:        cfg.JWTAudience,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt verifier: %w", err)
		}
		return verifier, nil
	case config.AuthCognito:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := cognitoidentityprovider.NewFromConfig(awsCfg, func(o *cognitoidentityprovider.Options) {
			o.BaseEndpoint = awsconfig.BaseEndpoint(awsOpts)
		})
		return cognito.NewVerifier(client, cfg.CognitoUserPoolID), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// RunPendingSweep blocks, re-publishing stale pending uploads on the
// configured interval.
func (a *App) RunPendingSweep(ctx context.Context) {
	slog.Info("pending_sweep_started", "interval", a.Config.IngestSweepInterval, "pending_age", a.Config.IngestPendingAge)
	a.Republisher.Run(ctx, a.Config.IngestSweepInterval)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
