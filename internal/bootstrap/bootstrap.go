package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/batipro/chantierdesk/internal/config"
	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
	"github.com/batipro/chantierdesk/internal/core/usecase"
	"github.com/batipro/chantierdesk/internal/infrastructure/media"
	"github.com/batipro/chantierdesk/internal/infrastructure/oracle/docscan"
	"github.com/batipro/chantierdesk/internal/infrastructure/queue/nats"
	"github.com/batipro/chantierdesk/internal/infrastructure/recordstore/postgres"
	"github.com/batipro/chantierdesk/internal/infrastructure/resilience"
	"github.com/batipro/chantierdesk/internal/infrastructure/storage/localfs"
	"github.com/batipro/chantierdesk/internal/infrastructure/storage/minio"
	"github.com/batipro/chantierdesk/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Records ports.RecordStore
	Bus     *nats.Bus

	Ingestor  ports.DocumentIngestor
	Registry  *usecase.Registry
	Lifecycle *usecase.Lifecycle
	Ledger    *usecase.Ledger
	Oracle    ports.FieldExtractor

	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	records := postgres.NewStore(db)
	if err := records.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	publishExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSDocumentSubject, cfg.NATSProjectSubject, nats.Options{
		ResilienceExecutor: publishExecutor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	ingestMetrics := metrics.NewIngestMetrics(service, httpMetrics.Registry())

	processor := media.New(media.Config{
		MaxEdge: cfg.MediaMaxEdge,
		Quality: cfg.MediaJPEGQuality,
	}, logger)

	pipeline := usecase.NewIngestPipeline(blobs, processor, usecase.PipelineConfig{
		MaxDocumentBytes:      int64(cfg.MaxDocumentBytes),
		MaxPhotoBytes:         int64(cfg.MaxPhotoBytes),
		ConfirmThresholdBytes: int64(cfg.SoftThresholdBytes),
		FallbackMaxBytes:      int64(cfg.FallbackMaxBytes),
		UploadAttempts:        cfg.UploadAttempts,
		UploadBackoff:         time.Duration(cfg.UploadBackoffMs) * time.Millisecond,
		UploadTimeout:         time.Duration(cfg.UploadTimeoutSec) * time.Second,
	}, logger, usecase.WithObserver(ingestMetrics))

	registry := usecase.NewRegistry(records, bus, logger)
	lifecycle := usecase.NewLifecycle(registry, records, bus, logger)
	ledger := usecase.NewLedger(pipeline, records, logger)

	if err := hydrate(ctx, records, registry, lifecycle, ledger, logger); err != nil {
		logger.Warn("hydration incomplete, continuing with partial state", "error", err)
	}

	var oracle ports.FieldExtractor = unconfiguredOracle{}
	if cfg.ScanOracleURL != "" {
		oracle = docscan.New(docscan.Config{
			BaseURL:           cfg.ScanOracleURL,
			APIKey:            cfg.ScanOracleKey,
			RequestsPerSecond: float64(cfg.ScanOracleRPS),
		}, resilience.NewExecutor(resilience.DefaultConfig()))
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Records:     records,
		Bus:         bus,
		Ingestor:    pipeline,
		Registry:    registry,
		Lifecycle:   lifecycle,
		Ledger:      ledger,
		Oracle:      oracle,
		HTTPMetrics: httpMetrics,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newBlobStore(cfg config.Config) (ports.BlobStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		store, err := minio.New(minio.Config{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	case "localfs", "":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// hydrate rebuilds the in-memory state from the record store. Memory is
// authoritative at runtime; the store only has to survive restarts, so a
// partial read degrades to a partial view rather than a failed boot.
func hydrate(
	ctx context.Context,
	records ports.RecordStore,
	registry *usecase.Registry,
	lifecycle *usecase.Lifecycle,
	ledger *usecase.Ledger,
	logger *slog.Logger,
) error {
	docs, err := decodeCollection[domain.Document](ctx, records, "documents", logger)
	if err != nil {
		return err
	}
	registry.Hydrate(docs)

	projects, err := decodeCollection[domain.Project](ctx, records, "projects", logger)
	if err != nil {
		return err
	}
	lifecycle.Hydrate(projects)

	expenses, err := decodeCollection[domain.Expense](ctx, records, "expenses", logger)
	if err != nil {
		return err
	}
	ledger.Hydrate(expenses)

	logger.Info("state hydrated",
		"documents", len(docs),
		"projects", len(projects),
		"expenses", len(expenses),
	)
	return nil
}

func decodeCollection[T any](ctx context.Context, records ports.RecordStore, collection string, logger *slog.Logger) ([]T, error) {
	raw, err := records.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]T, 0, len(raw))
	for id, payload := range raw {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			logger.Warn("skipping undecodable record", "collection", collection, "id", id, "error", err)
			continue
		}
		out = append(out, value)
	}
	return out, nil
}

// unconfiguredOracle stands in when no scan endpoint is configured. The
// caller treats the error as "no guesses", same as any oracle outage.
type unconfiguredOracle struct{}

func (unconfiguredOracle) Extract(context.Context, string, string, []byte) (*domain.ExtractedFields, error) {
	return nil, domain.WrapError(domain.ErrTemporary, "scan document", errNoOracle)
}

var errNoOracle = fmt.Errorf("scan oracle is not configured")
