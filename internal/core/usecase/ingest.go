package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

// PipelineConfig carries the admission ceilings and durable-upload budget.
type PipelineConfig struct {
	// MaxDocumentBytes is the hard admission ceiling for documents.
	MaxDocumentBytes int64
	// MaxPhotoBytes is the hard admission ceiling for photo input.
	MaxPhotoBytes int64
	// ConfirmThresholdBytes is the soft threshold above which the caller's
	// Confirm capability is consulted before proceeding.
	ConfirmThresholdBytes int64
	// FallbackMaxBytes caps the inline data-URI fallback, bounded by the
	// record store's per-document size limit.
	FallbackMaxBytes int64

	UploadAttempts int
	UploadBackoff  time.Duration
	UploadTimeout  time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxDocumentBytes:      100 << 20,
		MaxPhotoBytes:         20 << 20,
		ConfirmThresholdBytes: 10 << 20,
		FallbackMaxBytes:      1 << 20,
		UploadAttempts:        3,
		UploadBackoff:         time.Second,
		UploadTimeout:         300 * time.Second,
	}
}

func (c PipelineConfig) normalize() PipelineConfig {
	def := DefaultPipelineConfig()
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = def.MaxDocumentBytes
	}
	if c.MaxPhotoBytes <= 0 {
		c.MaxPhotoBytes = def.MaxPhotoBytes
	}
	if c.ConfirmThresholdBytes <= 0 {
		c.ConfirmThresholdBytes = def.ConfirmThresholdBytes
	}
	if c.FallbackMaxBytes <= 0 {
		c.FallbackMaxBytes = def.FallbackMaxBytes
	}
	if c.UploadAttempts <= 0 {
		c.UploadAttempts = def.UploadAttempts
	}
	if c.UploadBackoff <= 0 {
		c.UploadBackoff = def.UploadBackoff
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = def.UploadTimeout
	}
	return c
}

// IngestObserver receives pipeline outcomes for metrics.
type IngestObserver interface {
	ObserveIngest(outcome string, sizeBytes int64)
	ObserveUploadAttempt()
}

// IngestPipeline normalizes, uploads and, when durable storage is
// unreachable, inline-encodes one blob per call. It performs no
// persistence itself; the registry records the returned document.
type IngestPipeline struct {
	blobs    ports.BlobStore
	media    ports.MediaProcessor
	cfg      PipelineConfig
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	observer IngestObserver
	logger   *slog.Logger
}

type PipelineOption func(*IngestPipeline)

// WithSleep injects the backoff wait, so retry timing is testable without
// wall-clock delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PipelineOption {
	return func(p *IngestPipeline) { p.sleep = sleep }
}

// WithClock injects the pipeline's notion of now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *IngestPipeline) { p.now = now }
}

func WithObserver(observer IngestObserver) PipelineOption {
	return func(p *IngestPipeline) { p.observer = observer }
}

func NewIngestPipeline(
	blobs ports.BlobStore,
	media ports.MediaProcessor,
	cfg PipelineConfig,
	logger *slog.Logger,
	opts ...PipelineOption,
) *IngestPipeline {
	p := &IngestPipeline{
		blobs:  blobs,
		media:  media,
		cfg:    cfg.normalize(),
		sleep:  cancellableSleep,
		now:    time.Now,
		logger: logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *IngestPipeline) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.Document, error) {
	if err := p.admit(req); err != nil {
		p.observe("rejected", int64(len(req.Data)))
		return nil, err
	}

	processed, mimeType := p.media.Process(ctx, req.Data, req.MimeType)

	id := uuid.NewString()
	key := storageKey(req.Scope, req.Type, id, req.Filename)

	artifact, err := p.store(ctx, key, processed, mimeType)
	if err != nil {
		p.observe("failed", int64(len(processed)))
		return nil, err
	}

	outcome := "durable"
	if artifact.Inline {
		outcome = "inline"
	}
	p.observe(outcome, artifact.SizeBytes)

	now := p.now().UTC()
	doc := &domain.Document{
		ID:           id,
		Type:         req.Type,
		ScopeKind:    req.Scope.Kind,
		ScopeID:      req.Scope.ID,
		Filename:     req.Filename,
		UploadedAt:   now,
		DocumentDate: req.DocumentDate,
		Artifact:     artifact,
	}
	if req.DocumentDate != nil {
		if expiry, ok := req.Type.ExpiryFor(*req.DocumentDate); ok {
			doc.ExpiryDate = &expiry
		}
	}
	return doc, nil
}

func (p *IngestPipeline) admit(req ports.IngestRequest) error {
	if !req.Scope.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "admission", fmt.Errorf("invalid scope %q/%q", req.Scope.Kind, req.Scope.ID))
	}
	if !req.Type.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "admission", fmt.Errorf("unknown document type %q", req.Type))
	}
	size := int64(len(req.Data))
	if size == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "admission", errors.New("empty upload"))
	}

	ceiling := p.cfg.MaxDocumentBytes
	if req.Photo {
		ceiling = p.cfg.MaxPhotoBytes
	}
	if size > ceiling {
		return domain.WrapError(domain.ErrTooLarge, "admission", fmt.Errorf("%d bytes over %d ceiling", size, ceiling))
	}
	if size > p.cfg.ConfirmThresholdBytes {
		if req.Confirm == nil || !req.Confirm(size) {
			return domain.WrapError(domain.ErrConfirmationDeclined, "admission", fmt.Errorf("%d bytes over %d soft threshold", size, p.cfg.ConfirmThresholdBytes))
		}
	}
	return nil
}

// store attempts the durable path, then degrades to the inline fallback.
func (p *IngestPipeline) store(ctx context.Context, key string, data []byte, mimeType string) (domain.StoredArtifact, error) {
	locator, uploadErr := p.uploadDurable(ctx, key, data, mimeType)
	if uploadErr == nil {
		return domain.StoredArtifact{
			Locator:   locator,
			SizeBytes: int64(len(data)),
			MimeType:  mimeType,
		}, nil
	}

	if int64(len(data)) > p.cfg.FallbackMaxBytes {
		return domain.StoredArtifact{}, domain.WrapError(domain.ErrTooLargeForFallback, "inline fallback", uploadErr)
	}

	p.logger.Warn("durable upload degraded to inline artifact",
		"key", key,
		"size_bytes", len(data),
		"error", uploadErr,
	)
	return domain.StoredArtifact{
		Locator:   "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		Inline:    true,
	}, nil
}

// uploadDurable runs the bounded retry loop raced against the global
// upload timeout. The timeout always wins gracefully: once it fires no
// further attempt starts and the error surfaces to fallback evaluation.
func (p *IngestPipeline) uploadDurable(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, p.cfg.UploadTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.UploadAttempts; attempt++ {
		if err := uploadCtx.Err(); err != nil {
			return "", p.classifyUploadFailure(err, lastErr)
		}

		if p.observer != nil {
			p.observer.ObserveUploadAttempt()
		}
		locator, err := p.blobs.Put(uploadCtx, key, data, mimeType)
		if err == nil {
			return locator, nil
		}
		lastErr = err

		if attempt == p.cfg.UploadAttempts {
			break
		}
		p.logger.Warn("durable upload attempt failed",
			"key", key,
			"attempt", attempt,
			"max_attempts", p.cfg.UploadAttempts,
			"error", err,
		)
		// Linear backoff, cancellable: attempt×base.
		wait := time.Duration(attempt) * p.cfg.UploadBackoff
		if err := p.sleep(uploadCtx, wait); err != nil {
			return "", p.classifyUploadFailure(err, lastErr)
		}
	}
	return "", domain.WrapError(domain.ErrUploadFailed, "durable upload", lastErr)
}

func (p *IngestPipeline) classifyUploadFailure(ctxErr, lastErr error) error {
	cause := lastErr
	if cause == nil {
		cause = ctxErr
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, "durable upload", cause)
	}
	return domain.WrapError(domain.ErrUploadFailed, "durable upload", cause)
}

func (p *IngestPipeline) observe(outcome string, size int64) {
	if p.observer != nil {
		p.observer.ObserveIngest(outcome, size)
	}
}

func cancellableSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func storageKey(scope domain.ScopeRef, docType domain.DocumentType, id, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s", scope.Kind, scope.ID, docType, id, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
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
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
