package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/batipro/chantierdesk/internal/bootstrap"
	"github.com/batipro/chantierdesk/internal/config"
	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/observability/logging"
)

// The worker owns the clock-driven side of the system: it sweeps every
// project through the date-based auto transitions on a fixed interval and
// reacts to document changes that may affect a project's closing guard.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.HTTPMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go runTicker(ctx, app, logger, time.Duration(cfg.TickIntervalSec)*time.Second)

	logger.Info("worker subscribed", "subject", cfg.NATSDocumentSubject)
	err = app.Bus.SubscribeDocumentChanged(ctx, func(handlerCtx context.Context, event domain.DocumentEvent) error {
		return handleDocumentChanged(handlerCtx, app, logger, event)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func runTicker(ctx context.Context, app *bootstrap.App, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One sweep at startup catches transitions that became due while the
	// worker was down.
	sweep(ctx, app, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, app, logger)
		}
	}
}

func sweep(ctx context.Context, app *bootstrap.App, logger *slog.Logger) {
	changed := app.Lifecycle.TickAll(ctx, time.Now())
	if changed > 0 {
		logger.Info("auto transitions applied", "projects_changed", changed)
	}
}

// handleDocumentChanged refreshes the closing-guard view for project
// scopes when a closing document arrives or disappears. Other scopes need
// no reaction here; their statuses are derived on read.
func handleDocumentChanged(ctx context.Context, app *bootstrap.App, logger *slog.Logger, event domain.DocumentEvent) error {
	if event.ScopeKind != domain.ScopeProject {
		return nil
	}

	missing, err := app.Lifecycle.ClosingGuard(event.ScopeID)
	if err != nil {
		// Documents can reference projects this instance has not seen yet.
		logger.Debug("closing guard skipped", "project_id", event.ScopeID, "error", err)
		return nil
	}

	logger.Info("closing guard recomputed",
		"project_id", event.ScopeID,
		"document_type", event.Type,
		"removed", event.Removed,
		"missing_to_close", missing,
	)
	if len(missing) == 0 {
		if _, err := app.Lifecycle.Tick(ctx, event.ScopeID, time.Now()); err != nil {
			logger.Warn("post-guard tick failed", "project_id", event.ScopeID, "error", err)
		}
	}
	return nil
}
