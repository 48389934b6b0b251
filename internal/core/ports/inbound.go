package ports

import (
	"context"
	"time"

	"github.com/batipro/chantierdesk/internal/core/domain"
)

// IngestRequest is the explicit per-call context for one upload. Routing
// state lives here, never in shared mutable state, so a second upload
// started before the first finishes cannot change where the first lands.
type IngestRequest struct {
	Scope        domain.ScopeRef
	Type         domain.DocumentType
	Filename     string
	MimeType     string
	Data         []byte
	DocumentDate *time.Time
	// Photo selects the tighter photo admission ceiling.
	Photo bool
	// Confirm is the caller-supplied capability consulted above the soft
	// size threshold. Nil means the caller cannot confirm, so oversized
	// uploads are declined.
	Confirm func(sizeBytes int64) bool
}

// DocumentIngestor runs the resilient ingestion pipeline. It is pure with
// respect to persistence: it returns the artifact and metadata, the
// registry records them.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)
}

// DocumentRegistry holds the live document set per scope. At most one
// document exists per (scope, type); Upload supersedes atomically and
// returns the superseded id for bookkeeping.
type DocumentRegistry interface {
	Upload(ctx context.Context, doc *domain.Document) (supersededID string)
	Remove(ctx context.Context, scope domain.ScopeRef, docType domain.DocumentType) error
	StatusOf(scope domain.ScopeRef, docType domain.DocumentType, now time.Time) domain.DocumentStatus
	Get(scope domain.ScopeRef, docType domain.DocumentType) (*domain.Document, bool)
	List(scope domain.ScopeRef) []domain.Document
	Missing(scope domain.ScopeRef, types ...domain.DocumentType) []domain.DocumentType
}

// TransitionOptions carries operator input for events that need it;
// accept-quote prompts for the confirmed window.
type TransitionOptions struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// ProjectLifecycle is the finite-state machine governing project status.
// Tick is the reactive date-driven evaluator, invoked whenever date or
// status context changes and periodically by the worker.
type ProjectLifecycle interface {
	Create(ctx context.Context, name string, start, end *time.Time) (*domain.Project, error)
	Get(id string) (*domain.Project, error)
	Transition(ctx context.Context, id string, event domain.LifecycleEvent, opts TransitionOptions) (*domain.Project, error)
	SetDates(ctx context.Context, id string, start, end *time.Time) (*domain.Project, error)
	Tick(ctx context.Context, id string, now time.Time) (*domain.Project, error)
	TickAll(ctx context.Context, now time.Time) int
	ClosingGuard(id string) ([]domain.DocumentType, error)
}

// ExpenseInput describes one ledger entry; Receipt, when present, goes
// through the ingestion pipeline before the entry is recorded.
type ExpenseInput struct {
	Scope       domain.ScopeRef
	Label       string
	AmountCents int64
	SpentAt     time.Time
	Receipt     *IngestRequest
}

type ExpenseLedger interface {
	Record(ctx context.Context, input ExpenseInput) (*domain.Expense, error)
	List(scope domain.ScopeRef) []domain.Expense
	Total(scope domain.ScopeRef) int64
}
