package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

const expensesCollection = "expenses"

// Ledger aggregates per-scope expenses. It has no state machine; the only
// moving part is receipt attachment, which reuses the ingestion pipeline.
type Ledger struct {
	mu      sync.RWMutex
	byScope map[string][]domain.Expense

	ingestor ports.DocumentIngestor
	records  ports.RecordStore
	now      func() time.Time
	logger   *slog.Logger
}

func NewLedger(ingestor ports.DocumentIngestor, records ports.RecordStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		byScope:  make(map[string][]domain.Expense),
		ingestor: ingestor,
		records:  records,
		now:      time.Now,
		logger:   logger,
	}
}

func (l *Ledger) Hydrate(expenses []domain.Expense) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range expenses {
		key := e.Scope().Key()
		l.byScope[key] = append(l.byScope[key], e)
	}
}

func (l *Ledger) Record(ctx context.Context, input ports.ExpenseInput) (*domain.Expense, error) {
	if !input.Scope.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record expense", fmt.Errorf("invalid scope %q/%q", input.Scope.Kind, input.Scope.ID))
	}
	if input.Label == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record expense", fmt.Errorf("empty label"))
	}
	if input.AmountCents <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record expense", fmt.Errorf("non-positive amount %d", input.AmountCents))
	}

	var receipt *domain.StoredArtifact
	if input.Receipt != nil {
		doc, err := l.ingestor.Ingest(ctx, *input.Receipt)
		if err != nil {
			return nil, fmt.Errorf("ingest receipt: %w", err)
		}
		receipt = &doc.Artifact
	}

	spentAt := input.SpentAt
	if spentAt.IsZero() {
		spentAt = l.now().UTC()
	}
	expense := domain.Expense{
		ID:          uuid.NewString(),
		ScopeKind:   input.Scope.Kind,
		ScopeID:     input.Scope.ID,
		Label:       input.Label,
		AmountCents: input.AmountCents,
		SpentAt:     spentAt,
		Receipt:     receipt,
		CreatedAt:   l.now().UTC(),
	}

	key := input.Scope.Key()
	l.mu.Lock()
	l.byScope[key] = append(l.byScope[key], expense)
	l.mu.Unlock()

	if err := l.records.Write(ctx, expensesCollection, expense.ID, expense); err != nil {
		l.logger.Warn("record store write failed", "collection", expensesCollection, "id", expense.ID, "error", err)
	}
	return &expense, nil
}

func (l *Ledger) List(scope domain.ScopeRef) []domain.Expense {
	l.mu.RLock()
	entries := l.byScope[scope.Key()]
	out := make([]domain.Expense, len(entries))
	copy(out, entries)
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SpentAt.Before(out[j].SpentAt) })
	return out
}

func (l *Ledger) Total(scope domain.ScopeRef) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total int64
	for _, e := range l.byScope[scope.Key()] {
		total += e.AmountCents
	}
	return total
}
