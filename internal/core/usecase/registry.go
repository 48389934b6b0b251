package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

const documentsCollection = "documents"

// Registry is the live document set, keyed by (scope, type). Each scope
// has its own lock so uploads into different scopes never contend; within
// one scope, Upload and StatusOf are linearizable with respect to each
// other. Persistence is write-through to the record store and best effort:
// failures are logged, never surfaced.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]*scopeDocuments

	records ports.RecordStore
	bus     ports.EventBus
	logger  *slog.Logger
}

type scopeDocuments struct {
	mu     sync.Mutex
	byType map[domain.DocumentType]*domain.Document
}

func NewRegistry(records ports.RecordStore, bus ports.EventBus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		scopes:  make(map[string]*scopeDocuments),
		records: records,
		bus:     bus,
		logger:  logger,
	}
}

// Hydrate loads the persisted document set, typically once at startup.
// Later writes win over hydrated state.
func (r *Registry) Hydrate(docs []domain.Document) {
	for i := range docs {
		doc := docs[i]
		entry := r.scope(doc.Scope())
		entry.mu.Lock()
		if _, exists := entry.byType[doc.Type]; !exists {
			entry.byType[doc.Type] = &doc
		}
		entry.mu.Unlock()
	}
}

// Upload inserts the document, superseding any prior one for the same
// (scope, type) in a single critical section, and returns the superseded
// id. The superseded blob is not deleted from durable storage; only the
// reference is dropped, to avoid coupling to an unreliable delete path.
func (r *Registry) Upload(ctx context.Context, doc *domain.Document) string {
	entry := r.scope(doc.Scope())

	entry.mu.Lock()
	var supersededID string
	if prior, ok := entry.byType[doc.Type]; ok {
		supersededID = prior.ID
	}
	entry.byType[doc.Type] = doc
	entry.mu.Unlock()

	r.persist(ctx, doc)
	r.notify(ctx, domain.DocumentEvent{
		ScopeKind:  doc.ScopeKind,
		ScopeID:    doc.ScopeID,
		Type:       doc.Type,
		DocumentID: doc.ID,
	})
	return supersededID
}

func (r *Registry) Remove(ctx context.Context, scope domain.ScopeRef, docType domain.DocumentType) error {
	entry := r.scope(scope)

	entry.mu.Lock()
	doc, ok := entry.byType[docType]
	if ok {
		delete(entry.byType, docType)
	}
	entry.mu.Unlock()

	if !ok {
		return domain.WrapError(domain.ErrNotFound, "remove document", errNoDocument(scope, docType))
	}

	if err := r.records.Delete(ctx, documentsCollection, doc.ID); err != nil {
		r.logger.Warn("record store delete failed", "collection", documentsCollection, "id", doc.ID, "error", err)
	}
	r.notify(ctx, domain.DocumentEvent{
		ScopeKind:  scope.Kind,
		ScopeID:    scope.ID,
		Type:       docType,
		DocumentID: doc.ID,
		Removed:    true,
	})
	return nil
}

// StatusOf is a pure function over the current document set and now.
func (r *Registry) StatusOf(scope domain.ScopeRef, docType domain.DocumentType, now time.Time) domain.DocumentStatus {
	doc, ok := r.Get(scope, docType)
	if !ok {
		return domain.StatusMissing
	}
	return doc.StatusAt(now)
}

func (r *Registry) Get(scope domain.ScopeRef, docType domain.DocumentType) (*domain.Document, bool) {
	r.mu.RLock()
	entry, ok := r.scopes[scope.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	doc, ok := entry.byType[docType]
	if !ok {
		return nil, false
	}
	copied := *doc
	return &copied, true
}

func (r *Registry) List(scope domain.ScopeRef) []domain.Document {
	r.mu.RLock()
	entry, ok := r.scopes[scope.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	out := make([]domain.Document, 0, len(entry.byType))
	for _, doc := range entry.byType {
		out = append(out, *doc)
	}
	entry.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Missing reports which of the given types have no live document in the
// scope. Lifecycle guards poll this, so it stays allocation-light.
func (r *Registry) Missing(scope domain.ScopeRef, types ...domain.DocumentType) []domain.DocumentType {
	r.mu.RLock()
	entry, ok := r.scopes[scope.Key()]
	r.mu.RUnlock()

	var missing []domain.DocumentType
	if !ok {
		return append(missing, types...)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, t := range types {
		if _, exists := entry.byType[t]; !exists {
			missing = append(missing, t)
		}
	}
	return missing
}

func (r *Registry) scope(scope domain.ScopeRef) *scopeDocuments {
	key := scope.Key()

	r.mu.RLock()
	entry, ok := r.scopes[key]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.scopes[key]; ok {
		return entry
	}
	entry = &scopeDocuments{byType: make(map[domain.DocumentType]*domain.Document)}
	r.scopes[key] = entry
	return entry
}

func (r *Registry) persist(ctx context.Context, doc *domain.Document) {
	if err := r.records.Write(ctx, documentsCollection, doc.ID, doc); err != nil {
		r.logger.Warn("record store write failed", "collection", documentsCollection, "id", doc.ID, "error", err)
	}
}

func errNoDocument(scope domain.ScopeRef, docType domain.DocumentType) error {
	return fmt.Errorf("no %s document for scope %s", docType, scope.Key())
}

func (r *Registry) notify(ctx context.Context, event domain.DocumentEvent) {
	if r.bus == nil {
		return
	}
	if err := r.bus.PublishDocumentChanged(ctx, event); err != nil {
		r.logger.Warn("document event publish failed", "event", event.String(), "error", err)
	}
}
