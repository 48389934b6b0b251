package ports

import (
	"context"

	"github.com/batipro/chantierdesk/internal/core/domain"
)

// BlobStore is the durable object store. Put returns a resolvable locator
// for the stored object. Failures are generic; no partial-write recovery
// is offered and a retried partial upload may leave an orphaned object,
// which is acceptable and not cleaned up here.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// RecordStore is the remote key-value document store. Writes are best
// effort and treated as eventually durable, never immediately confirmed;
// callers log failures instead of surfacing them. Get and List exist to
// rehydrate in-memory state at startup.
type RecordStore interface {
	Write(ctx context.Context, collection, id string, record any) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string, out any) error
	List(ctx context.Context, collection string) (map[string][]byte, error)
}

// EventBus carries change notifications for reactive consumers.
type EventBus interface {
	PublishDocumentChanged(ctx context.Context, event domain.DocumentEvent) error
	SubscribeDocumentChanged(ctx context.Context, handler func(context.Context, domain.DocumentEvent) error) error
	PublishProjectChanged(ctx context.Context, projectID string) error
}

// MediaProcessor normalizes an upload into a transfer-friendly artifact.
// It never fails outward: on any internal error it returns the input
// unchanged.
type MediaProcessor interface {
	Process(ctx context.Context, data []byte, mimeType string) ([]byte, string)
}

// FieldExtractor is the untrusted scan oracle. Nil fields and partial
// results are expected; errors must never block the manual-entry path.
type FieldExtractor interface {
	Extract(ctx context.Context, filename, mimeType string, data []byte) (*domain.ExtractedFields, error)
}
