package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/batipro/chantierdesk/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"cancellation", context.Canceled, false, false},
		{"no servers", nats.ErrNoServers, true, true},
		{"timeout", nats.ErrTimeout, true, true},
		{"closed connection", nats.ErrConnectionClosed, true, true},
		{"bad subject", nats.ErrBadSubject, false, true},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range tests {
		class := classifyNATSError(tc.err)
		if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
			t.Fatalf("%s: classification = %+v", tc.name, class)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nil); err != nil {
		t.Fatalf("nil must stay nil, got %v", err)
	}

	wrapped := wrapTemporaryIfNeeded(nats.ErrNoServers)
	if !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("connectivity failure must be temporary, got %v", wrapped)
	}

	// Re-wrapping must be idempotent.
	if again := wrapTemporaryIfNeeded(wrapped); again != wrapped {
		t.Fatalf("already-temporary error was wrapped again")
	}

	permanent := wrapTemporaryIfNeeded(nats.ErrBadSubject)
	if domain.IsKind(permanent, domain.ErrTemporary) {
		t.Fatalf("bad subject is not transient, got %v", permanent)
	}
}
