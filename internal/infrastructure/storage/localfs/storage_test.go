package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPutWritesObjectAndReturnsLocator(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	locator, err := store.Put(context.Background(), "company/self/kbis/abc_kbis.pdf", []byte("pdf"), "application/pdf")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasPrefix(locator, "file://") {
		t.Fatalf("locator = %s, want file:// scheme", locator)
	}

	raw, err := os.ReadFile(filepath.Join(base, "company", "self", "kbis", "abc_kbis.pdf"))
	if err != nil {
		t.Fatalf("read stored object: %v", err)
	}
	if string(raw) != "pdf" {
		t.Fatalf("stored content = %q", raw)
	}
}

func TestPutOverwritesExistingObject(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := store.Put(context.Background(), "k", []byte("v1"), ""); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	locator, err := store.Put(context.Background(), "k", []byte("v2"), "")
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	raw, err := os.ReadFile(strings.TrimPrefix(locator, "file://"))
	if err != nil {
		t.Fatalf("read stored object: %v", err)
	}
	if string(raw) != "v2" {
		t.Fatalf("stored content = %q, want v2", raw)
	}
}
