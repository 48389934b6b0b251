package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

type ingestorFake struct {
	doc  *domain.Document
	err  error
	last *ports.IngestRequest
}

func (f *ingestorFake) Ingest(_ context.Context, req ports.IngestRequest) (*domain.Document, error) {
	f.last = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func projectScope() domain.ScopeRef {
	return domain.ScopeRef{Kind: domain.ScopeProject, ID: "p-1"}
}

func TestLedgerRecordAndTotal(t *testing.T) {
	ledger := NewLedger(&ingestorFake{}, newRecordStoreFake(), testLogger())
	scope := projectScope()

	first, err := ledger.Record(context.Background(), ports.ExpenseInput{
		Scope:       scope,
		Label:       "location mini-pelle",
		AmountCents: 45000,
		SpentAt:     time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected expense id")
	}

	_, err = ledger.Record(context.Background(), ports.ExpenseInput{
		Scope:       scope,
		Label:       "sacs de ciment",
		AmountCents: 12050,
		SpentAt:     time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if total := ledger.Total(scope); total != 57050 {
		t.Fatalf("total = %d, want 57050", total)
	}

	expenses := ledger.List(scope)
	if len(expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(expenses))
	}
	if expenses[0].Label != "sacs de ciment" {
		t.Fatalf("expected chronological order, first = %s", expenses[0].Label)
	}

	if total := ledger.Total(domain.ScopeRef{Kind: domain.ScopeProject, ID: "other"}); total != 0 {
		t.Fatalf("unrelated scope total = %d, want 0", total)
	}
}

func TestLedgerRecordValidation(t *testing.T) {
	ledger := NewLedger(&ingestorFake{}, newRecordStoreFake(), testLogger())

	cases := []ports.ExpenseInput{
		{Scope: domain.ScopeRef{Kind: "warehouse", ID: "w"}, Label: "x", AmountCents: 100},
		{Scope: projectScope(), Label: "", AmountCents: 100},
		{Scope: projectScope(), Label: "x", AmountCents: 0},
		{Scope: projectScope(), Label: "x", AmountCents: -5},
	}
	for i, input := range cases {
		if _, err := ledger.Record(context.Background(), input); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestLedgerRecordWithReceipt(t *testing.T) {
	artifact := domain.StoredArtifact{Locator: "https://blobs.local/r1", SizeBytes: 9, MimeType: "image/jpeg"}
	ingestor := &ingestorFake{doc: &domain.Document{ID: "r1", Artifact: artifact}}
	ledger := NewLedger(ingestor, newRecordStoreFake(), testLogger())

	expense, err := ledger.Record(context.Background(), ports.ExpenseInput{
		Scope:       projectScope(),
		Label:       "parking",
		AmountCents: 350,
		Receipt: &ports.IngestRequest{
			Scope:    projectScope(),
			Type:     domain.TypeReceipt,
			Filename: "ticket.jpg",
			MimeType: "image/jpeg",
			Data:     []byte("jpg-bytes"),
			Photo:    true,
		},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if expense.Receipt == nil || expense.Receipt.Locator != artifact.Locator {
		t.Fatalf("expected attached receipt artifact, got %+v", expense.Receipt)
	}
	if ingestor.last == nil || ingestor.last.Type != domain.TypeReceipt {
		t.Fatalf("receipt must go through the ingestion pipeline")
	}
}

func TestLedgerRecordReceiptIngestFailure(t *testing.T) {
	ingestor := &ingestorFake{err: domain.WrapError(domain.ErrTooLarge, "admission", errors.New("too big"))}
	ledger := NewLedger(ingestor, newRecordStoreFake(), testLogger())

	_, err := ledger.Record(context.Background(), ports.ExpenseInput{
		Scope:       projectScope(),
		Label:       "parking",
		AmountCents: 350,
		Receipt:     &ports.IngestRequest{Scope: projectScope(), Type: domain.TypeReceipt, Data: []byte("x")},
	})
	if !domain.IsKind(err, domain.ErrTooLarge) {
		t.Fatalf("expected ingest failure to surface, got %v", err)
	}
	if total := ledger.Total(projectScope()); total != 0 {
		t.Fatalf("failed record must not be added, total = %d", total)
	}
}
