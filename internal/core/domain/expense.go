package domain

import "time"

// Expense is a per-scope monetary record. Amounts are integer cents; there
// is no currency handling here, the whole ledger is euro-denominated.
type Expense struct {
	ID          string          `json:"id"`
	ScopeKind   ScopeKind       `json:"scope_kind"`
	ScopeID     string          `json:"scope_id"`
	Label       string          `json:"label"`
	AmountCents int64           `json:"amount_cents"`
	SpentAt     time.Time       `json:"spent_at"`
	Receipt     *StoredArtifact `json:"receipt,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e *Expense) Scope() ScopeRef {
	return ScopeRef{Kind: e.ScopeKind, ID: e.ScopeID}
}
