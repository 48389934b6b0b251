package domain

import (
	"fmt"
	"time"
)

type ScopeKind string

const (
	ScopeCompany  ScopeKind = "company"
	ScopePartner  ScopeKind = "partner"
	ScopeVehicle  ScopeKind = "vehicle"
	ScopeProject  ScopeKind = "project"
	ScopeEmployee ScopeKind = "employee"
)

func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeCompany, ScopePartner, ScopeVehicle, ScopeProject, ScopeEmployee:
		return true
	default:
		return false
	}
}

// ScopeRef identifies the entity a document or expense is attached to.
type ScopeRef struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func (s ScopeRef) Key() string {
	return string(s.Kind) + "/" + s.ID
}

func (s ScopeRef) Valid() bool {
	return s.Kind.Valid() && s.ID != ""
}

type DocumentType string

const (
	TypeKBIS               DocumentType = "kbis"
	TypeURSSAF             DocumentType = "urssaf"
	TypeCIBTP              DocumentType = "cibtp"
	TypePROBTP             DocumentType = "probtp"
	TypeFiscalAttestation  DocumentType = "fiscal_attestation"
	TypeInsuranceDecennale DocumentType = "insurance_decennale"
	TypeInsuranceCivile    DocumentType = "insurance_civile"
	TypeInsuranceVehicle   DocumentType = "insurance_vehicle"
	TypeRIB                DocumentType = "rib"
	TypeQuote              DocumentType = "quote"
	TypePV                 DocumentType = "pv"
	TypeInvoice            DocumentType = "invoice"
	TypePhoto              DocumentType = "photo"
	TypeReceipt            DocumentType = "receipt"
)

// validityMonths maps a document type to the number of months its printed
// date stays valid. Types absent from the table never expire. Adding a type
// is an edit here, not a scattered code change.
var validityMonths = map[DocumentType]int{
	TypeKBIS:               3,
	TypeURSSAF:             6,
	TypeCIBTP:              6,
	TypePROBTP:             6,
	TypeFiscalAttestation:  6,
	TypeInsuranceDecennale: 12,
	TypeInsuranceCivile:    12,
	TypeInsuranceVehicle:   12,
}

func (t DocumentType) Valid() bool {
	switch t {
	case TypeKBIS, TypeURSSAF, TypeCIBTP, TypePROBTP, TypeFiscalAttestation,
		TypeInsuranceDecennale, TypeInsuranceCivile, TypeInsuranceVehicle,
		TypeRIB, TypeQuote, TypePV, TypeInvoice, TypePhoto, TypeReceipt:
		return true
	default:
		return false
	}
}

func (t DocumentType) ValidityMonths() int {
	return validityMonths[t]
}

// ExpiryFor computes the expiry date for a document of this type printed on
// documentDate. The second return is false for types without a validity policy.
func (t DocumentType) ExpiryFor(documentDate time.Time) (time.Time, bool) {
	months, ok := validityMonths[t]
	if !ok {
		return time.Time{}, false
	}
	return documentDate.AddDate(0, months, 0), true
}

// StoredArtifact is the result of ingestion. Locator is either a
// network-resolvable URL (durable) or a self-contained data URI (inline,
// degraded fallback). Callers must not assume durability; Inline flags the
// degraded form so the UI can surface it instead of treating it as durable.
type StoredArtifact struct {
	Locator   string `json:"locator"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Inline    bool   `json:"inline,omitempty"`
}

type Document struct {
	ID           string         `json:"id"`
	Type         DocumentType   `json:"type"`
	ScopeKind    ScopeKind      `json:"scope_kind"`
	ScopeID      string         `json:"scope_id"`
	Filename     string         `json:"filename"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	DocumentDate *time.Time     `json:"document_date,omitempty"`
	ExpiryDate   *time.Time     `json:"expiry_date,omitempty"`
	Artifact     StoredArtifact `json:"artifact"`
}

func (d *Document) Scope() ScopeRef {
	return ScopeRef{Kind: d.ScopeKind, ID: d.ScopeID}
}

// DocumentStatus is derived from the expiry date and wall-clock time,
// never stored.
type DocumentStatus string

const (
	StatusMissing      DocumentStatus = "missing"
	StatusExpired      DocumentStatus = "expired"
	StatusExpiringSoon DocumentStatus = "expiring_soon"
	StatusValid        DocumentStatus = "valid"
)

const expiryWarningDays = 30

// StatusAt derives the document status at the given instant. Day boundaries
// are UTC calendar days: the expiry day itself counts as day 0, which is
// expiring-soon, not expired.
func (d *Document) StatusAt(now time.Time) DocumentStatus {
	if d == nil {
		return StatusMissing
	}
	if d.ExpiryDate == nil {
		return StatusValid
	}
	days := daysUntil(now, *d.ExpiryDate)
	switch {
	case days < 0:
		return StatusExpired
	case days < expiryWarningDays:
		return StatusExpiringSoon
	default:
		return StatusValid
	}
}

func daysUntil(now, expiry time.Time) int {
	nowDay := truncateToDay(now)
	expiryDay := truncateToDay(expiry)
	return int(expiryDay.Sub(nowDay) / (24 * time.Hour))
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DocumentEvent is the change notification published whenever a registry
// entry is inserted, superseded or removed.
type DocumentEvent struct {
	ScopeKind  ScopeKind    `json:"scope_kind"`
	ScopeID    string       `json:"scope_id"`
	Type       DocumentType `json:"type"`
	DocumentID string       `json:"document_id,omitempty"`
	Removed    bool         `json:"removed,omitempty"`
}

func (e DocumentEvent) String() string {
	return fmt.Sprintf("%s/%s/%s", e.ScopeKind, e.ScopeID, e.Type)
}

// ExtractedFields is the best-effort guess returned by the scan oracle.
// Any field may be absent; results never gate manual entry.
type ExtractedFields struct {
	DocumentDate *time.Time `json:"document_date,omitempty"`
	AmountCents  *int64     `json:"amount_cents,omitempty"`
	Supplier     string     `json:"supplier,omitempty"`
	SIRET        string     `json:"siret,omitempty"`
	Confidence   float64    `json:"confidence,omitempty"`
}
