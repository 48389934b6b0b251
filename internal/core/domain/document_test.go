package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpiryForValidityPolicies(t *testing.T) {
	printed := date(2024, time.January, 1)

	tests := []struct {
		docType DocumentType
		want    time.Time
		hasExp  bool
	}{
		{TypeKBIS, date(2024, time.April, 1), true},
		{TypeURSSAF, date(2024, time.July, 1), true},
		{TypeCIBTP, date(2024, time.July, 1), true},
		{TypePROBTP, date(2024, time.July, 1), true},
		{TypeFiscalAttestation, date(2024, time.July, 1), true},
		{TypeInsuranceDecennale, date(2025, time.January, 1), true},
		{TypeInsuranceCivile, date(2025, time.January, 1), true},
		{TypeInsuranceVehicle, date(2025, time.January, 1), true},
		{TypeRIB, time.Time{}, false},
		{TypeQuote, time.Time{}, false},
		{TypePhoto, time.Time{}, false},
	}

	for _, tc := range tests {
		got, ok := tc.docType.ExpiryFor(printed)
		if ok != tc.hasExp {
			t.Fatalf("%s: expiry presence = %v, want %v", tc.docType, ok, tc.hasExp)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("%s: expiry = %s, want %s", tc.docType, got, tc.want)
		}
	}
}

func TestStatusAtKBISWindow(t *testing.T) {
	printed := date(2024, time.January, 1)
	expiry, ok := TypeKBIS.ExpiryFor(printed)
	if !ok {
		t.Fatalf("kbis must carry a validity policy")
	}
	doc := &Document{Type: TypeKBIS, DocumentDate: &printed, ExpiryDate: &expiry}

	tests := []struct {
		now  time.Time
		want DocumentStatus
	}{
		{date(2024, time.February, 1), StatusValid},
		{date(2024, time.March, 2), StatusValid},             // 30 days out, just outside the warning window
		{date(2024, time.March, 3), StatusExpiringSoon},      // 29 days out
		{date(2024, time.March, 20), StatusExpiringSoon},     // scenario from the field: 12 days left
		{date(2024, time.April, 1), StatusExpiringSoon},      // expiry day itself is day 0
		{date(2024, time.April, 2), StatusExpired},           // first day past expiry
		{date(2025, time.January, 1), StatusExpired},
	}

	for _, tc := range tests {
		if got := doc.StatusAt(tc.now); got != tc.want {
			t.Fatalf("StatusAt(%s) = %s, want %s", tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestStatusAtIgnoresTimeOfDay(t *testing.T) {
	expiry := date(2024, time.April, 1)
	doc := &Document{Type: TypeKBIS, ExpiryDate: &expiry}

	lateOnExpiryDay := time.Date(2024, time.April, 1, 23, 59, 59, 0, time.UTC)
	if got := doc.StatusAt(lateOnExpiryDay); got != StatusExpiringSoon {
		t.Fatalf("expiry day 23:59 = %s, want %s", got, StatusExpiringSoon)
	}

	earlyNextDay := time.Date(2024, time.April, 2, 0, 0, 1, 0, time.UTC)
	if got := doc.StatusAt(earlyNextDay); got != StatusExpired {
		t.Fatalf("day after 00:00 = %s, want %s", got, StatusExpired)
	}
}

func TestStatusAtNoExpiry(t *testing.T) {
	doc := &Document{Type: TypeRIB}
	if got := doc.StatusAt(date(2100, time.January, 1)); got != StatusValid {
		t.Fatalf("no-expiry doc = %s, want %s", got, StatusValid)
	}

	var missing *Document
	if got := missing.StatusAt(time.Now()); got != StatusMissing {
		t.Fatalf("nil doc = %s, want %s", got, StatusMissing)
	}
}

func TestScopeRefValidation(t *testing.T) {
	valid := ScopeRef{Kind: ScopeVehicle, ID: "v-12"}
	if !valid.Valid() {
		t.Fatalf("expected %s to be valid", valid.Key())
	}
	if valid.Key() != "vehicle/v-12" {
		t.Fatalf("unexpected key %s", valid.Key())
	}

	for _, bad := range []ScopeRef{
		{Kind: "warehouse", ID: "w-1"},
		{Kind: ScopeCompany, ID: ""},
	} {
		if bad.Valid() {
			t.Fatalf("expected %q/%q to be invalid", bad.Kind, bad.ID)
		}
	}
}
