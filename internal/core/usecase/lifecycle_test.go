package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

// guardFake answers document-presence checks from a fixed set of types.
type guardFake struct {
	present map[domain.DocumentType]bool
}

func (f *guardFake) Missing(_ domain.ScopeRef, types ...domain.DocumentType) []domain.DocumentType {
	var missing []domain.DocumentType
	for _, t := range types {
		if !f.present[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

func (f *guardFake) add(types ...domain.DocumentType) {
	if f.present == nil {
		f.present = make(map[domain.DocumentType]bool)
	}
	for _, t := range types {
		f.present[t] = true
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedProject(l *Lifecycle, status domain.ProjectStatus, start, end *time.Time) string {
	p := domain.Project{
		ID:        "p-" + string(status),
		Name:      "chantier",
		Status:    status,
		StartDate: start,
		EndDate:   end,
	}
	l.Hydrate([]domain.Project{p})
	return p.ID
}

func newTestLifecycle(guard *guardFake, now time.Time) *Lifecycle {
	return NewLifecycle(guard, newRecordStoreFake(), &eventBusFake{}, testLogger(), WithLifecycleClock(fixedClock(now)))
}

func TestLifecycleCreate(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, now)

	p, err := l.Create(context.Background(), "ravalement facade", nil, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Status != domain.ProjectNew {
		t.Fatalf("status = %s, want new", p.Status)
	}

	if _, err := l.Create(context.Background(), "", nil, nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("empty name must be rejected, got %v", err)
	}

	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	if _, err := l.Create(context.Background(), "x", &start, &end); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("end before start must be rejected, got %v", err)
	}
}

func TestLifecycleCreateWithFutureStartIsValidated(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, now)

	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	p, err := l.Create(context.Background(), "chantier", &start, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Status != domain.ProjectValidated {
		t.Fatalf("future-dated project status = %s, want validated", p.Status)
	}
}

func TestLifecycleTransitionTable(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		from      domain.ProjectStatus
		event     domain.LifecycleEvent
		want      domain.ProjectStatus
		wantGuard bool
	}{
		{domain.ProjectNew, domain.EventSendQuote, domain.ProjectQuoteSent, false},
		{domain.ProjectNew, domain.EventDirectStart, domain.ProjectInProgress, false},
		{domain.ProjectQuoteSent, domain.EventRefuseQuote, domain.ProjectLost, false},
		{domain.ProjectQuoteSent, domain.EventAcceptQuote, domain.ProjectValidated, false},
		{domain.ProjectInProgress, domain.EventFinishWork, domain.ProjectWaitingValidation, false},
		{domain.ProjectWaitingValidation, domain.EventRejectWork, domain.ProjectRefused, false},
		{domain.ProjectWaitingValidation, domain.EventClose, domain.ProjectCompleted, false},
		{domain.ProjectNew, domain.EventCancel, domain.ProjectCancelled, false},
		{domain.ProjectInProgress, domain.EventCancel, domain.ProjectCancelled, false},
		{domain.ProjectWaitingValidation, domain.EventCancel, domain.ProjectCancelled, false},

		{domain.ProjectNew, domain.EventFinishWork, "", true},
		{domain.ProjectNew, domain.EventClose, "", true},
		{domain.ProjectQuoteSent, domain.EventSendQuote, "", true},
		{domain.ProjectValidated, domain.EventAcceptQuote, "", true},
		{domain.ProjectInProgress, domain.EventSendQuote, "", true},
	}

	for _, tc := range tests {
		guard := &guardFake{}
		guard.add(domain.TypeQuote, domain.TypePV, domain.TypeInvoice)
		l := newTestLifecycle(guard, now)
		id := seedProject(l, tc.from, nil, nil)

		p, err := l.Transition(context.Background(), id, tc.event, ports.TransitionOptions{})
		if tc.wantGuard {
			if _, ok := domain.AsGuardError(err); !ok {
				t.Fatalf("%s+%s: expected guard error, got %v", tc.from, tc.event, err)
			}
			current, _ := l.Get(id)
			if current.Status != tc.from {
				t.Fatalf("%s+%s: refused event mutated status to %s", tc.from, tc.event, current.Status)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s+%s: error = %v", tc.from, tc.event, err)
		}
		if p.Status != tc.want {
			t.Fatalf("%s+%s: status = %s, want %s", tc.from, tc.event, p.Status, tc.want)
		}
	}
}

func TestLifecycleTerminalStatesRejectEverything(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	for _, status := range []domain.ProjectStatus{
		domain.ProjectCompleted, domain.ProjectLost, domain.ProjectRefused, domain.ProjectCancelled,
	} {
		l := newTestLifecycle(&guardFake{}, now)
		id := seedProject(l, status, nil, nil)
		_, err := l.Transition(context.Background(), id, domain.EventCancel, ports.TransitionOptions{})
		if !domain.IsKind(err, domain.ErrTerminalState) {
			t.Fatalf("%s: expected ErrTerminalState, got %v", status, err)
		}
	}
}

func TestLifecycleSendQuoteGuard(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	guard := &guardFake{}
	l := newTestLifecycle(guard, now)
	id := seedProject(l, domain.ProjectNew, nil, nil)

	_, err := l.Transition(context.Background(), id, domain.EventSendQuote, ports.TransitionOptions{})
	guardErr, ok := domain.AsGuardError(err)
	if !ok {
		t.Fatalf("expected guard error, got %v", err)
	}
	if len(guardErr.Missing) != 1 || guardErr.Missing[0] != domain.TypeQuote {
		t.Fatalf("missing = %v, want [quote]", guardErr.Missing)
	}

	guard.add(domain.TypeQuote)
	p, err := l.Transition(context.Background(), id, domain.EventSendQuote, ports.TransitionOptions{})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if p.Status != domain.ProjectQuoteSent {
		t.Fatalf("status = %s, want quote_sent", p.Status)
	}
}

func TestLifecycleCloseGuardEitherArrivalOrder(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	orders := [][]domain.DocumentType{
		{domain.TypePV, domain.TypeInvoice},
		{domain.TypeInvoice, domain.TypePV},
	}
	for _, order := range orders {
		guard := &guardFake{}
		l := newTestLifecycle(guard, now)
		id := seedProject(l, domain.ProjectWaitingValidation, nil, nil)

		_, err := l.Transition(context.Background(), id, domain.EventClose, ports.TransitionOptions{})
		guardErr, ok := domain.AsGuardError(err)
		if !ok || len(guardErr.Missing) != 2 {
			t.Fatalf("expected both closing documents missing, got %v", err)
		}

		guard.add(order[0])
		_, err = l.Transition(context.Background(), id, domain.EventClose, ports.TransitionOptions{})
		guardErr, ok = domain.AsGuardError(err)
		if !ok || len(guardErr.Missing) != 1 || guardErr.Missing[0] != order[1] {
			t.Fatalf("after %s: expected only %s missing, got %v", order[0], order[1], err)
		}

		guard.add(order[1])
		p, err := l.Transition(context.Background(), id, domain.EventClose, ports.TransitionOptions{})
		if err != nil {
			t.Fatalf("close after both documents: %v", err)
		}
		if p.Status != domain.ProjectCompleted {
			t.Fatalf("status = %s, want completed", p.Status)
		}
	}
}

func TestLifecycleAcceptQuoteSetsWindow(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, now)
	id := seedProject(l, domain.ProjectQuoteSent, nil, nil)

	start := time.Date(2024, time.May, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	p, err := l.Transition(context.Background(), id, domain.EventAcceptQuote, ports.TransitionOptions{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	// Accepted with a window already open: the date rules fire reactively.
	if p.Status != domain.ProjectInProgress {
		t.Fatalf("status = %s, want in_progress", p.Status)
	}
}

func TestLifecycleTick(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, start)
	id := seedProject(l, domain.ProjectValidated, &start, &end)

	p, err := l.Tick(context.Background(), id, time.Date(2024, time.June, 5, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if p.Status != domain.ProjectInProgress {
		t.Fatalf("status = %s, want in_progress", p.Status)
	}

	firstUpdate := p.UpdatedAt
	p, err = l.Tick(context.Background(), id, time.Date(2024, time.June, 6, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if p.Status != domain.ProjectInProgress {
		t.Fatalf("repeated tick changed status to %s", p.Status)
	}
	if !p.UpdatedAt.Equal(firstUpdate) {
		t.Fatalf("no-op tick must not touch UpdatedAt")
	}
}

func TestLifecycleTickOutsideAutoEligibleStatuses(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, start)
	id := seedProject(l, domain.ProjectWaitingValidation, &start, &end)

	p, err := l.Tick(context.Background(), id, time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if p.Status != domain.ProjectWaitingValidation {
		t.Fatalf("clock must not move waiting_validation, got %s", p.Status)
	}
}

func TestLifecycleDateReversionAfterManualStart(t *testing.T) {
	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, now)
	id := seedProject(l, domain.ProjectNew, nil, nil)

	p, err := l.Transition(context.Background(), id, domain.EventDirectStart, ports.TransitionOptions{})
	if err != nil {
		t.Fatalf("direct_start error = %v", err)
	}
	if p.Status != domain.ProjectInProgress || !p.ManualStart {
		t.Fatalf("expected forced in_progress with manual flag, got %s/%v", p.Status, p.ManualStart)
	}

	// Pushing the window into the future reverts the status; the manual
	// flag is kept for the record but does not pin the status.
	futureStart := time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	p, err = l.SetDates(context.Background(), id, &futureStart, nil)
	if err != nil {
		t.Fatalf("SetDates() error = %v", err)
	}
	if p.Status != domain.ProjectValidated {
		t.Fatalf("status = %s, want validated after future-dating", p.Status)
	}
	if !p.ManualStart {
		t.Fatalf("manual start flag must survive reversion")
	}
}

func TestLifecycleTickAll(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	l := newTestLifecycle(&guardFake{}, start)

	due := domain.Project{ID: "due", Name: "a", Status: domain.ProjectValidated, StartDate: &start, EndDate: &end}
	idle := domain.Project{ID: "idle", Name: "b", Status: domain.ProjectNew}
	closed := domain.Project{ID: "closed", Name: "c", Status: domain.ProjectCompleted, StartDate: &start, EndDate: &end}
	l.Hydrate([]domain.Project{due, idle, closed})

	changed := l.TickAll(context.Background(), time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC))
	if changed != 1 {
		t.Fatalf("TickAll changed %d projects, want 1", changed)
	}
	p, _ := l.Get("due")
	if p.Status != domain.ProjectInProgress {
		t.Fatalf("due project status = %s, want in_progress", p.Status)
	}
}

func TestLifecycleClosingGuard(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	guard := &guardFake{}
	l := newTestLifecycle(guard, now)
	id := seedProject(l, domain.ProjectWaitingValidation, nil, nil)

	missing, err := l.ClosingGuard(id)
	if err != nil {
		t.Fatalf("ClosingGuard() error = %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want both closing documents", missing)
	}

	if _, err := l.ClosingGuard("nope"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("unknown project: expected ErrNotFound, got %v", err)
	}
}
