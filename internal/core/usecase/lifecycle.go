package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/batipro/chantierdesk/internal/core/domain"
	"github.com/batipro/chantierdesk/internal/core/ports"
)

const projectsCollection = "projects"

// guardRegistry is the slice of the registry the lifecycle needs for
// document-presence guards.
type guardRegistry interface {
	Missing(scope domain.ScopeRef, types ...domain.DocumentType) []domain.DocumentType
}

// Lifecycle governs project status: guarded manual transitions plus the
// date-driven auto rules. Auto rules are re-evaluated whenever status or
// dates change, and only while the status is still auto-eligible.
type Lifecycle struct {
	mu       sync.RWMutex
	projects map[string]*domain.Project

	registry guardRegistry
	records  ports.RecordStore
	bus      ports.EventBus
	now      func() time.Time
	logger   *slog.Logger
}

type LifecycleOption func(*Lifecycle)

func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

func NewLifecycle(registry guardRegistry, records ports.RecordStore, bus ports.EventBus, logger *slog.Logger, opts ...LifecycleOption) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lifecycle{
		projects: make(map[string]*domain.Project),
		registry: registry,
		records:  records,
		bus:      bus,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Hydrate loads persisted projects, typically once at startup.
func (l *Lifecycle) Hydrate(projects []domain.Project) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range projects {
		p := projects[i]
		if _, exists := l.projects[p.ID]; !exists {
			l.projects[p.ID] = &p
		}
	}
}

func (l *Lifecycle) Create(ctx context.Context, name string, start, end *time.Time) (*domain.Project, error) {
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create project", fmt.Errorf("empty name"))
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create project", fmt.Errorf("end date before start date"))
	}

	now := l.now().UTC()
	p := &domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    domain.ProjectNew,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.applyAuto(p, now)

	l.mu.Lock()
	l.projects[p.ID] = p
	l.mu.Unlock()

	l.persist(ctx, p)
	copied := *p
	return &copied, nil
}

func (l *Lifecycle) Get(id string) (*domain.Project, error) {
	l.mu.RLock()
	p, ok := l.projects[id]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get project", fmt.Errorf("project %s", id))
	}
	copied := *p
	return &copied, nil
}

// Transition applies one operator event. Guard violations leave the
// machine untouched and report what is missing.
func (l *Lifecycle) Transition(ctx context.Context, id string, event domain.LifecycleEvent, opts ports.TransitionOptions) (*domain.Project, error) {
	if !event.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("unknown event %q", event))
	}

	l.mu.Lock()
	p, ok := l.projects[id]
	if !ok {
		l.mu.Unlock()
		return nil, domain.WrapError(domain.ErrNotFound, "transition", fmt.Errorf("project %s", id))
	}

	next, err := l.evaluate(p, event, opts)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}

	now := l.now().UTC()
	p.Status = next
	if event == domain.EventDirectStart {
		p.ManualStart = true
	}
	if event == domain.EventAcceptQuote {
		if opts.StartDate != nil {
			p.StartDate = opts.StartDate
		}
		if opts.EndDate != nil {
			p.EndDate = opts.EndDate
		}
	}
	// Status changed, so the date rules get a reactive pass.
	l.applyAuto(p, now)
	p.UpdatedAt = now
	copied := *p
	l.mu.Unlock()

	l.persist(ctx, &copied)
	return &copied, nil
}

func (l *Lifecycle) evaluate(p *domain.Project, event domain.LifecycleEvent, _ ports.TransitionOptions) (domain.ProjectStatus, error) {
	if p.Status.Terminal() {
		return "", domain.WrapError(domain.ErrTerminalState, "transition", fmt.Errorf("project %s is %s", p.ID, p.Status))
	}

	if event == domain.EventCancel {
		return domain.ProjectCancelled, nil
	}

	switch {
	case p.Status == domain.ProjectNew && event == domain.EventSendQuote:
		if missing := l.registry.Missing(p.Scope(), domain.TypeQuote); len(missing) > 0 {
			return "", &domain.GuardError{Event: event, From: p.Status, Missing: missing}
		}
		return domain.ProjectQuoteSent, nil

	case p.Status == domain.ProjectNew && event == domain.EventDirectStart:
		return domain.ProjectInProgress, nil

	case p.Status == domain.ProjectQuoteSent && event == domain.EventRefuseQuote:
		return domain.ProjectLost, nil

	case p.Status == domain.ProjectQuoteSent && event == domain.EventAcceptQuote:
		return domain.ProjectValidated, nil

	case p.Status == domain.ProjectInProgress && event == domain.EventFinishWork:
		return domain.ProjectWaitingValidation, nil

	case p.Status == domain.ProjectWaitingValidation && event == domain.EventRejectWork:
		return domain.ProjectRefused, nil

	case p.Status == domain.ProjectWaitingValidation && event == domain.EventClose:
		if missing := l.registry.Missing(p.Scope(), domain.ClosingRequirements()...); len(missing) > 0 {
			return "", &domain.GuardError{Event: event, From: p.Status, Missing: missing}
		}
		return domain.ProjectCompleted, nil

	default:
		return "", &domain.GuardError{Event: event, From: p.Status, Reason: "event not applicable"}
	}
}

// SetDates updates the planned window and reactively re-evaluates the
// date rules.
func (l *Lifecycle) SetDates(ctx context.Context, id string, start, end *time.Time) (*domain.Project, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "set dates", fmt.Errorf("end date before start date"))
	}

	l.mu.Lock()
	p, ok := l.projects[id]
	if !ok {
		l.mu.Unlock()
		return nil, domain.WrapError(domain.ErrNotFound, "set dates", fmt.Errorf("project %s", id))
	}
	if start != nil {
		p.StartDate = start
	}
	if end != nil {
		p.EndDate = end
	}
	now := l.now().UTC()
	l.applyAuto(p, now)
	p.UpdatedAt = now
	copied := *p
	l.mu.Unlock()

	l.persist(ctx, &copied)
	return &copied, nil
}

// Tick runs the date-driven evaluation at the given instant. Repeated
// ticks with unchanged dates and status are no-ops.
func (l *Lifecycle) Tick(ctx context.Context, id string, now time.Time) (*domain.Project, error) {
	l.mu.Lock()
	p, ok := l.projects[id]
	if !ok {
		l.mu.Unlock()
		return nil, domain.WrapError(domain.ErrNotFound, "tick", fmt.Errorf("project %s", id))
	}
	changed := l.applyAuto(p, now)
	if changed {
		p.UpdatedAt = now.UTC()
	}
	copied := *p
	l.mu.Unlock()

	if changed {
		l.persist(ctx, &copied)
	}
	return &copied, nil
}

// TickAll sweeps every project and returns how many changed status.
func (l *Lifecycle) TickAll(ctx context.Context, now time.Time) int {
	l.mu.RLock()
	ids := make([]string, 0, len(l.projects))
	for id := range l.projects {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	changed := 0
	for _, id := range ids {
		l.mu.Lock()
		p, ok := l.projects[id]
		if !ok {
			l.mu.Unlock()
			continue
		}
		before := p.Status
		if l.applyAuto(p, now) {
			p.UpdatedAt = now.UTC()
			copied := *p
			l.mu.Unlock()
			changed++
			l.logger.Info("auto transition", "project_id", id, "from", before, "to", copied.Status)
			l.persist(ctx, &copied)
			continue
		}
		l.mu.Unlock()
	}
	return changed
}

// ClosingGuard reports which closing documents are still missing; empty
// means the close event would be accepted.
func (l *Lifecycle) ClosingGuard(id string) ([]domain.DocumentType, error) {
	p, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	return l.registry.Missing(p.Scope(), domain.ClosingRequirements()...), nil
}

// applyAuto evaluates the two date rules. Caller holds the lock. Returns
// whether the status changed.
func (l *Lifecycle) applyAuto(p *domain.Project, now time.Time) bool {
	if !p.Status.AutoEligible() {
		return false
	}
	today := truncateDay(now)

	if p.StartDate != nil && truncateDay(*p.StartDate).After(today) {
		if p.Status != domain.ProjectValidated {
			p.Status = domain.ProjectValidated
			return true
		}
		return false
	}

	if p.Status == domain.ProjectValidated && p.StartDate != nil && p.EndDate != nil {
		start := truncateDay(*p.StartDate)
		end := truncateDay(*p.EndDate)
		if !start.After(today) && !today.After(end) {
			p.Status = domain.ProjectInProgress
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (l *Lifecycle) persist(ctx context.Context, p *domain.Project) {
	if err := l.records.Write(ctx, projectsCollection, p.ID, p); err != nil {
		l.logger.Warn("record store write failed", "collection", projectsCollection, "id", p.ID, "error", err)
	}
	if l.bus == nil {
		return
	}
	if err := l.bus.PublishProjectChanged(ctx, p.ID); err != nil {
		l.logger.Warn("project event publish failed", "project_id", p.ID, "error", err)
	}
}
