package domain

import "time"

type ProjectStatus string

const (
	ProjectNew               ProjectStatus = "new"
	ProjectQuoteSent         ProjectStatus = "quote_sent"
	ProjectValidated         ProjectStatus = "validated"
	ProjectInProgress        ProjectStatus = "in_progress"
	ProjectWaitingValidation ProjectStatus = "waiting_validation"
	ProjectCompleted         ProjectStatus = "completed"
	ProjectLost              ProjectStatus = "lost"
	ProjectRefused           ProjectStatus = "refused"
	ProjectCancelled         ProjectStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s ProjectStatus) Terminal() bool {
	switch s {
	case ProjectCompleted, ProjectLost, ProjectRefused, ProjectCancelled:
		return true
	default:
		return false
	}
}

// AutoEligible reports whether date-driven auto-transition still applies.
// Once a project reaches waiting-validation or any terminal state, status
// changes are manual only.
func (s ProjectStatus) AutoEligible() bool {
	switch s {
	case ProjectNew, ProjectValidated, ProjectInProgress:
		return true
	default:
		return false
	}
}

type LifecycleEvent string

const (
	EventSendQuote   LifecycleEvent = "send_quote"
	EventDirectStart LifecycleEvent = "direct_start"
	EventRefuseQuote LifecycleEvent = "refuse_quote"
	EventAcceptQuote LifecycleEvent = "accept_quote"
	EventFinishWork  LifecycleEvent = "finish_work"
	EventRejectWork  LifecycleEvent = "reject_work"
	EventClose       LifecycleEvent = "close"
	EventCancel      LifecycleEvent = "cancel"
)

func (e LifecycleEvent) Valid() bool {
	switch e {
	case EventSendQuote, EventDirectStart, EventRefuseQuote, EventAcceptQuote,
		EventFinishWork, EventRejectWork, EventClose, EventCancel:
		return true
	default:
		return false
	}
}

type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    ProjectStatus `json:"status"`
	StartDate *time.Time    `json:"start_date,omitempty"`
	EndDate   *time.Time    `json:"end_date,omitempty"`
	// ManualStart records that an operator forced an early start. It does
	// not suppress date-driven reversion to validated; it exists so the UI
	// can warn when dates and a forced start disagree.
	ManualStart bool      `json:"manual_start,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Project) Scope() ScopeRef {
	return ScopeRef{Kind: ScopeProject, ID: p.ID}
}

// closingRequirements are the document types that gate closing a project.
var closingRequirements = []DocumentType{TypePV, TypeInvoice}

func ClosingRequirements() []DocumentType {
	out := make([]DocumentType, len(closingRequirements))
	copy(out, closingRequirements)
	return out
}
