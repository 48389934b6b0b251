package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	// Ingestion taxonomy. ErrTooLarge means the hard admission ceiling was
	// breached and nothing was attempted. ErrTimeout and ErrUploadFailed
	// describe why the durable path gave up; both are absorbed by the inline
	// fallback and only surface when the fallback is impossible too.
	ErrTooLarge             = errors.New("blob exceeds admission ceiling")
	ErrConfirmationDeclined = errors.New("caller declined large upload")
	ErrTimeout              = errors.New("durable upload deadline exceeded")
	ErrUploadFailed         = errors.New("durable upload exhausted retries")
	ErrTooLargeForFallback  = errors.New("processed blob exceeds inline fallback cap")

	ErrTerminalState = errors.New("project status is terminal")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// GuardError rejects a lifecycle transition whose precondition does not
// hold. It is expected and frequent: the UI polls guard state to render
// progress, so building one must stay cheap and never mutate the machine.
type GuardError struct {
	Event   LifecycleEvent
	From    ProjectStatus
	Missing []DocumentType
	Reason  string
}

func (e *GuardError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, t := range e.Missing {
			names[i] = string(t)
		}
		return fmt.Sprintf("event %s refused in status %s: missing documents: %s",
			e.Event, e.From, strings.Join(names, ", "))
	}
	if e.Reason != "" {
		return fmt.Sprintf("event %s refused in status %s: %s", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("event %s not allowed in status %s", e.Event, e.From)
}

func AsGuardError(err error) (*GuardError, bool) {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr, true
	}
	return nil, false
}
