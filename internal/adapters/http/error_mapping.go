package httpadapter

import (
	"net/http"

	"github.com/batipro/chantierdesk/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	if _, ok := domain.AsGuardError(err); ok {
		return http.StatusConflict
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrConfirmationDeclined):
		return http.StatusPreconditionRequired
	case domain.IsKind(err, domain.ErrTooLargeForFallback):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTerminalState):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
