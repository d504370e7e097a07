package httpadapter

import (
	"net/http"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrPendingConflict),
		domain.IsKind(err, domain.ErrPendingNotFound),
		domain.IsKind(err, domain.ErrDraftState),
		domain.IsKind(err, domain.ErrConversationClosed):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnknownTool):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
		logError(r, "http_handler_failed", err)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: domain.ErrorCode(err)})
}
