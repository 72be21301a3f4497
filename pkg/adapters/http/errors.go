package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/session"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps domain errors to HTTP statuses.
// Rejections caused by the conversation's current state are conflicts;
// malformed submissions are bad requests.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrConversationExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrNoSession),
		errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrUnexpectedInput),
		errors.Is(err, domain.ErrOptionResolved):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if domain.IsValidation(err) {
		resp.Code = observability.RejectionReason(err)
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Gateway error", "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}
