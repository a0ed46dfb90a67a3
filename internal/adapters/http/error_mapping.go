package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	// Index is the position of the failed item in an upload batch.
	Index *int `json:"index,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDossierNotFound), domain.IsKind(err, domain.ErrPartyNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUploadFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrPersistence), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		resp.Error = validation.Message
		resp.Field = validation.Field
	}
	var upload *domain.UploadError
	if errors.As(err, &upload) {
		index := upload.Index
		resp.Index = &index
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}

	writeJSON(w, status, resp)
}
