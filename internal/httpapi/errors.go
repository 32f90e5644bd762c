package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/transcribe"
	"github.com/voxnote/voxnote/internal/upload"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`

	// Quota carries the snapshot when the error is a quota rejection.
	Quota *quota.Quota `json:"quota,omitempty"`
}

// writeJSON encodes v with the given status. Encoding failures are logged,
// not surfaced; the status line has already been written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "err", err)
	}
}

// writeError writes a plain error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

// writeSubmissionError maps the orchestrator's failure taxonomy onto HTTP
// status codes:
//
//	413 file too large
//	422 unreadable media
//	429 quota exceeded (with the exact snapshot)
//	409 another submission in flight
//	502 provider failures
//	500 persistence and everything else
func writeSubmissionError(w http.ResponseWriter, err error) {
	var exceeded *quota.ExceededError
	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrUnreadableMedia):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &exceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: exceeded.Error(),
			Quota: &exceeded.Quota,
		})
	case errors.Is(err, transcribe.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transcribe.ErrTranscriptionProvider),
		errors.Is(err, transcribe.ErrFormattingProvider):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("submission failed", "err", err)
		writeError(w, http.StatusInternalServerError, "submission failed")
	}
}

// writeStoreError maps record store errors.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, store.ErrDuplicateTag):
		writeError(w, http.StatusConflict, "tag name already exists")
	default:
		slog.Error("store operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}
