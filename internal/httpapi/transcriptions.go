package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/transcribe"
)

// uploadFormOverhead is slack on top of the configured upload cap for the
// non-file multipart fields, so an at-the-limit file still reaches the
// validator (which owns the 413 decision).
const uploadFormOverhead = 1 << 20

// transcriptionResponse is the JSON shape of a Transcription record.
type transcriptionResponse struct {
	ID                string    `json:"id"`
	FileName          string    `json:"file_name"`
	Language          string    `json:"language"`
	Status            string    `json:"status"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Tags              []string  `json:"tags"`
	DurationSeconds   int64     `json:"duration_seconds"`
	TranscriptionText string    `json:"transcription_text,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toTranscriptionResponse(t store.Transcription) transcriptionResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return transcriptionResponse{
		ID:                t.ID,
		FileName:          t.FileName,
		Language:          t.Language,
		Status:            string(t.Status),
		Title:             t.Title,
		Description:       t.Description,
		Tags:              tags,
		DurationSeconds:   t.DurationSeconds,
		TranscriptionText: t.TranscriptionText,
		Summary:           t.Summary,
		CreatedAt:         t.CreatedAt,
	}
}

// handleSubmit accepts a multipart upload ("file" plus optional "language",
// "title", "description", "tags" fields) and runs the full submission
// workflow synchronously, returning the completed record.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	start := time.Now()

	limit := s.opts.MaxUploadBytes
	if limit <= 0 {
		limit = 2 << 30
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+uploadFormOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "file" field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = s.opts.DefaultLanguage
	}

	sub := transcribe.Submission{
		UserID:      sess.UserID,
		FileName:    header.Filename,
		Language:    language,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        splitTags(r.FormValue("tags")),
		Audio:       data,
	}

	s.deps.Metrics.ActiveSubmissions.Add(r.Context(), 1)
	rec, err := s.deps.NewOrchestrator().Submit(r.Context(), sub)
	s.deps.Metrics.ActiveSubmissions.Add(r.Context(), -1)

	if err != nil {
		s.deps.Metrics.RecordSubmission(r.Context(), "failed", time.Since(start).Seconds())
		writeSubmissionError(w, err)
		return
	}
	s.deps.Metrics.RecordSubmission(r.Context(), "done", time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, toTranscriptionResponse(rec))
}

// handleList returns the caller's records, newest first by default.
// Query parameters: since (RFC 3339) and order (asc|desc).
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	var opts store.ListOptions
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, `"since" must be RFC 3339`)
			return
		}
		opts.Since = t
	}
	switch order := r.URL.Query().Get("order"); order {
	case "", "desc":
	case "asc":
		opts.Ascending = true
	default:
		writeError(w, http.StatusBadRequest, `"order" must be "asc" or "desc"`)
		return
	}

	recs, err := s.deps.Records.ListByOwner(r.Context(), sess.UserID, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]transcriptionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toTranscriptionResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGet returns one record. Records of other users read as 404.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	rec, err := s.ownedRecord(r, sess.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTranscriptionResponse(rec))
}

// patchRequest is the JSON body of PATCH /v1/transcriptions/{id}. Absent
// fields are left unchanged.
type patchRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// handlePatch updates a record's descriptive fields. The transcript and
// summary texts are not writable through this endpoint.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	if _, err := s.ownedRecord(r, sess.UserID); err != nil {
		writeStoreError(w, err)
		return
	}

	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	rec, err := s.deps.Records.Update(r.Context(), r.PathValue("id"), store.Patch{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Titles feed search results, so re-index on change.
	if s.deps.Search != nil && req.Title != nil {
		if err := s.deps.Search.Index(r.Context(), rec); err != nil {
			slog.Warn("search re-indexing failed", "transcription_id", rec.ID, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, toTranscriptionResponse(rec))
}

// handleDelete removes a record and its search entries.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	if _, err := s.ownedRecord(r, sess.UserID); err != nil {
		writeStoreError(w, err)
		return
	}

	id := r.PathValue("id")
	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.deps.Search != nil {
		if err := s.deps.Search.Remove(r.Context(), id); err != nil {
			slog.Warn("search entry removal failed", "transcription_id", id, "err", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSummary generates (or regenerates) the record's summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	rec, err := s.deps.NewOrchestrator().GenerateSummary(r.Context(), sess.UserID, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "record not found")
		case errors.Is(err, transcribe.ErrNoTranscript):
			writeError(w, http.StatusConflict, "record has no transcript to summarize")
		case errors.Is(err, transcribe.ErrFormattingProvider):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			slog.Error("summary generation failed", "err", err)
			writeError(w, http.StatusInternalServerError, "summary generation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toTranscriptionResponse(rec))
}

// handleSearch answers GET /v1/transcriptions/search?q=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	if s.deps.Search == nil {
		writeError(w, http.StatusNotImplemented, "search is not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, `missing "q" parameter`)
		return
	}

	results, err := s.deps.Search.Search(r.Context(), sess.UserID, query, s.opts.SearchTopK)
	if err != nil {
		slog.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// ownedRecord fetches the record in the request path and enforces ownership,
// reading foreign records as store.ErrNotFound.
func (s *Server) ownedRecord(r *http.Request, userID string) (store.Transcription, error) {
	rec, err := s.deps.Records.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return store.Transcription{}, err
	}
	if rec.UserID != userID {
		return store.Transcription{}, store.ErrNotFound
	}
	return rec, nil
}

// splitTags parses a comma-separated tag list, dropping empties.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
