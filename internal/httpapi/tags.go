package httpapi

import (
	"net/http"
	"strings"

	"github.com/voxnote/voxnote/internal/store"
)

// tagRequest is the JSON body for creating or updating a tag.
type tagRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// tagResponse is the JSON shape of a Tag.
type tagResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

func toTagResponse(t store.Tag) tagResponse {
	return tagResponse{
		ID:          t.ID,
		Name:        t.Name,
		Color:       t.Color,
		Description: t.Description,
	}
}

// handleListTags returns the full tag catalogue.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.deps.Tags.ListTags(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, toTagResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateTag creates a tag. Names are unique and case-sensitive.
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "tag name is required")
		return
	}

	tag, err := s.deps.Tags.CreateTag(r.Context(), store.Tag{
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTagResponse(tag))
}

// handleUpdateTag renames or restyles a tag. Renaming does not rewrite the
// tag lists of existing transcriptions; stale name references simply stop
// resolving to a colour.
func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "tag name is required")
		return
	}

	tag, err := s.deps.Tags.UpdateTag(r.Context(), r.PathValue("id"), store.Tag{
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponse(tag))
}

// handleDeleteTag removes a tag from the catalogue.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tags.DeleteTag(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
