package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxnote/voxnote/internal/identity"
)

// credentialsRequest is the JSON body of the signup and signin endpoints.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentialsRequest) validate() error {
	if !strings.Contains(c.Email, "@") {
		return errors.New("a valid email is required")
	}
	if len(c.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// handleSignUp creates an account with the identity provider.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.deps.Identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		slog.Error("signup failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleSignIn exchanges credentials for a session.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.deps.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		slog.Error("signin failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSignOut revokes the caller's token.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Identity.SignOut(r.Context(), bearerToken(r)); err != nil {
		slog.Error("signout failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuota returns the caller's current monthly quota snapshot.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	q, err := s.deps.Ledger.Get(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("quota lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "quota unavailable")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleBillingHistory lists the caller's billing events, newest first.
func (s *Server) handleBillingHistory(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())

	if s.deps.Billing == nil {
		writeError(w, http.StatusNotImplemented, "billing is not configured")
		return
	}

	entries, err := s.deps.Billing.ListByOwner(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("billing history lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "billing history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
