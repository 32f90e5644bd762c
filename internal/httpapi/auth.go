package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/voxnote/voxnote/internal/identity"
)

// ctxKey is the private type for request context keys.
type ctxKey int

// sessionKey carries the authenticated identity.Session.
const sessionKey ctxKey = iota

// sessionFrom returns the session stored by requireSession. The second
// return is false on unauthenticated routes.
func sessionFrom(ctx context.Context) (identity.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(identity.Session)
	return sess, ok
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// requireSession resolves the bearer token through the identity provider and
// stores the session in the request context. Requests without a valid token
// get 401.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		sess, err := s.deps.Identity.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			writeError(w, http.StatusBadGateway, "identity provider unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next(w, r.WithContext(ctx))
	}
}
