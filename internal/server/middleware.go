package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/chat"
)

type identityKey struct{}

// bearerToken extracts a bearer token from the Authorization header, or from
// the token query parameter that browsers use for WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
			return
		}

		ident, err := a.auth.VerifyToken(r.Context(), token)
		if err != nil {
			a.logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, ident)))
	}
}

// identityFrom returns the identity stored by requireAuth.
func identityFrom(ctx context.Context) (chat.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(chat.Identity)
	return ident, ok
}
