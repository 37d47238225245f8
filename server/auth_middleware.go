package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/fleetdesk/authcore/permissions"
	"github.com/fleetdesk/authcore/session"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyClaims stores the validated session claims
const ContextKeyClaims ContextKey = "claims"

// RequireSession validates the Bearer session token and injects its
// claims into the request context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, "invalid_token", "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := s.sessions.Validate(token)
			if err != nil {
				writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequirePermission gates a route on the session's permission snapshot.
// Chain it after RequireSession.
func (s *Server) RequirePermission(permission permissions.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || !claims.HasPermission(string(permission)) {
				writeJSONError(w, "forbidden", "insufficient permissions", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

func ClaimsFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(ContextKeyClaims).(*session.Claims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
