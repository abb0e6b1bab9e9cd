package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/pvolkov/mailmirror/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// SessionCookie carries the JWT for browser clients; API clients send the
// same token as a Bearer header.
const SessionCookie = "mailmirror_session"

// authMiddleware validates the session token and stores its claims in the
// request context
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				raw = cookie.Value
			}
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing session token")
			return
		}

		claims, err := s.tokens.Parse(raw)
		if err != nil {
			s.logger.Warn("rejected session token", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext returns the authenticated claims, or nil outside the
// auth middleware
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// bearerToken extracts the token from an Authorization header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
