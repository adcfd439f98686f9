package auth

import (
	"context"
	"net/http"
	"strings"

	"teamcal/internal/platform/apperrors"
	"teamcal/internal/platform/httpapi"
)

// memberIDContextKey is the context key for authenticated member identity.
type memberIDContextKey struct{}

// WithMemberID stores a member identifier in context.
func WithMemberID(ctx context.Context, memberID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, memberIDContextKey{}, memberID)
}

// MemberIDFromContext returns the member identifier stored in context.
func MemberIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	value, _ := ctx.Value(memberIDContextKey{}).(int64)
	return value
}

// Middleware verifies bearer tokens and stores the member identity in the
// request context. Health, signup, login, websocket, and calendar feed routes
// skip the header check and authenticate on their own terms.
func Middleware(manager *Manager) httpapi.Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httpapi.WriteError(w, err)
				return
			}
			memberID, err := manager.Verify(token)
			if err != nil {
				httpapi.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithMemberID(r.Context(), memberID)))
		})
	}
}

func isPublicPath(path string) bool {
	if path == "/healthz" || path == "/ws" {
		return true
	}
	if strings.HasPrefix(path, "/auth/") {
		return true
	}
	return strings.HasSuffix(path, "/calendar.ics")
}

// bearerToken extracts the token portion of an Authorization header.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.E(apperrors.KindUnauthorized, "authorization header is required")
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", apperrors.E(apperrors.KindUnauthorized, "authorization header must use bearer scheme")
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", apperrors.E(apperrors.KindUnauthorized, "bearer token is required")
	}
	return token, nil
}
