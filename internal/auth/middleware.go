package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Dev mode headers, honored only when no JWT secret is configured.
const (
	HeaderWorkspaceID = "X-Workspace-ID"
	HeaderUserID      = "X-User-ID"
)

// Authenticate resolves the request identity. With an enabled service a
// bearer token is required; otherwise the dev headers are read.
func Authenticate(service *JWTService, r *http.Request) (Identity, error) {
	if service.Enabled() {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return Identity{}, ErrMissingIdentity
		}
		return service.Validate(strings.TrimSpace(header[len("bearer "):]))
	}

	id := Identity{
		WorkspaceID: strings.TrimSpace(r.Header.Get(HeaderWorkspaceID)),
		UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
	}
	if id.WorkspaceID == "" || id.UserID == "" {
		return Identity{}, ErrMissingIdentity
	}
	return id, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity on the request context.
func Middleware(service *JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := Authenticate(service, r)
			if err != nil {
				if !errors.Is(err, ErrMissingIdentity) {
					logger.Warn("authentication failed", "path", r.URL.Path, "error", err)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
