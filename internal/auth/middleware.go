package auth

import (
	"encoding/json"
	"net/http"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

// DefaultBypassPaths lists endpoints that skip authentication.
//
//nolint:gochecknoglobals // static list
var DefaultBypassPaths = []string{"/health", "/metrics"}

// Middleware authenticates every request outside bypass and stores the
// identity in the request context.
func Middleware(authenticator *Authenticator, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, path := range bypass {
		skip[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticator.Authenticate(r)
			if err != nil {
				observability.FromContext(r.Context()).Warn("authentication failed",
					observability.String("path", r.URL.Path),
					observability.Error(err))
				writeUnauthorized(w)
				return
			}

			ctx := SetIdentity(r.Context(), identity)
			ctx = observability.WithUserID(ctx, identity.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":      domain.CodeAuth,
		"message":   "authentication required",
		"retryable": false,
	})
}
