package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/studygate/internal/config"
)

// CORS handles Cross-Origin Resource Sharing. Idempotency and precondition
// headers are always allowed and Retry-After is always exposed.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   append(append([]string(nil), cfg.AllowedHeaders...), "Idempotency-Key", "If-Unmodified-Since"),
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id", "X-Trace-Id"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
