package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/observability"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub":   "user-42",
		"email": "student@example.com",
		"iss":   "studygate",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestAuthenticator_Verify(t *testing.T) {
	authenticator := auth.NewAuthenticator(auth.Config{Secret: testSecret, Issuer: "studygate"})

	t.Run("should accept a valid token", func(t *testing.T) {
		identity, err := authenticator.Verify(signToken(t, testSecret, validClaims()))
		require.NoError(t, err)
		require.Equal(t, "user-42", identity.Subject)
		require.Equal(t, "student@example.com", identity.Email)
	})

	tests := []struct {
		name   string
		secret string
		mutate func(jwtlib.MapClaims)
	}{
		{name: "wrong secret", secret: "other", mutate: func(jwtlib.MapClaims) {}},
		{name: "expired", secret: testSecret, mutate: func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "missing expiry", secret: testSecret, mutate: func(c jwtlib.MapClaims) { delete(c, "exp") }},
		{name: "wrong issuer", secret: testSecret, mutate: func(c jwtlib.MapClaims) { c["iss"] = "elsewhere" }},
		{name: "missing subject", secret: testSecret, mutate: func(c jwtlib.MapClaims) { delete(c, "sub") }},
	}

	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)

			_, err := authenticator.Verify(signToken(t, tt.secret, claims))
			require.Error(t, err)
		})
	}

	t.Run("should reject everything without a secret", func(t *testing.T) {
		_, err := auth.NewAuthenticator(auth.Config{}).Verify(signToken(t, testSecret, validClaims()))
		require.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	authenticator := auth.NewAuthenticator(auth.Config{Secret: testSecret})

	var seenUser, seenLogUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = auth.UserID(r.Context())
		seenLogUser = observability.GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := auth.Middleware(authenticator, auth.DefaultBypassPaths)(next)

	t.Run("should pass identity to the next handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "user-42", seenUser)
		require.Equal(t, "user-42", seenLogUser)
	})

	t.Run("should reject a missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/stream", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), `"AUTH"`)
	})

	t.Run("should bypass health checks", func(t *testing.T) {
		seenUser = "unchanged"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, seenUser)
	})
}
