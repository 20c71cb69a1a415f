package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/auth"
)

const testSecret = "test-admin-secret"

func signToken(t *testing.T, mutate func(b *jwt.Builder)) string {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Subject("ops@example.com").
		Issuer("stitchline").
		Audience([]string{"quote-api"}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("role", "admin")
	if mutate != nil {
		mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func newAdmin() *auth.Admin {
	return auth.NewAdmin(testSecret, "stitchline", "quote-api")
}

func TestParseTokenAcceptsValidAdmin(t *testing.T) {
	subject, err := newAdmin().ParseToken(signToken(t, nil))
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", subject)
}

func TestParseTokenRejectsBadSignature(t *testing.T) {
	other := auth.NewAdmin("different-secret", "stitchline", "quote-api")
	_, err := other.ParseToken(signToken(t, nil))
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token := signToken(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-2 * time.Hour))
	})
	_, err := newAdmin().ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	token := signToken(t, func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})
	_, err := newAdmin().ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsMissingRole(t *testing.T) {
	token := signToken(t, func(b *jwt.Builder) {
		b.Claim("role", "viewer")
	})
	_, err := newAdmin().ParseToken(token)
	require.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	admin := newAdmin()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := admin.RequireAdmin(next)

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin role is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, func(b *jwt.Builder) {
			b.Claim("role", "viewer")
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
