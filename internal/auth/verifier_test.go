package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"podrag/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keypair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, pemBytes
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    auth.Issuer,
		Audience:  jwt.ClaimStrings{auth.Audience},
		Subject:   "patrick",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestVerify_ValidToken(t *testing.T) {
	key, pub := keypair(t)
	v, err := auth.NewVerifier(pub)
	require.NoError(t, err)

	claims, err := v.Verify(signToken(t, key, validClaims()))

	require.NoError(t, err)
	assert.Equal(t, "patrick", claims.Subject)
}

func TestVerify_Rejections(t *testing.T) {
	key, pub := keypair(t)
	v, err := auth.NewVerifier(pub)
	require.NoError(t, err)

	now := time.Now()
	tests := []struct {
		name  string
		token func() string
	}{
		{
			name: "Wrong Issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "urn:somebody:else"
				return signToken(t, key, c)
			},
		},
		{
			name: "Wrong Audience",
			token: func() string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"urn:other:server"}
				return signToken(t, key, c)
			},
		},
		{
			name: "Expired",
			token: func() string {
				c := validClaims()
				c.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))
				c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
				return signToken(t, key, c)
			},
		},
		{
			name: "No Expiration",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = nil
				return signToken(t, key, c)
			},
		},
		{
			name: "Wrong Key",
			token: func() string {
				other, err := rsa.GenerateKey(rand.Reader, 2048)
				require.NoError(t, err)
				return signToken(t, other, validClaims())
			},
		},
		{
			name: "Wrong Algorithm",
			token: func() string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).
					SignedString([]byte("shared-secret"))
				require.NoError(t, err)
				return token
			},
		},
		{
			name:  "Garbage",
			token: func() string { return "not.a.token" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token())
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestNewVerifier_BadPEM(t *testing.T) {
	_, err := auth.NewVerifier([]byte("not a pem"))
	assert.Error(t, err)
}

func TestFromRequest(t *testing.T) {
	key, pub := keypair(t)
	v, err := auth.NewVerifier(pub)
	require.NoError(t, err)

	t.Run("No Header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		_, err := v.FromRequest(r)
		assert.ErrorIs(t, err, auth.ErrMissingToken)
	})

	t.Run("Not Bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		_, err := v.FromRequest(r)
		assert.ErrorIs(t, err, auth.ErrMissingToken)
	})

	t.Run("Valid Bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, key, validClaims()))
		claims, err := v.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "patrick", claims.Subject)
	})
}

func TestMiddleware(t *testing.T) {
	key, pub := keypair(t)
	v, err := auth.NewVerifier(pub)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Rejects Without Token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		auth.Middleware(v)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Passes With Token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, key, validClaims()))
		rec := httptest.NewRecorder()
		auth.Middleware(v)(next).ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Nil Verifier Is Open", func(t *testing.T) {
		rec := httptest.NewRecorder()
		auth.Middleware(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
