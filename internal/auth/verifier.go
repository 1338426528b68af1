package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer and Audience are fixed claim values: tokens are minted by the
	// client keypair holder for this server only.
	Issuer   = "urn:podrag:client"
	Audience = "urn:podrag:server"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Verifier validates RS256-signed bearer credentials. It holds only the
// public key; signing stays with the issuing party. Every request is
// verified independently, nothing is cached between requests.
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Verifier{key: key}, nil
}

// Verify accepts a credential only when the RS256 signature checks out
// against the public key, issuer and audience match the expected constants,
// and the current time falls within [issued-at, expiration).
func (v *Verifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// FromRequest extracts and verifies the bearer credential on r.
func (v *Verifier) FromRequest(r *http.Request) (*jwt.RegisteredClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrMissingToken
	}
	return v.Verify(token)
}

// Middleware rejects unauthenticated requests before any business logic
// runs. A nil verifier disables the gate entirely: that is the documented
// no-key fallback and the caller is expected to have warned loudly at
// startup.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := v.FromRequest(r); err != nil {
				slog.WarnContext(r.Context(), "request rejected by auth gate", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
