package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksJSON(t *testing.T, kids map[string]*rsa.PrivateKey) []byte {
	t.Helper()
	set := jwkSet{}
	for kid, key := range kids {
		set.Keys = append(set.Keys, jwk{
			Kty: "RSA",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	data, err := json.Marshal(set)
	require.NoError(t, err)
	return data
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims(userID string) Claims {
	return Claims{
		UserID:   userID,
		Username: "ann",
		Email:    "ann@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifyAcceptsSignedToken(t *testing.T) {
	key := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, map[string]*rsa.PrivateKey{"k1": key}))
	}))
	defer srv.Close()

	a := NewAuthorizer(NewKeySet(srv.URL, http.DefaultClient))
	claims, err := a.Verify(context.Background(), signToken(t, key, "k1", validClaims("u-1")))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ann", claims.Username)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, map[string]*rsa.PrivateKey{"k1": key}))
	}))
	defer srv.Close()

	expired := validClaims("u-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	a := NewAuthorizer(NewKeySet(srv.URL, http.DefaultClient))
	_, err := a.Verify(context.Background(), signToken(t, key, "k1", expired))
	require.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	trusted := newKeyPair(t)
	rogue := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, map[string]*rsa.PrivateKey{"k1": trusted}))
	}))
	defer srv.Close()

	a := NewAuthorizer(NewKeySet(srv.URL, http.DefaultClient))
	_, err := a.Verify(context.Background(), signToken(t, rogue, "k1", validClaims("u-1")))
	require.Error(t, err)
}

func TestKeySetPicksUpRotatedKey(t *testing.T) {
	old := newKeyPair(t)
	next := newKeyPair(t)
	current := map[string]*rsa.PrivateKey{"k1": old}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, current))
	}))
	defer srv.Close()

	ks := NewKeySet(srv.URL, http.DefaultClient)
	ks.minRefreshInterval = 0

	a := NewAuthorizer(ks)
	_, err := a.Verify(context.Background(), signToken(t, old, "k1", validClaims("u-1")))
	require.NoError(t, err)

	// Rotate: the unknown kid forces a refetch.
	current = map[string]*rsa.PrivateKey{"k2": next}
	claims, err := a.Verify(context.Background(), signToken(t, next, "k2", validClaims("u-2")))
	require.NoError(t, err)
	assert.Equal(t, "u-2", claims.UserID)
}

func TestMiddleware(t *testing.T) {
	key := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, map[string]*rsa.PrivateKey{"k1": key}))
	}))
	defer srv.Close()

	a := NewAuthorizer(NewKeySet(srv.URL, http.DefaultClient))

	var gotUser, gotToken string
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotUser = claims.UserID
		gotToken = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token reaches the handler with claims and the raw token.
	raw := signToken(t, key, "k1", validClaims("u-1"))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", gotUser)
	assert.Equal(t, raw, gotToken)
}
