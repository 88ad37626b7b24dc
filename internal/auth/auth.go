// Package auth validates bearer access tokens issued by the platform's
// auth service. Tokens are RS256 JWTs; signing keys come from the auth
// service's JWKS endpoint and are cached in memory.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httpretry"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httputil"
)

// Claims carries the identity fields the pipeline cares about.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

type contextKey int

const (
	claimsKey contextKey = iota
	tokenKey
)

// ClaimsFromContext returns the verified claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// TokenFromContext returns the raw bearer token stored by Middleware. The
// pipeline forwards it to the file and identity services on the caller's
// behalf.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// jwk is the subset of RFC 7517 we consume. Only RSA keys are accepted.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// KeySet caches the auth service's public keys. A lookup miss triggers one
// refetch so key rotation is picked up without restarts; refetches are
// throttled so a flood of bad tokens cannot hammer the JWKS endpoint.
type KeySet struct {
	url  string
	http httpretry.HTTPDoer

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time

	minRefreshInterval time.Duration
}

// NewKeySet creates a key cache for the given JWKS URL. If doer is nil a
// retrying client with default settings is used.
func NewKeySet(jwksURL string, doer httpretry.HTTPDoer) *KeySet {
	if doer == nil {
		doer = httpretry.NewRetryClient(nil, 3)
	}
	return &KeySet{
		url:                jwksURL,
		http:               doer,
		keys:               make(map[string]*rsa.PublicKey),
		minRefreshInterval: 30 * time.Second,
	}
}

// Key returns the public key for kid, refetching the JWKS once on a miss.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if k, ok := ks.keys[kid]; ok {
		return k, nil
	}
	if time.Since(ks.lastRefresh) < ks.minRefreshInterval && ks.lastRefresh != (time.Time{}) {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	if err := ks.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if k, ok := ks.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (ks *KeySet) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := ks.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jwks endpoint returned %d: %s", resp.StatusCode, body)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return fmt.Errorf("parse jwk %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	ks.keys = keys
	ks.lastRefresh = time.Now()
	return nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// Authorizer verifies bearer tokens against the cached key set.
type Authorizer struct {
	keys *KeySet
}

// NewAuthorizer creates an authorizer over the given key set.
func NewAuthorizer(keys *KeySet) *Authorizer {
	return &Authorizer{keys: keys}
}

// Verify parses and validates a raw token string.
func (a *Authorizer) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return a.keys.Key(ctx, kid)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// claims plus the raw token on the request context.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httputil.Unauthorized(w, "missing bearer token")
			return
		}
		claims, err := a.Verify(r.Context(), raw)
		if err != nil {
			httputil.Unauthorized(w, "invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, tokenKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
