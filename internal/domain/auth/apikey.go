// Package auth authenticates admin API keys. Keys are never stored in clear
// text; the repository holds their HMAC-SHA256 digest under a server-side
// pepper.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	ScopeImages  = "images:write"
	ScopeCatalog = "catalog:write"
	ScopeBlog    = "blog:write"
	ScopeAdmin   = "admin"
)

// ErrUnauthorized is returned for unknown, inactive or mismatching keys.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key carries scope, or the admin scope.
func (k *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator verifies raw API keys against the repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate looks the key up by digest and confirms the stored digest
// with a constant-time comparison. Any failure yields ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	computed := HashKey(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, computed)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}

	want, err := hex.DecodeString(computed)
	if err != nil {
		return nil, ErrUnauthorized
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(want, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

type infoKey struct{}

// WithKey stores the authenticated key in ctx.
func WithKey(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// KeyFromContext returns the key stored by WithKey.
func KeyFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(infoKey{}).(*APIKeyInfo)
	return info, ok
}
