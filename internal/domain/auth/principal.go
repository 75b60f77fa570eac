// Package auth describes the authenticated caller of the storefront API.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// CapabilityPlusPlan marks a caller with an active Plus membership.
const CapabilityPlusPlan = "plan:plus"

// ErrSessionNotFound is returned when a token does not match an active session.
var ErrSessionNotFound = errors.New("session not found")

// Principal is the identity attached to an authenticated request.
type Principal struct {
	UserID       string
	Capabilities []string
}

// HasCapability reports whether the principal was granted the named capability.
func (p Principal) HasCapability(name string) bool {
	return slices.Contains(p.Capabilities, name)
}

// Authenticated reports whether the principal identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Repository resolves session token hashes to principals.
type Repository interface {
	// FindSession returns ErrSessionNotFound when no active, unexpired
	// session matches tokenHash.
	FindSession(ctx context.Context, tokenHash string) (*Principal, error)
}

// HashToken returns the hex encoded HMAC-SHA256 of token keyed by pepper.
// Session rows store this hash instead of the raw bearer token.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
