// Package keys owns the shared-secret collaborator for the command
// protocol: secret storage, constant-time comparison, and HKDF-SHA256
// derivation of per-channel authentication keys so the raw secret is
// never used directly on the wire.
package keys

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every derived channel key.
const KeySize = 32

var ErrEmptySecret = errors.New("keys: empty shared secret")

// Provider supplies the authentication key for one named channel.
type Provider interface {
	ChannelKey(channel string) ([]byte, error)
}

// StaticSecret derives channel keys from a single shared secret. It is
// the deployment model this stack supports: one secret per
// detector/host pairing.
type StaticSecret struct {
	secret []byte
}

// NewStaticSecret copies secret into a provider.
func NewStaticSecret(secret []byte) (*StaticSecret, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := &StaticSecret{secret: make([]byte, len(secret))}
	copy(s.secret, secret)
	return s, nil
}

// ChannelKey derives a KeySize-byte key for the named channel. The
// channel name is the HKDF info parameter, so distinct channels under
// one secret get independent keys.
func (s *StaticSecret) ChannelKey(channel string) ([]byte, error) {
	deriver := hkdf.New(sha256.New, s.secret, nil, []byte(channel))
	key := make([]byte, KeySize)
	if _, err := deriver.Read(key); err != nil {
		return nil, fmt.Errorf("keys: derive channel %q: %w", channel, err)
	}
	return key, nil
}

// Equal reports whether two secrets match, in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
