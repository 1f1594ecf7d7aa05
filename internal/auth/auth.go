// Package auth derives the per-session symmetric key from a subject's
// stored password and the login salt the client supplies. It is the one
// place in this module that reaches for golang.org/x/crypto/pbkdf2, the
// single most common third-party import across the reference corpus.
package auth

import (
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"

	"github.com/henfredemars/spmd/internal/cipher"
)

// SaltSize is the fixed login-salt width carried in AUTH_SUBJECT frames.
const SaltSize = 32

// DefaultRounds is the PBKDF2 iteration count the reference protocol
// uses when nothing overrides it. It is deliberately low (this is an
// educational construction, not a production KDF) so both endpoints
// can afford to run it per login.
const DefaultRounds = 16

// DeriveKey computes the 256-byte session key the reference protocol
// specifies: PBKDF2-HMAC-SHA1(password, salt, rounds, dkLen=cipher.KeySize).
// Both endpoints of a connection must agree on rounds; it travels out of
// band via configuration, not on the wire.
func DeriveKey(password string, salt []byte, rounds int) []byte {
	return pbkdf2.Key([]byte(password), salt, rounds, cipher.KeySize, sha1.New)
}
