// Package cipher implements the two symmetric primitives the wire frame
// format is built on: a keystream cipher for PRIVATE-frame bodies and a
// keyed MAC over the resulting ciphertext. Both take a 256-byte session
// key derived by package auth from the subject's password and a login
// salt.
package cipher

import (
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"

	"github.com/pkg/errors"
)

// KeySize is the fixed length of a session key consumed by both New and
// NewMAC, matching the reference RC4-DROP-2048 construction.
const KeySize = 256

// dropBytes is the number of initial keystream bytes discarded before
// use, per the RC4-DROP-2048 reference algorithm.
const dropBytes = 2048

// MACSize is the fixed length of a keyed MAC tag (one SHA-1 digest).
const MACSize = 20

// Stream is a deterministic, stateful keystream generator. The same key
// constructed independently on both ends of a connection produces an
// identical byte sequence given identical cumulative consumption, which
// is what keeps sender and receiver in lockstep across a session.
type Stream struct {
	c *rc4.Cipher
}

// New builds a Stream from a 256-byte key, discarding the first 2048
// keystream bytes (RC4-DROP-2048) before returning.
func New(key []byte) (*Stream, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("cipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "cipher: new stream")
	}
	drop := make([]byte, dropBytes)
	c.XORKeyStream(drop, drop)
	return &Stream{c: c}, nil
}

// XOR advances the stream by len(src) bytes and writes the XOR of src
// with the keystream into dst. dst and src may overlap exactly (in-place
// encrypt/decrypt), matching crypto/cipher.Stream's own contract.
func (s *Stream) XOR(dst, src []byte) {
	s.c.XORKeyStream(dst, src)
}

// NewMAC returns a pure function computing a 20-byte keyed MAC tag over
// its argument. Each call constructs a fresh hash state, so the returned
// function carries no hidden state across invocations.
func NewMAC(key []byte) func([]byte) [MACSize]byte {
	keyCopy := append([]byte(nil), key...)
	return func(data []byte) [MACSize]byte {
		mac := hmac.New(sha1.New, keyCopy)
		mac.Write(data)
		var tag [MACSize]byte
		copy(tag[:], mac.Sum(nil))
		return tag
	}
}

// VerifyMAC reports whether tag is the correct MAC of data under key,
// using a constant-time comparison.
func VerifyMAC(key, data, tag []byte) bool {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), tag)
}
