// Package wire implements the fixed-size, self-synchronizing,
// encrypted+authenticated frame format every SPM control and data
// message travels in.
package wire

import (
	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/cipher"
	"github.com/henfredemars/spmd/internal/spmerr"
)

const (
	// FrameSize is the fixed total size of every frame on the wire.
	FrameSize = 2048

	// MACSize is the trailing authentication tag width.
	MACSize = cipher.MACSize

	// BodySize is the usable message-body width: FrameSize minus the
	// one class byte, one type byte, and the trailing MAC.
	BodySize = FrameSize - 2 - MACSize
)

// Build assembles a complete FrameSize-byte frame. For class == Private,
// stream and macKey must both be non-nil; the type+body region is
// encrypted in place and a fresh MAC is computed over the ciphertext.
// For class == Public the MAC region is left zero-filled.
func Build(class Class, t Type, body []byte, stream *cipher.Stream, macKey []byte) ([]byte, error) {
	if !Allowed(class, t) {
		return nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: class %s not allowed for type %s", class, t)
	}
	if len(body) > BodySize {
		return nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: body too large for %s (%d > %d)", t, len(body), BodySize)
	}

	frame := make([]byte, FrameSize)
	frame[0] = byte(class)
	frame[1] = byte(t)
	copy(frame[2:2+len(body)], body)

	if class == Private {
		if stream == nil || macKey == nil {
			return nil, errors.New("wire: private frame requires a stream and mac key")
		}
		region := frame[1 : FrameSize-MACSize]
		stream.XOR(region, region)
		tag := cipher.NewMAC(macKey)(region)
		copy(frame[FrameSize-MACSize:], tag[:])
	}
	return frame, nil
}

// Parse validates and decodes a complete FrameSize-byte frame. For
// PRIVATE frames the MAC is verified over the ciphertext region before
// any decryption is attempted; stream and macKey must both be non-nil.
// The returned body slice aliases frame's backing array.
func Parse(frame []byte, stream *cipher.Stream, macKey []byte) (Class, Type, []byte, error) {
	if len(frame) != FrameSize {
		return 0, 0, nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: frame is %d bytes, want %d", len(frame), FrameSize)
	}

	class := Class(frame[0])
	if class != Public && class != Private {
		return 0, 0, nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: unknown class byte %d", frame[0])
	}

	region := frame[1 : FrameSize-MACSize]
	if class == Private {
		if stream == nil || macKey == nil {
			return 0, 0, nil, errors.Wrap(spmerr.ErrBadMessage, "wire: private frame before session key established")
		}
		tag := frame[FrameSize-MACSize:]
		if !cipher.VerifyMAC(macKey, region, tag) {
			return 0, 0, nil, errors.Wrap(spmerr.ErrBadMessage, "wire: mac verification failed")
		}
		stream.XOR(region, region)
	}

	t := Type(region[0])
	if !Allowed(class, t) {
		return 0, 0, nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: class %s not allowed for type %s", class, t)
	}
	return class, t, region[1:], nil
}
