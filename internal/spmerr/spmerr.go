// Package spmerr defines the protocol-level error kinds from the error
// handling design: a closed set of conditions each wired to one wire
// reply and one connection-disposition (close or keep-alive).
package spmerr

import "github.com/pkg/errors"

// Sentinel kinds matched with errors.Is / errors.Cause after unwrapping.
var (
	// ErrBadMessage: malformed, unauthenticated, or MAC-failing frame;
	// disallowed (class, type) pairing; unknown type. Always fatal to
	// the connection.
	ErrBadMessage = errors.New("BadMessageError")

	// ErrVersionMismatch: HELLO_CLIENT carried a version the server
	// does not speak. Fatal to the connection.
	ErrVersionMismatch = errors.New("Version mismatch.")

	// ErrAmbiguousSequence: a message is structurally valid but illegal
	// in the session's current state. Fatal to the connection.
	ErrAmbiguousSequence = errors.New("Ambiguous message sequence")
)

// BadTicketError wraps a malformed ticket string. Non-fatal: the
// connection survives, only the one request fails.
type BadTicketError struct{ Detail string }

func (e *BadTicketError) Error() string { return "BadTicketError: " + e.Detail }

// StoreError wraps a policy-store constraint violation or I/O failure.
// Non-fatal.
type StoreError struct{ Detail string }

func (e *StoreError) Error() string { return "DatabaseError: " + e.Detail }

// IoError wraps an object-store filesystem failure. Non-fatal, but any
// transfer in progress must be aborted.
type IoError struct{ Detail string }

func (e *IoError) Error() string { return "IOError: " + e.Detail }

// ServerMessage renders the exact string the error handling design
// requires on the wire for ERROR_SERVER, given an error produced by
// this package or wrapping one of its sentinels.
func ServerMessage(err error) string {
	switch e := errors.Cause(err).(type) {
	case *BadTicketError:
		return "BadTicketError"
	case *StoreError:
		return e.Error()
	case *IoError:
		return "IOError"
	}
	switch errors.Cause(err) {
	case ErrBadMessage:
		return "BadMessageError"
	case ErrVersionMismatch:
		return "Version mismatch."
	case ErrAmbiguousSequence:
		return "Ambiguous message sequence"
	}
	return err.Error()
}
