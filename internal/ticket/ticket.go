// Package ticket implements the SPM rights-ticket value type: a single
// capability letter encoded on the wire as the three-byte string "T/<r>".
package ticket

import "fmt"

// Right identifies one of the four capabilities a ticket can grant.
type Right byte

const (
	Take Right = iota
	Grant
	Read
	Write
)

var rightLetters = [...]byte{Take: 't', Grant: 'g', Read: 'r', Write: 'w'}

// Ticket is a tagged capability, printed on the wire as "T/<r>".
type Ticket struct {
	right Right
	valid bool
}

// ErrBadTicket is returned by Parse when the input is not exactly "T/<r>"
// for r in {t, g, r, w}.
var ErrBadTicket = fmt.Errorf("bad ticket format")

// New wraps a Right as a Ticket.
func New(r Right) Ticket {
	return Ticket{right: r, valid: true}
}

// Parse decodes the three-character wire form "T/<r>".
func Parse(s string) (Ticket, error) {
	if len(s) != 3 || s[0] != 'T' || s[1] != '/' {
		return Ticket{}, ErrBadTicket
	}
	for r, letter := range rightLetters {
		if letter == s[2] {
			return Ticket{right: Right(r), valid: true}, nil
		}
	}
	return Ticket{}, ErrBadTicket
}

// Right reports the capability this ticket grants.
func (t Ticket) Right() Right { return t.right }

// Valid reports whether this is a well-formed, non-zero-value Ticket.
func (t Ticket) Valid() bool { return t.valid }

// String renders the canonical three-character wire form.
func (t Ticket) String() string {
	if !t.valid {
		return ""
	}
	return string([]byte{'T', '/', rightLetters[t.right]})
}
