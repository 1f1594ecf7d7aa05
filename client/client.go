// Package client is the programmatic SPM client library: Dial, Login,
// Push, Pull, the listing and rights/ticket calls, and Close. It speaks
// the same fixed-frame wire protocol the daemon implements, keeping its
// own pair of independent keystreams once authenticated.
package client

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/henfredemars/spmd/internal/auth"
	"github.com/henfredemars/spmd/internal/cipher"
	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/ticket"
	"github.com/henfredemars/spmd/internal/transfer"
	"github.com/henfredemars/spmd/internal/wire"
)

// ProtocolVersion is the version this client sends in HELLO_CLIENT.
const ProtocolVersion = 1

// Client is one authenticated connection to an spmd daemon. Calls are
// not safe for concurrent use: the protocol is a single logical stream
// of request/response pairs per connection.
type Client struct {
	conn   net.Conn
	mu     sync.Mutex
	rounds int

	send *cipher.Stream
	recv *cipher.Stream
	key  []byte
}

// SetRounds overrides the PBKDF2 round count used by the next Login
// call. It must match the daemon's configured Auth.Rounds exactly, the
// round count not being something the wire protocol carries.
func (c *Client) SetRounds(rounds int) { c.rounds = rounds }

// Dial opens a TCP connection to addr and performs the HELLO exchange.
// The returned Client is unauthenticated; call Login next.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "client: dial")
	}
	c := &Client{conn: conn, rounds: auth.DefaultRounds}
	if err := c.greet(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) greet() error {
	if err := c.writePublic(wire.HelloClient{Version: ProtocolVersion}); err != nil {
		return err
	}
	typ, msg, err := c.readPublic()
	if err != nil {
		return err
	}
	if typ == wire.TypeErrorServer {
		return errors.New(spmerrMessage(msg))
	}
	hs, ok := msg.(wire.HelloServer)
	if !ok {
		return errors.New("client: expected HELLO_SERVER")
	}
	if hs.Version != ProtocolVersion {
		return errors.Errorf("client: server speaks version %d, want %d", hs.Version, ProtocolVersion)
	}
	return nil
}

func spmerrMessage(msg wire.Message) string {
	if es, ok := msg.(wire.ErrorServer); ok {
		return es.Msg
	}
	return "server error"
}

// Login authenticates as subject using password, deriving the session
// key the same way the daemon does: PBKDF2-HMAC-SHA1 over a fresh
// random salt. A wrong password and a nonexistent subject are
// indistinguishable on the wire; both surface as the returned error
// once the next frame's MAC check fails.
func (c *Client) Login(subject, password string) error {
	var salt [wire.SaltWidth]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return errors.Wrap(err, "client: generate salt")
	}
	if err := c.writePublic(wire.AuthSubject{Subject: subject, Salt: salt}); err != nil {
		return err
	}

	key := auth.DeriveKey(password, salt[:], c.rounds)
	send, err := cipher.New(key)
	if err != nil {
		return err
	}
	recv, err := cipher.New(key)
	if err != nil {
		return err
	}
	c.send, c.recv, c.key = send, recv, key

	typ, msg, err := c.readPrivate()
	if err != nil {
		return errors.Wrap(err, "client: login rejected (bad subject or password)")
	}
	if typ != wire.TypeConfirmAuth {
		return errors.New("client: expected CONFIRM_AUTH")
	}
	ca := msg.(wire.ConfirmAuth)
	if ca.Subject != subject {
		return errors.New("client: confirm auth subject mismatch")
	}
	return nil
}

// Close sends a terminal DIE and closes the connection.
func (c *Client) Close() error {
	c.writePrivateOrPublic(wire.Die{})
	return c.conn.Close()
}

// ListSubjects returns every subject name known to the daemon.
func (c *Client) ListSubjects() ([]string, error) {
	if err := c.writePrivateOrPublic(wire.ListSubjectClient{}); err != nil {
		return nil, err
	}
	var names []string
	for {
		typ, msg, err := c.readPrivate()
		if err != nil {
			return nil, err
		}
		if typ == wire.TypeOkay {
			return names, nil
		}
		page, ok := msg.(wire.ListSubjectServer)
		if !ok {
			return nil, errors.New("client: expected LIST_SUBJECT_SERVER")
		}
		for _, s := range page.Subjects {
			if s != "" {
				names = append(names, s)
			}
		}
	}
}

// ListObjects returns the entries in the daemon's current directory.
func (c *Client) ListObjects() ([]string, error) {
	if err := c.writePrivateOrPublic(wire.ListObjectClient{}); err != nil {
		return nil, err
	}
	var names []string
	for {
		typ, msg, err := c.readPrivate()
		if err != nil {
			return nil, err
		}
		if typ == wire.TypeOkay {
			return names, nil
		}
		page, ok := msg.(wire.ListObjectServer)
		if !ok {
			return nil, errors.New("client: expected LIST_OBJECT_SERVER")
		}
		for _, f := range page.Files {
			if f != "" {
				names = append(names, f)
			}
		}
	}
}

// CD changes the daemon's notion of the current directory.
func (c *Client) CD(path string) error {
	if err := c.writePrivateOrPublic(wire.CD{Path: path}); err != nil {
		return err
	}
	return c.expectOkay()
}

// GetCD returns the daemon's current directory.
func (c *Client) GetCD() (string, error) {
	if err := c.writePrivateOrPublic(wire.GetCD{}); err != nil {
		return "", err
	}
	typ, msg, err := c.readPrivate()
	if err != nil {
		return "", err
	}
	if typ != wire.TypeCD {
		return "", errors.New("client: expected CD")
	}
	return msg.(wire.CD).Path, nil
}

// MakeDirectory creates a directory at dir.
func (c *Client) MakeDirectory(dir string) error {
	if err := c.writePrivateOrPublic(wire.MakeDirectory{Dir: dir}); err != nil {
		return err
	}
	return c.expectOkay()
}

// DeletePath removes path, recursively if it is a directory.
func (c *Client) DeletePath(path string) error {
	if err := c.writePrivateOrPublic(wire.DeletePath{Path: path}); err != nil {
		return err
	}
	return c.expectOkay()
}

// MakeSubject creates a new non-super subject.
func (c *Client) MakeSubject(subject, subjectType, password string) error {
	if err := c.writePrivateOrPublic(wire.MakeSubject{Subject: subject, Type2: subjectType, Password: password}); err != nil {
		return err
	}
	return c.expectOkay()
}

// DeleteSubject removes a subject and cascades its links and rights.
func (c *Client) DeleteSubject(subject string) error {
	if err := c.writePrivateOrPublic(wire.DeleteSubject{Subject: subject}); err != nil {
		return err
	}
	return c.expectOkay()
}

// MakeLink creates a transfer channel from s1 to s2.
func (c *Client) MakeLink(s1, s2 string) error {
	if err := c.writePrivateOrPublic(wire.MakeLink{S1: s1, S2: s2}); err != nil {
		return err
	}
	return c.expectOkay()
}

// ClearLinks removes every link mentioning subject.
func (c *Client) ClearLinks(subject string) error {
	if err := c.writePrivateOrPublic(wire.ClearLinks{Subject: subject}); err != nil {
		return err
	}
	return c.expectOkay()
}

// MakeFilter permits t to cross links between type1 and type2 subjects.
func (c *Client) MakeFilter(type1, type2 string, t ticket.Ticket) error {
	if err := c.writePrivateOrPublic(wire.MakeFilter{Type1: type1, Type2: type2, Ticket: t}); err != nil {
		return err
	}
	return c.expectOkay()
}

// DeleteFilter removes a previously installed filter.
func (c *Client) DeleteFilter(type1, type2 string, t ticket.Ticket) error {
	if err := c.writePrivateOrPublic(wire.DeleteFilter{Type1: type1, Type2: type2, Ticket: t}); err != nil {
		return err
	}
	return c.expectOkay()
}

// GiveTicket grants subject a ticket over target.
func (c *Client) GiveTicket(subject string, t ticket.Ticket, target string, isObject bool) error {
	if err := c.writePrivateOrPublic(wire.GiveTicketSubject{Subject: subject, Ticket: t, Target: target, IsObject: isObject}); err != nil {
		return err
	}
	return c.expectOkay()
}

// TakeTicket removes a previously granted ticket from subject.
func (c *Client) TakeTicket(subject string, t ticket.Ticket, target string, isObject bool) error {
	if err := c.writePrivateOrPublic(wire.TakeTicketSubject{Subject: subject, Ticket: t, Target: target, IsObject: isObject}); err != nil {
		return err
	}
	return c.expectOkay()
}

// XferTicket moves a ticket over target from s1 to s2, if a link and a
// matching filter between their subject types exist.
func (c *Client) XferTicket(s1, s2 string, t ticket.Ticket, target string, isObject bool) error {
	if err := c.writePrivateOrPublic(wire.XferTicket{S1: s1, S2: s2, Ticket: t, Target: target, IsObject: isObject}); err != nil {
		return err
	}
	return c.expectOkay()
}

// Push streams f to the daemon under name.
func (c *Client) Push(name string, f io.Reader) error {
	if err := c.writePrivateOrPublic(wire.PushFile{Name: name}); err != nil {
		return err
	}
	if err := c.expectOkay(); err != nil {
		return err
	}
	return transfer.StreamOut(c, f)
}

// Send implements transfer.Sender so Push can reuse the chunking logic.
func (c *Client) Send(m wire.Message) error { return c.writePrivateOrPublic(m) }

// PullToFile fetches name from the daemon into a fresh file at
// localPath. It refuses to start the transfer if localPath already
// exists, opening it with O_EXCL before PULL_FILE is ever sent so the
// check happens before the server commits to streaming anything.
func (c *Client) PullToFile(name, localPath string) error {
	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "client: local destination already exists")
	}
	if err := c.Pull(name, f); err != nil {
		f.Close()
		os.Remove(localPath)
		return err
	}
	return f.Close()
}

// Pull fetches name from the daemon and writes it to w. Callers writing
// to a local file should use PullToFile instead, which performs the
// protocol's mandatory pre-existence check; Pull itself has no local
// path to check and trusts the caller's writer.
func (c *Client) Pull(name string, w io.Writer) error {
	if err := c.writePrivateOrPublic(wire.PullFile{Name: name}); err != nil {
		return err
	}
	if err := c.expectOkay(); err != nil {
		return err
	}
	for {
		typ, msg, err := c.readPrivate()
		if err != nil {
			return err
		}
		if typ == wire.TypeOkay {
			return nil
		}
		frame, ok := msg.(wire.XferFile)
		if !ok {
			return errors.New("client: expected XFER_FILE")
		}
		if err := transfer.AppendChunk(w, frame); err != nil {
			return err
		}
	}
}

func (c *Client) expectOkay() error {
	typ, msg, err := c.readPrivate()
	if err != nil {
		return err
	}
	if typ == wire.TypeErrorServer {
		return errors.New(spmerrMessage(msg))
	}
	if typ != wire.TypeOkay {
		return errors.Errorf("client: expected OKAY, got %s", typ)
	}
	return nil
}

func (c *Client) writePublic(m wire.Message) error {
	return c.write(wire.Public, m, nil, nil)
}

func (c *Client) writePrivateOrPublic(m wire.Message) error {
	if c.send == nil {
		return c.write(wire.Public, m, nil, nil)
	}
	return c.write(wire.Private, m, c.send, c.key)
}

func (c *Client) write(class wire.Class, m wire.Message, stream *cipher.Stream, macKey []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, err := wire.Build(class, m.Type(), m.Marshal(), stream, macKey)
	if err != nil {
		return errors.Wrap(err, "client: build frame")
	}
	_, err = c.conn.Write(frame)
	return errors.Wrap(err, "client: write frame")
}

func (c *Client) readPublic() (wire.Type, wire.Message, error) { return c.read(nil, nil) }
func (c *Client) readPrivate() (wire.Type, wire.Message, error) {
	return c.read(c.recv, c.key)
}

func (c *Client) read(stream *cipher.Stream, macKey []byte) (wire.Type, wire.Message, error) {
	buf := make([]byte, wire.FrameSize)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return 0, nil, errors.Wrap(err, "client: read frame")
	}
	_, typ, body, err := wire.Parse(buf, stream, macKey)
	if err != nil {
		return 0, nil, errors.Wrap(spmerr.ErrBadMessage, "client: parse frame")
	}
	msg, err := wire.Decode(typ, body)
	if err != nil {
		return 0, nil, err
	}
	return typ, msg, nil
}

// PromptPassword reads a password from the terminal without echoing it.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "client: read password")
	}
	return string(pw), nil
}
