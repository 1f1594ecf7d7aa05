// Package session implements the per-connection protocol state machine:
// greeting, authentication, authenticated dispatch, and the push/pull
// transfer sub-states. Each Conn runs its own recvLoop and sendLoop
// goroutine pair, modeled on superfly-smux's Session: a single-writer
// goroutine fed by a channel serialises outgoing frames, and a token
// bucket bounds how much unacknowledged output a slow client can force
// the server to buffer.
package session

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"math/big"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/cipher"
	"github.com/henfredemars/spmd/internal/config"
	"github.com/henfredemars/spmd/internal/objectstore"
	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/store"
	"github.com/henfredemars/spmd/internal/wire"
)

// State is the connection's coarse protocol phase.
type State int

const (
	StateGreeting State = iota
	StateUnauth
	StateAuth
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "GREETING"
	case StateUnauth:
		return "UNAUTH"
	case StateAuth:
		return "AUTH"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Mode is the transfer sub-state active while State == StateAuth.
type Mode int

const (
	ModeIdle Mode = iota
	ModePushing
	ModePulling
)

type writeRequest struct {
	frame  []byte
	result chan error
}

// Conn is one authenticated-or-authenticating client connection. It owns
// no state shared with any other Conn except the Policy and Store
// handles, both supplied by the caller (server.Acceptor).
type Conn struct {
	raw    net.Conn
	cfg    config.Config
	policy store.Policy
	files  *objectstore.Store
	log    *slog.Logger

	state   State
	mode    Mode
	subject string
	super   bool
	cwd     string
	fd      *os.File

	sendStream *cipher.Stream
	recvStream *cipher.Stream
	macKey     []byte

	die     chan struct{}
	dieOnce sync.Once
	writes  chan writeRequest

	bucketMu   sync.Mutex
	bucketCond *sync.Cond
	bucket     int
}

// New constructs a Conn over an already-accepted net.Conn and starts its
// recv/send goroutines. The caller retains ownership of policy and files
// and must keep them alive for as long as any Conn referencing them is
// running.
func New(raw net.Conn, cfg config.Config, policy store.Policy, files *objectstore.Store, log *slog.Logger) *Conn {
	c := &Conn{
		raw:    raw,
		cfg:    cfg,
		policy: policy,
		files:  files,
		log:    log,
		state:  StateGreeting,
		mode:   ModeIdle,
		cwd:    "/",
		die:    make(chan struct{}),
		writes: make(chan writeRequest),
		bucket: cfg.Session.WriteHighWater,
	}
	c.bucketCond = sync.NewCond(&c.bucketMu)
	go c.sendLoop()
	go c.recvLoop()
	return c
}

// Serve blocks until the connection terminates.
func (c *Conn) Serve() {
	<-c.die
}

// Shutdown cancels the connection when ctx is done, unblocking any
// pending read or write with a closed-socket error.
func (c *Conn) Shutdown(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.die:
		}
	}()
}

// Close terminates the connection exactly once.
func (c *Conn) Close() error {
	var err error
	c.dieOnce.Do(func() {
		close(c.die)
		c.bucketCond.Broadcast()
		if c.fd != nil {
			c.fd.Close()
			c.fd = nil
		}
		err = c.raw.Close()
	})
	return err
}

func (c *Conn) isPrivate() bool { return c.sendStream != nil }

// Send builds and queues one frame for m, choosing PUBLIC or PRIVATE
// class based on whether a session key is currently installed.
func (c *Conn) Send(m wire.Message) error {
	class := wire.Public
	var stream *cipher.Stream
	var macKey []byte
	if c.isPrivate() {
		class = wire.Private
		stream = c.sendStream
		macKey = c.macKey
	}
	frame, err := wire.Build(class, m.Type(), m.Marshal(), stream, macKey)
	if err != nil {
		return errors.Wrap(err, "session: build frame")
	}
	return c.writeFrame(frame)
}

func (c *Conn) writeFrame(frame []byte) error {
	c.bucketMu.Lock()
	for c.bucket < len(frame) {
		select {
		case <-c.die:
			c.bucketMu.Unlock()
			return errors.New("session: connection closed")
		default:
		}
		c.bucketCond.Wait()
	}
	c.bucket -= len(frame)
	c.bucketMu.Unlock()

	req := writeRequest{frame: frame, result: make(chan error, 1)}
	select {
	case <-c.die:
		return errors.New("session: connection closed")
	case c.writes <- req:
	}
	return <-req.result
}

func (c *Conn) sendLoop() {
	for {
		select {
		case <-c.die:
			return
		case req, ok := <-c.writes:
			if !ok {
				return
			}
			_, err := c.raw.Write(req.frame)
			c.bucketMu.Lock()
			c.bucket += len(req.frame)
			c.bucketCond.Signal()
			c.bucketMu.Unlock()
			req.result <- err
		}
	}
}

func (c *Conn) recvLoop() {
	defer c.Close()
	buf := make([]byte, wire.FrameSize)
	for {
		if _, err := io.ReadFull(c.raw, buf); err != nil {
			return
		}

		class, typ, body, err := wire.Parse(buf, c.recvStream, c.macKey)
		if err != nil {
			c.log.Warn("bad frame", "err", err)
			c.sendTerminalError(spmerr.ErrBadMessage)
			return
		}

		msg, err := wire.Decode(typ, body)
		if err != nil {
			if c.reportNonFatal(err) {
				continue
			}
			c.sendTerminalError(err)
			return
		}

		if err := c.handle(class, msg); err != nil {
			if c.reportNonFatal(err) {
				continue
			}
			c.sendTerminalError(err)
			return
		}
		if c.state == StateClosing {
			c.Send(wire.Die{})
			return
		}
	}
}

// reportNonFatal sends an ERROR_SERVER for err and returns true if the
// connection should stay open, per the error-kind table.
func (c *Conn) reportNonFatal(err error) bool {
	switch errors.Cause(err).(type) {
	case *spmerr.IoError:
		// An I/O failure abandons any push in progress.
		if c.fd != nil {
			c.fd.Close()
			c.fd = nil
		}
		c.mode = ModeIdle
		c.Send(wire.ErrorServer{Msg: spmerr.ServerMessage(err)})
		return true
	case *spmerr.BadTicketError, *spmerr.StoreError:
		c.Send(wire.ErrorServer{Msg: spmerr.ServerMessage(err)})
		return true
	}
	return false
}

// sendTerminalError sends the ERROR_SERVER for a fatal error kind; the
// caller closes the connection immediately after.
func (c *Conn) sendTerminalError(err error) {
	c.Send(wire.ErrorServer{Msg: spmerr.ServerMessage(err)})
}

func (c *Conn) sendOkay() error { return c.Send(wire.Okay{}) }

// installSession derives and installs the session's two independent
// keystreams and shared MAC key. Using two independently constructed
// streams (rather than one shared direction-agnostic stream, as the
// reference implementation does) means the send and receive goroutines
// never need to coordinate stream consumption order with each other —
// a stronger variant the protocol explicitly allows.
func (c *Conn) installSession(key []byte) error {
	send, err := cipher.New(key)
	if err != nil {
		return err
	}
	recv, err := cipher.New(key)
	if err != nil {
		return err
	}
	c.sendStream = send
	c.recvStream = recv
	c.macKey = append([]byte(nil), key...)
	return nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, cipher.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// loginDelay blocks for the configured base delay plus a uniform random
// spread, applied unconditionally (whether or not the subject exists)
// to blunt timing side channels on login.
func (c *Conn) loginDelay() {
	base := c.cfg.Auth.BaseLoginDelay
	spread := c.cfg.Auth.LoginDelaySpread
	if spread > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)))
		if err == nil {
			base += time.Duration(n.Int64())
		}
	}
	time.Sleep(base)
}

func normalizePath(cwd, p string) string {
	if p == "" {
		return cwd
	}
	return objectstore.Normalize(cwd, p)
}
