// Package server runs the daemon's accept loop: one session.Conn per
// accepted TCP connection, all sharing a single policy store and object
// store for the process lifetime.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/config"
	"github.com/henfredemars/spmd/internal/objectstore"
	"github.com/henfredemars/spmd/internal/session"
	"github.com/henfredemars/spmd/internal/store"
)

// Acceptor owns the listener and the shared policy/object store handles
// every accepted connection's session.Conn is constructed against.
type Acceptor struct {
	ln     net.Listener
	cfg    config.Config
	policy store.Policy
	files  *objectstore.Store
	log    *slog.Logger

	wg sync.WaitGroup
}

// New binds addr and prepares an Acceptor. The caller must call Serve to
// actually accept connections.
func New(addr string, cfg config.Config, policy store.Policy, files *objectstore.Store, log *slog.Logger) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "server: listen")
	}
	return &Acceptor{ln: ln, cfg: cfg, policy: policy, files: files, log: log}, nil
}

// Addr reports the listener's bound address, useful when addr:0 was
// passed to New to let the OS pick a port.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, spawning one session.Conn per connection. It blocks until
// every spawned connection has terminated.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.ln.Close()
	}()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.wg.Wait()
				return nil
			default:
			}
			a.log.Warn("accept failed", "err", err)
			a.wg.Wait()
			return err
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serveOne(ctx, conn)
		}()
	}
}

func (a *Acceptor) serveOne(ctx context.Context, conn net.Conn) {
	log := a.log.With("remote", conn.RemoteAddr().String())
	log.Info("connection accepted")
	defer log.Info("connection closed")

	c := session.New(conn, a.cfg, a.policy, a.files, log)
	c.Shutdown(ctx)
	c.Serve()
}

// Close stops accepting new connections without waiting for in-flight
// ones to finish.
func (a *Acceptor) Close() error { return a.ln.Close() }
