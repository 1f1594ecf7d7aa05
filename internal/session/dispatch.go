package session

import (
	"path"

	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/auth"
	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/store"
	"github.com/henfredemars/spmd/internal/ticket"
	"github.com/henfredemars/spmd/internal/transfer"
	"github.com/henfredemars/spmd/internal/wire"
)

// handle routes one decoded frame through the connection's state
// machine. class has already been range-checked against typ by
// wire.Parse; handle only needs to check it against the session's
// current phase.
func (c *Conn) handle(class wire.Class, msg wire.Message) error {
	switch c.state {
	case StateGreeting:
		return c.handleGreeting(class, msg)
	case StateUnauth:
		return c.handleUnauth(class, msg)
	case StateAuth:
		if class != wire.Private {
			return spmerr.ErrBadMessage
		}
		return c.handleAuth(msg)
	default:
		return errors.Wrap(spmerr.ErrAmbiguousSequence, "session: frame after closing")
	}
}

func (c *Conn) handleGreeting(class wire.Class, msg wire.Message) error {
	hello, ok := msg.(wire.HelloClient)
	if !ok || class != wire.Public {
		return spmerr.ErrBadMessage
	}
	if hello.Version != c.cfg.Session.ProtocolVersion {
		return spmerr.ErrVersionMismatch
	}
	if err := c.Send(wire.HelloServer{Version: c.cfg.Session.ProtocolVersion}); err != nil {
		return err
	}
	c.state = StateUnauth
	return nil
}

func (c *Conn) handleUnauth(class wire.Class, msg wire.Message) error {
	switch m := msg.(type) {
	case wire.Die:
		c.state = StateClosing
		return nil
	case wire.AuthSubject:
		return c.handleAuthSubject(m)
	default:
		return spmerr.ErrBadMessage
	}
}

func (c *Conn) handleAuthSubject(m wire.AuthSubject) error {
	c.loginDelay()

	subject, err := c.policy.GetSubject(m.Subject)
	if err != nil {
		return err
	}

	if subject == nil {
		key, err := randomKey()
		if err != nil {
			return err
		}
		if err := c.installSession(key); err != nil {
			return err
		}
		// The client cannot derive this key, so CONFIRM_AUTH below is
		// encrypted garbage to it: auth failure and success look
		// identical on the wire until the client's next MAC check fails.
		return c.Send(wire.ConfirmAuth{Subject: m.Subject})
	}

	key := auth.DeriveKey(subject.Password, m.Salt[:], c.cfg.Auth.Rounds)
	if err := c.installSession(key); err != nil {
		return err
	}
	c.subject = subject.Name
	c.super = subject.Super
	c.state = StateAuth
	return c.Send(wire.ConfirmAuth{Subject: m.Subject})
}

func (c *Conn) handleAuth(msg wire.Message) error {
	if c.mode == ModePulling {
		switch msg.(type) {
		case wire.XferFile, wire.Okay:
		default:
			return errors.Wrapf(spmerr.ErrAmbiguousSequence, "session: %s not valid mid-transfer", msg.Type())
		}
	}
	switch m := msg.(type) {
	case wire.Die:
		c.state = StateClosing
		return nil
	case wire.ListSubjectClient:
		return c.doListSubject()
	case wire.ListObjectClient:
		return c.doListObject()
	case wire.CD:
		return c.doCD(m)
	case wire.GetCD:
		return c.Send(wire.CD{Path: c.cwd})
	case wire.PushFile:
		return c.doPushFile(m)
	case wire.PullFile:
		return c.doPullFile(m)
	case wire.XferFile:
		return c.appendPush(m)
	case wire.Okay:
		return c.finishPush()
	case wire.MakeDirectory:
		return c.doMakeDirectory(m)
	case wire.MakeSubject:
		return c.doMakeSubject(m)
	case wire.DeleteSubject:
		if err := c.requireSuper(); err != nil {
			return err
		}
		if err := c.policy.DeleteSubject(m.Subject); err != nil {
			return err
		}
		return c.sendOkay()
	case wire.MakeLink:
		if err := c.requireSuper(); err != nil {
			return err
		}
		if err := c.policy.InsertLink(m.S1, m.S2); err != nil {
			return err
		}
		return c.sendOkay()
	case wire.ClearLinks:
		if err := c.requireSuper(); err != nil {
			return err
		}
		if err := c.policy.ClearLinks(m.Subject); err != nil {
			return err
		}
		return c.sendOkay()
	case wire.MakeFilter:
		if err := c.requireSuper(); err != nil {
			return err
		}
		if err := c.policy.InsertFilter(m.Type1, m.Type2, m.Ticket); err != nil {
			return err
		}
		return c.sendOkay()
	case wire.DeleteFilter:
		if err := c.requireSuper(); err != nil {
			return err
		}
		if err := c.policy.DeleteFilter(m.Type1, m.Type2, m.Ticket); err != nil {
			return err
		}
		return c.sendOkay()
	case wire.GiveTicketSubject:
		return c.doGiveTicket(m)
	case wire.TakeTicketSubject:
		return c.doTakeTicket(m)
	case wire.XferTicket:
		return c.doXferTicket(m)
	case wire.DeletePath:
		return c.doDeletePath(m)
	default:
		return errors.Wrapf(spmerr.ErrAmbiguousSequence, "session: %s not valid in AUTH", msg.Type())
	}
}

func (c *Conn) doListSubject() error {
	names, err := c.policy.GetSubjectNames()
	if err != nil {
		return err
	}
	var page wire.ListSubjectServer
	for i, name := range names {
		slot := i % len(page.Subjects)
		page.Subjects[slot] = name
		if slot == len(page.Subjects)-1 {
			if err := c.Send(page); err != nil {
				return err
			}
			page = wire.ListSubjectServer{}
		}
	}
	if len(names)%len(page.Subjects) != 0 || len(names) == 0 {
		if err := c.Send(page); err != nil {
			return err
		}
	}
	return c.sendOkay()
}

func (c *Conn) doListObject() error {
	names, err := c.policy.GetObjectNames(c.cwd)
	if err != nil {
		return err
	}
	var page wire.ListObjectServer
	for i, name := range names {
		slot := i % len(page.Files)
		page.Files[slot] = name
		if slot == len(page.Files)-1 {
			if err := c.Send(page); err != nil {
				return err
			}
			page = wire.ListObjectServer{}
		}
	}
	if len(names)%len(page.Files) != 0 || len(names) == 0 {
		if err := c.Send(page); err != nil {
			return err
		}
	}
	return c.sendOkay()
}

func (c *Conn) doCD(m wire.CD) error {
	target := normalizePath(c.cwd, m.Path)
	if target != "/" {
		obj, err := c.policy.GetObject(target)
		if err != nil {
			return err
		}
		if obj == nil || !obj.IsDir {
			return &spmerr.StoreError{Detail: "not a directory: " + target}
		}
	}
	c.cwd = target
	return c.sendOkay()
}

func (c *Conn) doPushFile(m wire.PushFile) error {
	target := normalizePath(c.cwd, m.Name)
	parent := path.Dir(target)
	if err := c.authorize(ticket.New(ticket.Write), parent, true); err != nil {
		return err
	}
	if err := c.policy.InsertObject(target, false); err != nil {
		return err
	}
	f, err := c.files.OpenWrite(target)
	if err != nil {
		return err
	}
	c.fd = f
	if err := c.sendOkay(); err != nil {
		f.Close()
		c.fd = nil
		return err
	}
	c.mode = ModePulling
	return nil
}

func (c *Conn) doPullFile(m wire.PullFile) error {
	target := normalizePath(c.cwd, m.Name)
	if err := c.authorize(ticket.New(ticket.Read), target, true); err != nil {
		return err
	}
	f, err := c.files.OpenRead(target)
	if err != nil {
		return err
	}
	defer f.Close()
	c.mode = ModePushing
	defer func() { c.mode = ModeIdle }()
	if err := c.sendOkay(); err != nil {
		return err
	}
	return transfer.StreamOut(c, f)
}

// appendPush handles an XFER_FILE frame received while in ModePulling.
func (c *Conn) appendPush(m wire.XferFile) error {
	if c.mode != ModePulling || c.fd == nil {
		return errors.Wrap(spmerr.ErrAmbiguousSequence, "session: xfer_file outside a push")
	}
	return transfer.AppendChunk(c.fd, m)
}

// finishPush handles an OKAY received while in ModePulling, terminating
// the client's push.
func (c *Conn) finishPush() error {
	if c.mode != ModePulling || c.fd == nil {
		return errors.Wrap(spmerr.ErrAmbiguousSequence, "session: okay outside a push")
	}
	c.fd.Close()
	c.fd = nil
	c.mode = ModeIdle
	return nil
}

func (c *Conn) doMakeDirectory(m wire.MakeDirectory) error {
	target := normalizePath(c.cwd, m.Dir)
	parent := path.Dir(target)
	if err := c.authorize(ticket.New(ticket.Write), parent, true); err != nil {
		return err
	}
	if err := c.policy.InsertObject(target, true); err != nil {
		return err
	}
	if err := c.files.MakeDir(target); err != nil {
		if delErr := c.policy.DeleteObject(target); delErr != nil {
			c.log.Error("rollback catalog entry after mkdir failure", "path", target, "error", delErr)
		}
		return err
	}
	return c.sendOkay()
}

func (c *Conn) doMakeSubject(m wire.MakeSubject) error {
	if err := c.requireSuper(); err != nil {
		return err
	}
	if err := c.policy.InsertSubject(m.Subject, m.Type2, m.Password, false); err != nil {
		return err
	}
	return c.sendOkay()
}

func (c *Conn) doGiveTicket(m wire.GiveTicketSubject) error {
	if err := c.authorize(ticket.New(ticket.Grant), m.Target, m.IsObject); err != nil {
		return err
	}
	if err := c.policy.InsertRight(m.Subject, m.Ticket, m.Target, m.IsObject); err != nil {
		return err
	}
	return c.sendOkay()
}

func (c *Conn) doTakeTicket(m wire.TakeTicketSubject) error {
	if err := c.authorize(ticket.New(ticket.Take), m.Target, m.IsObject); err != nil {
		return err
	}
	if err := c.policy.DeleteRight(m.Subject, m.Ticket, m.Target, m.IsObject); err != nil {
		return err
	}
	return c.sendOkay()
}

func (c *Conn) doXferTicket(m wire.XferTicket) error {
	if err := c.authorize(m.Ticket, m.Target, m.IsObject); err != nil {
		return err
	}
	if err := c.checkTransfer(m.S1, m.S2, m.Ticket); err != nil {
		return err
	}
	err := c.policy.Tx(func(p store.Policy) error {
		if err := p.DeleteRight(m.S1, m.Ticket, m.Target, m.IsObject); err != nil {
			return err
		}
		return p.InsertRight(m.S2, m.Ticket, m.Target, m.IsObject)
	})
	if err != nil {
		return err
	}
	return c.sendOkay()
}

func (c *Conn) doDeletePath(m wire.DeletePath) error {
	target := normalizePath(c.cwd, m.Path)
	if err := c.authorize(ticket.New(ticket.Write), target, true); err != nil {
		return err
	}
	if err := c.policy.DeleteObject(target); err != nil {
		return err
	}
	if err := c.files.Delete(target); err != nil {
		return err
	}
	return c.sendOkay()
}
