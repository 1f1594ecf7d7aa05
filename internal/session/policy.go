package session

import (
	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/ticket"
)

// Policy enforcement is off the wire entirely: the reference database
// never checks rights, links, or filters itself, and leaves that to
// whatever sits on top of it. Here that's this file. Two tiers:
//
//   - Namespace-wide administrative mutators (subjects, links, filters)
//     have no natural "target" to hold a Right against, so they're
//     gated on the subject being super.
//   - Targeted object and ticket operations carry a target, so they're
//     gated on the acting subject holding the matching Right over it.
//
// Both tiers are skipped entirely when policy enforcement is off, and
// for super subjects regardless.

// requireSuper rejects the current request unless enforcement is off or
// the connection authenticated as a super subject.
func (c *Conn) requireSuper() error {
	if !c.cfg.Session.EnforcePolicy || c.super {
		return nil
	}
	return errors.Wrap(&spmerr.StoreError{Detail: "subject lacks administrative privilege"}, "session: requireSuper")
}

// authorize rejects the current request unless enforcement is off, the
// subject is super, or the subject holds required over target.
func (c *Conn) authorize(required ticket.Ticket, target string, isObject bool) error {
	if !c.cfg.Session.EnforcePolicy || c.super {
		return nil
	}
	right, err := c.policy.GetRight(c.subject, required, target, isObject)
	if err != nil {
		return err
	}
	if right == nil {
		return errors.Wrap(&spmerr.StoreError{Detail: "subject lacks " + required.String() + " over " + target}, "session: authorize")
	}
	return nil
}

// checkTransfer rejects an XFER_TICKET unless enforcement is off, the
// subject is super, or both a link from s1 to s2 and a filter matching
// their subject types and t exist.
func (c *Conn) checkTransfer(s1, s2 string, t ticket.Ticket) error {
	if !c.cfg.Session.EnforcePolicy || c.super {
		return nil
	}
	from, err := c.policy.GetSubject(s1)
	if err != nil {
		return err
	}
	to, err := c.policy.GetSubject(s2)
	if err != nil {
		return err
	}
	if from == nil || to == nil {
		return errors.Wrap(&spmerr.StoreError{Detail: "transfer references an unknown subject"}, "session: checkTransfer")
	}
	link, err := c.policy.GetLink(s1, s2)
	if err != nil {
		return err
	}
	if link == nil {
		return errors.Wrap(&spmerr.StoreError{Detail: "no link from " + s1 + " to " + s2}, "session: checkTransfer")
	}
	filter, err := c.policy.GetFilter(from.Type, to.Type, t)
	if err != nil {
		return err
	}
	if filter == nil {
		return errors.Wrap(&spmerr.StoreError{Detail: "no filter permits " + t.String() + " between " + from.Type + " and " + to.Type}, "session: checkTransfer")
	}
	return nil
}
