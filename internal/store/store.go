// Package store implements the policy metadata table: subjects, links,
// filters, rights, and the object catalog. It enforces table-level
// consistency only — policy decisions belong to the session layer, not
// the store.
package store

import (
	"github.com/henfredemars/spmd/internal/ticket"
)

// Subject is a principal the daemon can authenticate: a login name, a
// password, a type used by filters, and a super flag that bypasses
// policy checks entirely.
type Subject struct {
	Name     string
	Password string
	Type     string
	Super    bool
}

// Link records a true predicate between two subjects: subject1 may
// transfer rights to subject2 when a matching Filter also exists.
type Link struct {
	Subject1 string
	Subject2 string
}

// Filter allows a right ticket to cross a link between two subject
// types.
type Filter struct {
	Type1  string
	Type2  string
	Ticket ticket.Ticket
}

// Right grants a subject a ticket over a target, which is either
// another subject or an object depending on IsObject.
type Right struct {
	Subject  string
	Ticket   ticket.Ticket
	Target   string
	IsObject bool
}

// Object is a catalog entry for a path under the object store root.
type Object struct {
	LocalPath string
	IsDir     bool
}

// MinPasswordLength is the shortest password InsertSubject accepts.
const MinPasswordLength = 5

// Policy is the full set of operations the policy store supports. Tx
// groups a sequence of calls into one atomic unit; Memory's
// implementation takes its write lock once for the whole closure so
// readers never observe a partially applied transaction.
type Policy interface {
	Tx(func(Policy) error) error

	InsertSubject(name, subjectType, password string, super bool) error
	GetSubject(name string) (*Subject, error)
	GetSubjectNames() ([]string, error)
	DeleteSubject(name string) error

	InsertLink(subject1, subject2 string) error
	GetLink(subject1, subject2 string) (*Link, error)
	ClearLinks(name string) error

	InsertFilter(type1, type2 string, t ticket.Ticket) error
	GetFilter(type1, type2 string, t ticket.Ticket) (*Filter, error)
	DeleteFilter(type1, type2 string, t ticket.Ticket) error

	InsertRight(subject string, t ticket.Ticket, target string, isObject bool) error
	GetRight(subject string, t ticket.Ticket, target string, isObject bool) (*Right, error)
	DeleteRight(subject string, t ticket.Ticket, target string, isObject bool) error

	InsertObject(localPath string, isDir bool) error
	GetObject(localPath string) (*Object, error)
	GetObjectNames(cd string) ([]string, error)
	DeleteObject(localPath string) error
}
