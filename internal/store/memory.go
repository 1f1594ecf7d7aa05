package store

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/ticket"
)

type rightKey struct {
	subject  string
	ticket   string
	target   string
	isObject bool
}

type filterKey struct {
	type1  string
	type2  string
	ticket string
}

type linkKey struct {
	subject1 string
	subject2 string
}

// Memory is an in-process Policy backed by maps under a single
// read-write lock. The reference protocol treats the backing table
// engine as an interchangeable collaborator; nothing in the surrounding
// daemon or library code cares whether the maps are backed by SQL,
// so a mutex-guarded set of maps satisfies every consistency guarantee
// the protocol needs without pulling in a table engine nobody uses.
type Memory struct {
	mu sync.RWMutex

	subjects map[string]Subject
	links    map[linkKey]Link
	filters  map[filterKey]Filter
	rights   map[rightKey]Right
	objects  map[string]Object
}

// NewMemory returns an empty policy store.
func NewMemory() *Memory {
	return &Memory{
		subjects: make(map[string]Subject),
		links:    make(map[linkKey]Link),
		filters:  make(map[filterKey]Filter),
		rights:   make(map[rightKey]Right),
		objects:  make(map[string]Object),
	}
}

// Tx runs fn with the store's write lock held, so every call fn makes
// back into this Policy sees a consistent, isolated snapshot.
func (m *Memory) Tx(fn func(Policy) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&txMemory{m})
}

// txMemory re-exposes Memory's unlocked helpers as a Policy for use
// inside an already-held Tx closure. Calling Tx again on it does not
// re-lock (that would deadlock); it runs the nested closure inline
// under the lock already held.
type txMemory struct{ m *Memory }

func (t *txMemory) Tx(fn func(Policy) error) error { return fn(t) }

func (t *txMemory) InsertSubject(name, subjectType, password string, super bool) error {
	return t.m.insertSubject(name, subjectType, password, super)
}
func (t *txMemory) GetSubject(name string) (*Subject, error) { return t.m.getSubject(name) }
func (t *txMemory) GetSubjectNames() ([]string, error)        { return t.m.getSubjectNames() }
func (t *txMemory) DeleteSubject(name string) error           { return t.m.deleteSubject(name) }
func (t *txMemory) InsertLink(s1, s2 string) error            { return t.m.insertLink(s1, s2) }
func (t *txMemory) GetLink(s1, s2 string) (*Link, error)      { return t.m.getLink(s1, s2) }
func (t *txMemory) ClearLinks(name string) error              { return t.m.clearLinks(name) }
func (t *txMemory) InsertFilter(t1, t2 string, tk ticket.Ticket) error {
	return t.m.insertFilter(t1, t2, tk)
}
func (t *txMemory) GetFilter(t1, t2 string, tk ticket.Ticket) (*Filter, error) {
	return t.m.getFilter(t1, t2, tk)
}
func (t *txMemory) DeleteFilter(t1, t2 string, tk ticket.Ticket) error {
	return t.m.deleteFilter(t1, t2, tk)
}
func (t *txMemory) InsertRight(s string, tk ticket.Ticket, target string, isObject bool) error {
	return t.m.insertRight(s, tk, target, isObject)
}
func (t *txMemory) GetRight(s string, tk ticket.Ticket, target string, isObject bool) (*Right, error) {
	return t.m.getRight(s, tk, target, isObject)
}
func (t *txMemory) DeleteRight(s string, tk ticket.Ticket, target string, isObject bool) error {
	return t.m.deleteRight(s, tk, target, isObject)
}
func (t *txMemory) InsertObject(localPath string, isDir bool) error {
	return t.m.insertObject(localPath, isDir)
}
func (t *txMemory) GetObject(localPath string) (*Object, error) { return t.m.getObject(localPath) }
func (t *txMemory) GetObjectNames(cd string) ([]string, error)  { return t.m.getObjectNames(cd) }
func (t *txMemory) DeleteObject(localPath string) error         { return t.m.deleteObject(localPath) }

// Exported methods take the lock themselves; unexported ones assume the
// caller already holds it (directly, via a public method, or via Tx).

func (m *Memory) InsertSubject(name, subjectType, password string, super bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSubject(name, subjectType, password, super)
}

func (m *Memory) insertSubject(name, subjectType, password string, super bool) error {
	if name == "" || subjectType == "" || password == "" {
		return &spmerr.StoreError{Detail: "Name, password, and type are required"}
	}
	if len(password) < MinPasswordLength {
		return &spmerr.StoreError{Detail: "Password is way too short"}
	}
	if _, ok := m.subjects[name]; ok {
		return &spmerr.StoreError{Detail: "The subject already exists"}
	}
	m.subjects[name] = Subject{Name: name, Password: password, Type: subjectType, Super: super}
	return nil
}

func (m *Memory) GetSubject(name string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSubject(name)
}

func (m *Memory) getSubject(name string) (*Subject, error) {
	if name == "" {
		return nil, &spmerr.StoreError{Detail: "Cannot fetch subject without a name"}
	}
	if s, ok := m.subjects[name]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetSubjectNames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSubjectNames()
}

func (m *Memory) getSubjectNames() ([]string, error) {
	names := make([]string, 0, len(m.subjects))
	for n := range m.subjects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) DeleteSubject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSubject(name)
}

func (m *Memory) deleteSubject(name string) error {
	if name == "" {
		return &spmerr.StoreError{Detail: "Cannot delete subject without a name"}
	}
	delete(m.subjects, name)
	for k := range m.links {
		if k.subject1 == name || k.subject2 == name {
			delete(m.links, k)
		}
	}
	for k := range m.rights {
		if k.subject == name {
			delete(m.rights, k)
		}
	}
	return nil
}

func (m *Memory) ClearLinks(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLinks(name)
}

func (m *Memory) clearLinks(name string) error {
	if name == "" {
		return &spmerr.StoreError{Detail: "Cannot clear subject links without a name"}
	}
	for k := range m.links {
		if k.subject1 == name || k.subject2 == name {
			delete(m.links, k)
		}
	}
	return nil
}

func (m *Memory) InsertLink(subject1, subject2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLink(subject1, subject2)
}

func (m *Memory) insertLink(subject1, subject2 string) error {
	if subject1 == "" || subject2 == "" {
		return &spmerr.StoreError{Detail: "Subject cannot be empty"}
	}
	if _, ok := m.subjects[subject1]; !ok {
		return &spmerr.StoreError{Detail: "One of the subjects does not exist in the subjects table"}
	}
	if _, ok := m.subjects[subject2]; !ok {
		return &spmerr.StoreError{Detail: "One of the subjects does not exist in the subjects table"}
	}
	k := linkKey{subject1, subject2}
	if _, ok := m.links[k]; ok {
		return nil
	}
	m.links[k] = Link{Subject1: subject1, Subject2: subject2}
	return nil
}

func (m *Memory) GetLink(subject1, subject2 string) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLink(subject1, subject2)
}

func (m *Memory) getLink(subject1, subject2 string) (*Link, error) {
	if subject1 == "" || subject2 == "" {
		return nil, &spmerr.StoreError{Detail: "Subject cannot be empty"}
	}
	if l, ok := m.links[linkKey{subject1, subject2}]; ok {
		return &l, nil
	}
	return nil, nil
}

func (m *Memory) InsertFilter(type1, type2 string, t ticket.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertFilter(type1, type2, t)
}

func (m *Memory) insertFilter(type1, type2 string, t ticket.Ticket) error {
	if type1 == "" || type2 == "" {
		return &spmerr.StoreError{Detail: "Types cannot be empty"}
	}
	if !t.Valid() {
		return &spmerr.StoreError{Detail: "Not a valid ticket"}
	}
	k := filterKey{type1, type2, t.String()}
	if _, ok := m.filters[k]; ok {
		return &spmerr.StoreError{Detail: "Filter already exists"}
	}
	m.filters[k] = Filter{Type1: type1, Type2: type2, Ticket: t}
	return nil
}

func (m *Memory) GetFilter(type1, type2 string, t ticket.Ticket) (*Filter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getFilter(type1, type2, t)
}

func (m *Memory) getFilter(type1, type2 string, t ticket.Ticket) (*Filter, error) {
	if type1 == "" || type2 == "" {
		return nil, &spmerr.StoreError{Detail: "Types cannot be empty"}
	}
	if f, ok := m.filters[filterKey{type1, type2, t.String()}]; ok {
		return &f, nil
	}
	return nil, nil
}

func (m *Memory) DeleteFilter(type1, type2 string, t ticket.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteFilter(type1, type2, t)
}

func (m *Memory) deleteFilter(type1, type2 string, t ticket.Ticket) error {
	if type1 == "" || type2 == "" {
		return &spmerr.StoreError{Detail: "Types cannot be empty"}
	}
	delete(m.filters, filterKey{type1, type2, t.String()})
	return nil
}

func (m *Memory) InsertRight(subject string, t ticket.Ticket, target string, isObject bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRight(subject, t, target, isObject)
}

func (m *Memory) insertRight(subject string, t ticket.Ticket, target string, isObject bool) error {
	if subject == "" {
		return &spmerr.StoreError{Detail: "Subject cannot be empty"}
	}
	if target == "" {
		return &spmerr.StoreError{Detail: "Target cannot be empty"}
	}
	if !t.Valid() {
		return &spmerr.StoreError{Detail: "Not a valid ticket"}
	}
	if _, ok := m.subjects[subject]; !ok {
		return &spmerr.StoreError{Detail: "Subject must exist"}
	}
	if isObject {
		if _, ok := m.objects[target]; !ok {
			return &spmerr.StoreError{Detail: "Target object does not exist in database"}
		}
	} else if _, ok := m.subjects[target]; !ok {
		return &spmerr.StoreError{Detail: "Target subject does not exist in the database"}
	}
	k := rightKey{subject, t.String(), target, isObject}
	if _, ok := m.rights[k]; ok {
		return nil
	}
	m.rights[k] = Right{Subject: subject, Ticket: t, Target: target, IsObject: isObject}
	return nil
}

func (m *Memory) GetRight(subject string, t ticket.Ticket, target string, isObject bool) (*Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRight(subject, t, target, isObject)
}

func (m *Memory) getRight(subject string, t ticket.Ticket, target string, isObject bool) (*Right, error) {
	if subject == "" {
		return nil, &spmerr.StoreError{Detail: "Subject cannot be empty"}
	}
	if target == "" {
		return nil, &spmerr.StoreError{Detail: "Target cannot be empty"}
	}
	if r, ok := m.rights[rightKey{subject, t.String(), target, isObject}]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) DeleteRight(subject string, t ticket.Ticket, target string, isObject bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRight(subject, t, target, isObject)
}

func (m *Memory) deleteRight(subject string, t ticket.Ticket, target string, isObject bool) error {
	if subject == "" {
		return &spmerr.StoreError{Detail: "Subject cannot be empty"}
	}
	if target == "" {
		return &spmerr.StoreError{Detail: "Target cannot be empty"}
	}
	delete(m.rights, rightKey{subject, t.String(), target, isObject})
	return nil
}

func (m *Memory) InsertObject(localPath string, isDir bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertObject(localPath, isDir)
}

func (m *Memory) insertObject(localPath string, isDir bool) error {
	if localPath == "" {
		return &spmerr.StoreError{Detail: "A path is required"}
	}
	if localPath[0] != '/' {
		return &spmerr.StoreError{Detail: "The path is invalid"}
	}
	if parent := path.Dir(localPath); parent != "/" && parent != "." {
		p, ok := m.objects[parent]
		if !ok || !p.IsDir {
			return &spmerr.StoreError{Detail: "A parent directory is missing from the catalog"}
		}
	}
	if existing, ok := m.objects[localPath]; ok {
		if existing.IsDir || isDir {
			return &spmerr.StoreError{Detail: "The object already exists in the database"}
		}
		// A push re-targeting an existing file name overwrites it, per
		// the protocol's insert-or-replace push semantics.
	}
	m.objects[localPath] = Object{LocalPath: localPath, IsDir: isDir}
	return nil
}

func (m *Memory) GetObject(localPath string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getObject(localPath)
}

func (m *Memory) getObject(localPath string) (*Object, error) {
	if localPath == "" {
		return nil, &spmerr.StoreError{Detail: "A path is required"}
	}
	if localPath[0] != '/' {
		return nil, &spmerr.StoreError{Detail: "The path is invalid"}
	}
	if o, ok := m.objects[localPath]; ok {
		cp := o
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetObjectNames(cd string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getObjectNames(cd)
}

func (m *Memory) getObjectNames(cd string) ([]string, error) {
	if cd == "" {
		return nil, &spmerr.StoreError{Detail: "A current directory is required"}
	}
	if cd[0] != '/' {
		return nil, &spmerr.StoreError{Detail: "The path is invalid"}
	}
	prefix := cd
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	depth := strings.Count(strings.Trim(cd, "/"), "/") + 1
	if cd == "/" {
		depth = 0
	}
	var names []string
	for p := range m.objects {
		if p == cd {
			continue
		}
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.Count(strings.Trim(p, "/"), "/") == depth {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) DeleteObject(localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteObject(localPath)
}

func (m *Memory) deleteObject(localPath string) error {
	if localPath == "" {
		return &spmerr.StoreError{Detail: "A path to an object is required"}
	}
	if localPath[0] != '/' {
		return &spmerr.StoreError{Detail: "The path is invalid"}
	}
	if _, ok := m.objects[localPath]; !ok {
		return &spmerr.StoreError{Detail: "The path is not in the database"}
	}
	delete(m.objects, localPath)
	prefix := localPath + "/"
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			delete(m.objects, p)
		}
	}
	return nil
}
