package store

import (
	"testing"

	"github.com/henfredemars/spmd/internal/ticket"
)

func TestInsertAndGetSubject(t *testing.T) {
	m := NewMemory()
	if err := m.InsertSubject("alice", "user", "s3cr3t!", false); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}
	s, err := m.GetSubject("alice")
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if s == nil || s.Name != "alice" || s.Type != "user" {
		t.Fatalf("got %+v", s)
	}
}

func TestInsertSubjectRejectsShortPassword(t *testing.T) {
	m := NewMemory()
	if err := m.InsertSubject("alice", "user", "abc", false); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestInsertSubjectRejectsDuplicate(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	if err := m.InsertSubject("alice", "user", "s3cr3t!", false); err == nil {
		t.Fatal("expected error for duplicate subject")
	}
}

func TestGetSubjectMissingReturnsNilNotError(t *testing.T) {
	m := NewMemory()
	s, err := m.GetSubject("ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

func TestDeleteSubjectCascadesLinksAndRights(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	mustInsertSubject(t, m, "bob")
	if err := m.InsertLink("alice", "bob"); err != nil {
		t.Fatalf("InsertLink: %v", err)
	}
	if err := m.InsertRight("alice", ticket.New(ticket.Read), "bob", false); err != nil {
		t.Fatalf("InsertRight: %v", err)
	}

	if err := m.DeleteSubject("alice"); err != nil {
		t.Fatalf("DeleteSubject: %v", err)
	}

	if l, _ := m.GetLink("alice", "bob"); l != nil {
		t.Fatalf("expected link to be cascaded away, got %+v", l)
	}
	if r, _ := m.GetRight("alice", ticket.New(ticket.Read), "bob", false); r != nil {
		t.Fatalf("expected right to be cascaded away, got %+v", r)
	}
}

func TestInsertLinkRequiresBothSubjects(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	if err := m.InsertLink("alice", "ghost"); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestInsertLinkIsIdempotent(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	mustInsertSubject(t, m, "bob")
	if err := m.InsertLink("alice", "bob"); err != nil {
		t.Fatalf("InsertLink: %v", err)
	}
	if err := m.InsertLink("alice", "bob"); err != nil {
		t.Fatalf("second InsertLink: %v", err)
	}
}

func TestClearLinksRemovesBothDirections(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	mustInsertSubject(t, m, "bob")
	mustInsertSubject(t, m, "carol")
	if err := m.InsertLink("alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertLink("carol", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearLinks("alice"); err != nil {
		t.Fatalf("ClearLinks: %v", err)
	}
	if l, _ := m.GetLink("alice", "bob"); l != nil {
		t.Fatal("expected link gone")
	}
	if l, _ := m.GetLink("carol", "alice"); l != nil {
		t.Fatal("expected link gone")
	}
}

func TestFilterLifecycle(t *testing.T) {
	m := NewMemory()
	tk := ticket.New(ticket.Grant)
	if err := m.InsertFilter("user", "admin", tk); err != nil {
		t.Fatalf("InsertFilter: %v", err)
	}
	if err := m.InsertFilter("user", "admin", tk); err == nil {
		t.Fatal("expected error for duplicate filter")
	}
	f, err := m.GetFilter("user", "admin", tk)
	if err != nil || f == nil {
		t.Fatalf("GetFilter: %v, %+v", err, f)
	}
	if err := m.DeleteFilter("user", "admin", tk); err != nil {
		t.Fatalf("DeleteFilter: %v", err)
	}
	if f, _ := m.GetFilter("user", "admin", tk); f != nil {
		t.Fatal("expected filter gone")
	}
}

func TestInsertRightRequiresExistingTarget(t *testing.T) {
	m := NewMemory()
	mustInsertSubject(t, m, "alice")
	if err := m.InsertRight("alice", ticket.New(ticket.Take), "ghost", false); err == nil {
		t.Fatal("expected error for missing target subject")
	}
	if err := m.InsertRight("alice", ticket.New(ticket.Take), "/missing", true); err == nil {
		t.Fatal("expected error for missing target object")
	}
}

func TestObjectLifecycleRequiresParent(t *testing.T) {
	m := NewMemory()
	if err := m.InsertObject("/a/b", true); err == nil {
		t.Fatal("expected error: parent /a does not exist")
	}
	if err := m.InsertObject("/a", true); err != nil {
		t.Fatalf("InsertObject(/a): %v", err)
	}
	if err := m.InsertObject("/a/b", false); err != nil {
		t.Fatalf("InsertObject(/a/b): %v", err)
	}
	names, err := m.GetObjectNames("/a")
	if err != nil {
		t.Fatalf("GetObjectNames: %v", err)
	}
	if len(names) != 1 || names[0] != "/a/b" {
		t.Fatalf("got %v", names)
	}
}

func TestDeleteObjectCascadesChildren(t *testing.T) {
	m := NewMemory()
	mustInsertObjectDir(t, m, "/a")
	if err := m.InsertObject("/a/b", false); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteObject("/a"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if o, _ := m.GetObject("/a/b"); o != nil {
		t.Fatal("expected child object to be cascaded away")
	}
}

func TestObjectPathMustBeAbsolute(t *testing.T) {
	m := NewMemory()
	if err := m.InsertObject("relative", false); err == nil {
		t.Fatal("expected error for relative path")
	}
}

func TestInsertObjectOverwritesExistingFile(t *testing.T) {
	m := NewMemory()
	if err := m.InsertObject("/a", false); err != nil {
		t.Fatalf("InsertObject(/a): %v", err)
	}
	if err := m.InsertObject("/a", false); err != nil {
		t.Fatalf("re-push over /a should replace, got: %v", err)
	}
	o, err := m.GetObject("/a")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if o == nil || o.IsDir {
		t.Fatalf("got %+v, want a surviving file entry", o)
	}
}

func TestInsertObjectRejectsFileDirectoryCollision(t *testing.T) {
	m := NewMemory()
	mustInsertObjectDir(t, m, "/a")
	if err := m.InsertObject("/a", false); err == nil {
		t.Fatal("expected error replacing a directory with a file")
	}
	if err := m.InsertObject("/a", true); err == nil {
		t.Fatal("expected error re-inserting an existing directory")
	}
}

func TestTxIsAtomicAcrossCalls(t *testing.T) {
	m := NewMemory()
	err := m.Tx(func(p Policy) error {
		if err := p.InsertSubject("alice", "user", "s3cr3t!", false); err != nil {
			return err
		}
		return p.InsertSubject("bob", "user", "s3cr3t!", false)
	})
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	names, err := m.GetSubjectNames()
	if err != nil {
		t.Fatalf("GetSubjectNames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v", names)
	}
}

func mustInsertSubject(t *testing.T, m *Memory, name string) {
	t.Helper()
	if err := m.InsertSubject(name, "user", "s3cr3t!", false); err != nil {
		t.Fatalf("InsertSubject(%s): %v", name, err)
	}
}

func mustInsertObjectDir(t *testing.T, m *Memory, path string) {
	t.Helper()
	if err := m.InsertObject(path, true); err != nil {
		t.Fatalf("InsertObject(%s): %v", path, err)
	}
}
