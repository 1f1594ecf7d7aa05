package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/henfredemars/spmd/internal/config"
	"github.com/henfredemars/spmd/internal/objectstore"
	"github.com/henfredemars/spmd/internal/server"
	"github.com/henfredemars/spmd/internal/store"
	"github.com/henfredemars/spmd/internal/ticket"
)

func startTestServer(t *testing.T) (addr string, policy store.Policy) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.BaseLoginDelay = 0
	cfg.Auth.LoginDelaySpread = 0

	policy = store.NewMemory()
	files, err := objectstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	acc, err := server.New("127.0.0.1:0", cfg, policy, files, log)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go acc.Serve(ctx)
	return acc.Addr().String(), policy
}

func TestLoginAndListSubjects(t *testing.T) {
	addr, policy := startTestServer(t)
	if err := policy.InsertSubject("admin", "main", "password", true); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Login("admin", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	names, err := c.ListSubjects()
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(names) != 1 || names[0] != "admin" {
		t.Fatalf("got %v, want [admin]", names)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	addr, policy := startTestServer(t)
	if err := policy.InsertSubject("admin", "main", "password", true); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Login("admin", "wrong-password"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestPushAndPullRoundTrip(t *testing.T) {
	addr, policy := startTestServer(t)
	if err := policy.InsertSubject("admin", "main", "password", true); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Login("admin", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	payload := strings.Repeat("spm-payload-", 500)
	if err := c.Push("data.bin", strings.NewReader(payload)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	var out bytes.Buffer
	if err := c.Pull("data.bin", &out); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if out.String() != payload {
		t.Fatalf("pulled %d bytes, want %d", out.Len(), len(payload))
	}
}

func TestPullToFileRefusesExistingLocalPath(t *testing.T) {
	addr, policy := startTestServer(t)
	if err := policy.InsertSubject("admin", "main", "password", true); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Login("admin", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Push("data.bin", strings.NewReader("payload")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	dir := t.TempDir()
	dest := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
		t.Fatalf("seed local file: %v", err)
	}

	if err := c.PullToFile("data.bin", dest); err == nil {
		t.Fatal("expected PullToFile to refuse an existing local path")
	}

	fresh := filepath.Join(dir, "fresh.bin")
	if err := c.PullToFile("data.bin", fresh); err != nil {
		t.Fatalf("PullToFile into a fresh path: %v", err)
	}
	got, err := os.ReadFile(fresh)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestMakeSubjectAndTicketTransfer(t *testing.T) {
	addr, policy := startTestServer(t)
	if err := policy.InsertSubject("admin", "main", "password", true); err != nil {
		t.Fatalf("InsertSubject: %v", err)
	}
	if err := policy.InsertSubject("bob", "user", "password2", false); err != nil {
		t.Fatalf("InsertSubject bob: %v", err)
	}

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Login("admin", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := c.MakeSubject("carol", "user", "password3"); err != nil {
		t.Fatalf("MakeSubject: %v", err)
	}
	if err := c.MakeLink("bob", "carol"); err != nil {
		t.Fatalf("MakeLink: %v", err)
	}
	if err := c.MakeFilter("user", "user", ticket.New(ticket.Read)); err != nil {
		t.Fatalf("MakeFilter: %v", err)
	}
	if err := c.GiveTicket("bob", ticket.New(ticket.Read), "admin", false); err != nil {
		t.Fatalf("GiveTicket: %v", err)
	}
	if err := c.XferTicket("bob", "carol", ticket.New(ticket.Read), "admin", false); err != nil {
		t.Fatalf("XferTicket: %v", err)
	}

	right, err := policy.GetRight("carol", ticket.New(ticket.Read), "admin", false)
	if err != nil {
		t.Fatalf("GetRight: %v", err)
	}
	if right == nil {
		t.Fatal("expected carol to hold the transferred right")
	}
	right, err = policy.GetRight("bob", ticket.New(ticket.Read), "admin", false)
	if err != nil {
		t.Fatalf("GetRight bob: %v", err)
	}
	if right != nil {
		t.Fatal("expected bob's right to be removed by the transfer")
	}
}
