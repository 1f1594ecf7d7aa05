package server

import (
	"io"
	"net"
	"testing"

	"github.com/henfredemars/spmd/internal/cipher"
	"github.com/henfredemars/spmd/internal/wire"
)

func newStream(key []byte) (*cipher.Stream, error) { return cipher.New(key) }

func writeFrame(t *testing.T, conn net.Conn, class wire.Class, m wire.Message, stream *cipher.Stream, macKey []byte) {
	t.Helper()
	frame, err := wire.Build(class, m.Type(), m.Marshal(), stream, macKey)
	if err != nil {
		t.Fatalf("build %s: %v", m.Type(), err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write %s: %v", m.Type(), err)
	}
}

func readFrame(t *testing.T, conn net.Conn, stream *cipher.Stream, macKey []byte) (wire.Type, wire.Message) {
	t.Helper()
	buf := make([]byte, wire.FrameSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	_, typ, body, err := wire.Parse(buf, stream, macKey)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	msg, err := wire.Decode(typ, body)
	if err != nil {
		t.Fatalf("decode %s: %v", typ, err)
	}
	return typ, msg
}
