// Package transfer implements the streamed push/pull sub-protocol
// layered over XFER_FILE frames: a sequence of fixed-size chunks with
// no per-chunk acknowledgement, terminated by an OKAY from the sender.
package transfer

import (
	"io"

	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/wire"
)

// ChunkSize is the maximum payload carried by a single XFER_FILE frame.
const ChunkSize = wire.XferFileDataWidth

// Sender is the subset of a connection transfer needs to stream frames
// out; session.Conn implements it.
type Sender interface {
	Send(m wire.Message) error
}

// StreamOut reads f to EOF, emitting one XFER_FILE frame per chunk of
// up to ChunkSize bytes, then a terminating OKAY. This is the server's
// half of PULL_FILE: the client drives nothing, it only reads frames as
// they arrive.
func StreamOut(s Sender, f io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			var chunk wire.XferFile
			copy(chunk.Data[:], buf[:n])
			chunk.Size = uint16(n)
			if sendErr := s.Send(chunk); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return &spmerr.IoError{Detail: err.Error()}
		}
	}
	return s.Send(wire.Okay{})
}

// AppendChunk writes the valid prefix of an XFER_FILE frame's payload
// to w. This is the server's half of PUSH_FILE: each arriving XFER_FILE
// is appended in order as the session dispatch loop receives it.
func AppendChunk(w io.Writer, frame wire.XferFile) error {
	if int(frame.Size) > len(frame.Data) {
		return &spmerr.IoError{Detail: "xfer_file size exceeds chunk width"}
	}
	if _, err := w.Write(frame.Data[:frame.Size]); err != nil {
		return &spmerr.IoError{Detail: err.Error()}
	}
	return nil
}
