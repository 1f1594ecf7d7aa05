package wire

import (
	"testing"

	"github.com/henfredemars/spmd/internal/ticket"
)

func pad(b []byte) []byte {
	out := make([]byte, BodySize)
	copy(out, b)
	return out
}

func decodeMust(t *testing.T, m Message) Message {
	t.Helper()
	got, err := Decode(m.Type(), pad(m.Marshal()))
	if err != nil {
		t.Fatalf("Decode(%s): %v", m.Type(), err)
	}
	return got
}

func TestHelloRoundTrip(t *testing.T) {
	in := HelloServer{Version: 3}
	out := decodeMust(t, in).(HelloServer)
	if out.Version != in.Version {
		t.Fatalf("got %+v, want %+v", out, in)
	}

	inC := HelloClient{Version: 3}
	outC := decodeMust(t, inC).(HelloClient)
	if outC.Version != inC.Version {
		t.Fatalf("got %+v, want %+v", outC, inC)
	}
}

func TestEmptyBodyMessagesRoundTrip(t *testing.T) {
	cases := []Message{
		Die{}, Okay{}, RejectAuth{},
		ListSubjectClient{}, ListObjectClient{}, GetCD{},
	}
	for _, m := range cases {
		got, err := Decode(m.Type(), pad(m.Marshal()))
		if err != nil {
			t.Fatalf("Decode(%s): %v", m.Type(), err)
		}
		if got.Type() != m.Type() {
			t.Fatalf("got type %s, want %s", got.Type(), m.Type())
		}
	}
}

func TestPathFieldMessagesRoundTrip(t *testing.T) {
	if got := decodeMust(t, PullFile{Name: "a/b.txt"}).(PullFile); got.Name != "a/b.txt" {
		t.Fatalf("PullFile got %+v", got)
	}
	if got := decodeMust(t, PushFile{Name: "c.bin"}).(PushFile); got.Name != "c.bin" {
		t.Fatalf("PushFile got %+v", got)
	}
	if got := decodeMust(t, MakeDirectory{Dir: "sub/dir"}).(MakeDirectory); got.Dir != "sub/dir" {
		t.Fatalf("MakeDirectory got %+v", got)
	}
	if got := decodeMust(t, CD{Path: ".."}).(CD); got.Path != ".." {
		t.Fatalf("CD got %+v", got)
	}
	if got := decodeMust(t, DeletePath{Path: "old"}).(DeletePath); got.Path != "old" {
		t.Fatalf("DeletePath got %+v", got)
	}
}

func TestSubjectFieldMessagesRoundTrip(t *testing.T) {
	if got := decodeMust(t, ClearLinks{Subject: "alice"}).(ClearLinks); got.Subject != "alice" {
		t.Fatalf("ClearLinks got %+v", got)
	}
	if got := decodeMust(t, DeleteSubject{Subject: "bob"}).(DeleteSubject); got.Subject != "bob" {
		t.Fatalf("DeleteSubject got %+v", got)
	}
}

func TestErrorServerRoundTrip(t *testing.T) {
	in := ErrorServer{Msg: "BadMessageError"}
	got := decodeMust(t, in).(ErrorServer)
	if got.Msg != in.Msg {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestAuthSubjectRoundTrip(t *testing.T) {
	var salt [SaltWidth]byte
	for i := range salt {
		salt[i] = byte(i)
	}
	in := AuthSubject{Subject: "alice", Salt: salt}
	got := decodeMust(t, in).(AuthSubject)
	if got.Subject != in.Subject || got.Salt != in.Salt {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestConfirmAuthRoundTrip(t *testing.T) {
	in := ConfirmAuth{Subject: "alice"}
	got := decodeMust(t, in).(ConfirmAuth)
	if got.Subject != in.Subject {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestListSubjectServerRoundTrip(t *testing.T) {
	var in ListSubjectServer
	in.Subjects[0] = "alice"
	in.Subjects[1] = "bob"
	got := decodeMust(t, in).(ListSubjectServer)
	if got.Subjects[0] != "alice" || got.Subjects[1] != "bob" || got.Subjects[2] != "" {
		t.Fatalf("got %+v", got)
	}
}

func TestListObjectServerRoundTrip(t *testing.T) {
	var in ListObjectServer
	in.Files[0] = "readme.txt"
	got := decodeMust(t, in).(ListObjectServer)
	if got.Files[0] != "readme.txt" || got.Files[1] != "" {
		t.Fatalf("got %+v", got)
	}
}

func TestXferFileRoundTrip(t *testing.T) {
	var in XferFile
	copy(in.Data[:], "chunk of file data")
	in.Size = 18
	got := decodeMust(t, in).(XferFile)
	if got.Size != in.Size {
		t.Fatalf("got size %d, want %d", got.Size, in.Size)
	}
	if string(got.Data[:got.Size]) != "chunk of file data" {
		t.Fatalf("got data %q", got.Data[:got.Size])
	}
}

func TestXferFileRejectsOversizeSize(t *testing.T) {
	body := make([]byte, BodySize)
	body[XferFileDataWidth] = 0xFF
	body[XferFileDataWidth+1] = 0xFF
	if _, err := Decode(TypeXferFile, body); err == nil {
		t.Fatal("expected error for size exceeding chunk width")
	}
}

func TestGiveAndTakeTicketSubjectRoundTrip(t *testing.T) {
	in := GiveTicketSubject{
		Subject:  "alice",
		Ticket:   ticket.New(ticket.Read),
		Target:   "/data/file.txt",
		IsObject: true,
	}
	got := decodeMust(t, in).(GiveTicketSubject)
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}

	inT := TakeTicketSubject(in)
	gotT := decodeMust(t, inT).(TakeTicketSubject)
	if gotT != inT {
		t.Fatalf("got %+v, want %+v", gotT, inT)
	}
}

func TestXferTicketRoundTrip(t *testing.T) {
	in := XferTicket{
		S1:       "alice",
		S2:       "bob",
		Ticket:   ticket.New(ticket.Grant),
		Target:   "proj",
		IsObject: false,
	}
	got := decodeMust(t, in).(XferTicket)
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestMakeSubjectRoundTrip(t *testing.T) {
	in := MakeSubject{Subject: "carol", Type2: "user", Password: "s3cret"}
	got := decodeMust(t, in).(MakeSubject)
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestMakeAndDeleteFilterRoundTrip(t *testing.T) {
	in := MakeFilter{Type1: "user", Type2: "admin", Ticket: ticket.New(ticket.Take)}
	got := decodeMust(t, in).(MakeFilter)
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}

	inD := DeleteFilter(in)
	gotD := decodeMust(t, inD).(DeleteFilter)
	if gotD != inD {
		t.Fatalf("got %+v, want %+v", gotD, inD)
	}
}

func TestMakeLinkRoundTrip(t *testing.T) {
	in := MakeLink{S1: "alice", S2: "bob"}
	got := decodeMust(t, in).(MakeLink)
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode(typeCount, make([]byte, BodySize)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestDecodeRejectsWrongBodyLength(t *testing.T) {
	if _, err := Decode(TypeOkay, make([]byte, BodySize-1)); err == nil {
		t.Fatal("expected error for short body")
	}
}

func TestGiveTicketSubjectRejectsMalformedTicket(t *testing.T) {
	body := make([]byte, BodySize)
	copy(body[SubjectWidth:SubjectWidth+TicketWidth], "XYZ")
	if _, err := Decode(TypeGiveTicketSubject, body); err == nil {
		t.Fatal("expected error for malformed ticket")
	}
}

func TestDecodersCoverEveryType(t *testing.T) {
	for typ := Type(0); typ < typeCount; typ++ {
		if decoders[typ] == nil {
			t.Errorf("type %s has no decoder registered", typ)
		}
	}
}
