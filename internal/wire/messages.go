package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/henfredemars/spmd/internal/spmerr"
	"github.com/henfredemars/spmd/internal/ticket"
)

// Message is implemented by one Go struct per wire Type (the tagged
// variant type the design notes call for, in place of the original's
// dynamic field-name-keyed containers).
type Message interface {
	Type() Type
	Marshal() []byte
}

func putStr(buf []byte, s string) {
	n := copy(buf, s)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}

func getStr(buf []byte) string {
	if n := bytes.IndexByte(buf, 0); n >= 0 {
		return string(buf[:n])
	}
	return string(buf)
}

func putTicket(buf []byte, t ticket.Ticket) { putStr(buf, t.String()) }

func getTicket(buf []byte) (ticket.Ticket, error) {
	s := getStr(buf)
	t, err := ticket.Parse(s)
	if err != nil {
		return ticket.Ticket{}, errors.Wrapf(&spmerr.BadTicketError{Detail: s}, "wire: decode ticket %q", s)
	}
	return t, nil
}

// ---- HELLO_SERVER / HELLO_CLIENT ----

type HelloServer struct{ Version uint32 }

func (HelloServer) Type() Type { return TypeHelloServer }
func (m HelloServer) Marshal() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Version)
	return b
}
func unmarshalHelloServer(b []byte) (Message, error) {
	return HelloServer{Version: binary.BigEndian.Uint32(b[:4])}, nil
}

type HelloClient struct{ Version uint32 }

func (HelloClient) Type() Type { return TypeHelloClient }
func (m HelloClient) Marshal() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Version)
	return b
}
func unmarshalHelloClient(b []byte) (Message, error) {
	return HelloClient{Version: binary.BigEndian.Uint32(b[:4])}, nil
}

// ---- DIE / OKAY / REJECT_AUTH / GET_CD / LIST_*_CLIENT (no body) ----

type Die struct{}

func (Die) Type() Type           { return TypeDie }
func (Die) Marshal() []byte      { return nil }
func unmarshalDie([]byte) (Message, error) { return Die{}, nil }

type Okay struct{}

func (Okay) Type() Type           { return TypeOkay }
func (Okay) Marshal() []byte      { return nil }
func unmarshalOkay([]byte) (Message, error) { return Okay{}, nil }

type RejectAuth struct{}

func (RejectAuth) Type() Type           { return TypeRejectAuth }
func (RejectAuth) Marshal() []byte      { return nil }
func unmarshalRejectAuth([]byte) (Message, error) { return RejectAuth{}, nil }

type ListSubjectClient struct{}

func (ListSubjectClient) Type() Type      { return TypeListSubjectClient }
func (ListSubjectClient) Marshal() []byte { return nil }
func unmarshalListSubjectClient([]byte) (Message, error) { return ListSubjectClient{}, nil }

type ListObjectClient struct{}

func (ListObjectClient) Type() Type      { return TypeListObjectClient }
func (ListObjectClient) Marshal() []byte { return nil }
func unmarshalListObjectClient([]byte) (Message, error) { return ListObjectClient{}, nil }

type GetCD struct{}

func (GetCD) Type() Type      { return TypeGetCD }
func (GetCD) Marshal() []byte { return nil }
func unmarshalGetCD([]byte) (Message, error) { return GetCD{}, nil }

// ---- PULL_FILE / PUSH_FILE / MAKE_DIRECTORY / CD / DELETE_PATH (single path field) ----

type PullFile struct{ Name string }

func (PullFile) Type() Type { return TypePullFile }
func (m PullFile) Marshal() []byte {
	b := make([]byte, PathWidth)
	putStr(b, m.Name)
	return b
}
func unmarshalPullFile(b []byte) (Message, error) {
	return PullFile{Name: getStr(b[:PathWidth])}, nil
}

type PushFile struct{ Name string }

func (PushFile) Type() Type { return TypePushFile }
func (m PushFile) Marshal() []byte {
	b := make([]byte, PathWidth)
	putStr(b, m.Name)
	return b
}
func unmarshalPushFile(b []byte) (Message, error) {
	return PushFile{Name: getStr(b[:PathWidth])}, nil
}

type MakeDirectory struct{ Dir string }

func (MakeDirectory) Type() Type { return TypeMakeDirectory }
func (m MakeDirectory) Marshal() []byte {
	b := make([]byte, PathWidth)
	putStr(b, m.Dir)
	return b
}
func unmarshalMakeDirectory(b []byte) (Message, error) {
	return MakeDirectory{Dir: getStr(b[:PathWidth])}, nil
}

type CD struct{ Path string }

func (CD) Type() Type { return TypeCD }
func (m CD) Marshal() []byte {
	b := make([]byte, PathWidth)
	putStr(b, m.Path)
	return b
}
func unmarshalCD(b []byte) (Message, error) {
	return CD{Path: getStr(b[:PathWidth])}, nil
}

type DeletePath struct{ Path string }

func (DeletePath) Type() Type { return TypeDeletePath }
func (m DeletePath) Marshal() []byte {
	b := make([]byte, PathWidth)
	putStr(b, m.Path)
	return b
}
func unmarshalDeletePath(b []byte) (Message, error) {
	return DeletePath{Path: getStr(b[:PathWidth])}, nil
}

// ---- CLEAR_LINKS / DELETE_SUBJECT (single subject field) ----

type ClearLinks struct{ Subject string }

func (ClearLinks) Type() Type { return TypeClearLinks }
func (m ClearLinks) Marshal() []byte {
	b := make([]byte, SubjectWidth)
	putStr(b, m.Subject)
	return b
}
func unmarshalClearLinks(b []byte) (Message, error) {
	return ClearLinks{Subject: getStr(b[:SubjectWidth])}, nil
}

type DeleteSubject struct{ Subject string }

func (DeleteSubject) Type() Type { return TypeDeleteSubject }
func (m DeleteSubject) Marshal() []byte {
	b := make([]byte, SubjectWidth)
	putStr(b, m.Subject)
	return b
}
func unmarshalDeleteSubject(b []byte) (Message, error) {
	return DeleteSubject{Subject: getStr(b[:SubjectWidth])}, nil
}

// ---- ERROR_SERVER ----

type ErrorServer struct{ Msg string }

func (ErrorServer) Type() Type { return TypeErrorServer }
func (m ErrorServer) Marshal() []byte {
	b := make([]byte, BodySize)
	putStr(b, m.Msg)
	return b
}
func unmarshalErrorServer(b []byte) (Message, error) {
	return ErrorServer{Msg: getStr(b[:BodySize])}, nil
}

// ---- AUTH_SUBJECT / CONFIRM_AUTH ----

type AuthSubject struct {
	Subject string
	Salt    [SaltWidth]byte
}

func (AuthSubject) Type() Type { return TypeAuthSubject }
func (m AuthSubject) Marshal() []byte {
	b := make([]byte, SubjectWidth+SaltWidth)
	putStr(b[:SubjectWidth], m.Subject)
	copy(b[SubjectWidth:], m.Salt[:])
	return b
}
func unmarshalAuthSubject(b []byte) (Message, error) {
	var m AuthSubject
	m.Subject = getStr(b[:SubjectWidth])
	copy(m.Salt[:], b[SubjectWidth:SubjectWidth+SaltWidth])
	return m, nil
}

type ConfirmAuth struct{ Subject string }

func (ConfirmAuth) Type() Type { return TypeConfirmAuth }
func (m ConfirmAuth) Marshal() []byte {
	b := make([]byte, SubjectWidth)
	putStr(b, m.Subject)
	return b
}
func unmarshalConfirmAuth(b []byte) (Message, error) {
	return ConfirmAuth{Subject: getStr(b[:SubjectWidth])}, nil
}

// ---- LIST_SUBJECT_SERVER / LIST_OBJECT_SERVER ----

type ListSubjectServer struct{ Subjects [subjectListLen]string }

func (ListSubjectServer) Type() Type { return TypeListSubjectServer }
func (m ListSubjectServer) Marshal() []byte {
	b := make([]byte, subjectListLen*SubjectWidth)
	for i, s := range m.Subjects {
		putStr(b[i*SubjectWidth:(i+1)*SubjectWidth], s)
	}
	return b
}
func unmarshalListSubjectServer(b []byte) (Message, error) {
	var m ListSubjectServer
	for i := range m.Subjects {
		m.Subjects[i] = getStr(b[i*SubjectWidth : (i+1)*SubjectWidth])
	}
	return m, nil
}

type ListObjectServer struct{ Files [objectListLen]string }

func (ListObjectServer) Type() Type { return TypeListObjectServer }
func (m ListObjectServer) Marshal() []byte {
	b := make([]byte, objectListLen*PathWidth)
	for i, s := range m.Files {
		putStr(b[i*PathWidth:(i+1)*PathWidth], s)
	}
	return b
}
func unmarshalListObjectServer(b []byte) (Message, error) {
	var m ListObjectServer
	for i := range m.Files {
		m.Files[i] = getStr(b[i*PathWidth : (i+1)*PathWidth])
	}
	return m, nil
}

// ---- XFER_FILE ----

const XferFileDataWidth = BodySize - 2 // 2024 bytes of data + 2-byte size

type XferFile struct {
	Data [XferFileDataWidth]byte
	Size uint16
}

func (XferFile) Type() Type { return TypeXferFile }
func (m XferFile) Marshal() []byte {
	b := make([]byte, XferFileDataWidth+2)
	copy(b, m.Data[:])
	binary.BigEndian.PutUint16(b[XferFileDataWidth:], m.Size)
	return b
}
func unmarshalXferFile(b []byte) (Message, error) {
	var m XferFile
	copy(m.Data[:], b[:XferFileDataWidth])
	m.Size = binary.BigEndian.Uint16(b[XferFileDataWidth : XferFileDataWidth+2])
	if int(m.Size) > XferFileDataWidth {
		return nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: xfer_file size %d exceeds chunk width %d", m.Size, XferFileDataWidth)
	}
	return m, nil
}

// ---- ticket-bearing messages ----

type GiveTicketSubject struct {
	Subject  string
	Ticket   ticket.Ticket
	Target   string
	IsObject bool
}

func (GiveTicketSubject) Type() Type { return TypeGiveTicketSubject }
func (m GiveTicketSubject) Marshal() []byte {
	b := make([]byte, SubjectWidth+TicketWidth+SubjectWidth+1)
	off := 0
	putStr(b[off:off+SubjectWidth], m.Subject)
	off += SubjectWidth
	putTicket(b[off:off+TicketWidth], m.Ticket)
	off += TicketWidth
	putStr(b[off:off+SubjectWidth], m.Target)
	off += SubjectWidth
	if m.IsObject {
		b[off] = 1
	}
	return b
}
func unmarshalGiveTicketSubject(b []byte) (Message, error) {
	return unmarshalTicketGrant(b)
}

type TakeTicketSubject struct {
	Subject  string
	Ticket   ticket.Ticket
	Target   string
	IsObject bool
}

func (TakeTicketSubject) Type() Type { return TypeTakeTicketSubject }
func (m TakeTicketSubject) Marshal() []byte {
	return GiveTicketSubject(m).Marshal()
}
func unmarshalTakeTicketSubject(b []byte) (Message, error) {
	g, err := unmarshalTicketGrant(b)
	if err != nil {
		return nil, err
	}
	return TakeTicketSubject(g.(GiveTicketSubject)), nil
}

// unmarshalTicketGrant decodes the shared (subject, ticket, target,
// isObject) layout used by both GIVE_TICKET_SUBJECT and
// TAKE_TICKET_SUBJECT; callers cast the result to the type they expect.
func unmarshalTicketGrant(b []byte) (Message, error) {
	var m GiveTicketSubject
	off := 0
	m.Subject = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	t, err := getTicket(b[off : off+TicketWidth])
	if err != nil {
		return nil, err
	}
	m.Ticket = t
	off += TicketWidth
	m.Target = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	m.IsObject = b[off] != 0
	return m, nil
}

type XferTicket struct {
	S1, S2   string
	Ticket   ticket.Ticket
	Target   string
	IsObject bool
}

func (XferTicket) Type() Type { return TypeXferTicket }
func (m XferTicket) Marshal() []byte {
	b := make([]byte, SubjectWidth*2+TicketWidth+SubjectWidth+1)
	off := 0
	putStr(b[off:off+SubjectWidth], m.S1)
	off += SubjectWidth
	putStr(b[off:off+SubjectWidth], m.S2)
	off += SubjectWidth
	putTicket(b[off:off+TicketWidth], m.Ticket)
	off += TicketWidth
	putStr(b[off:off+SubjectWidth], m.Target)
	off += SubjectWidth
	if m.IsObject {
		b[off] = 1
	}
	return b
}
func unmarshalXferTicket(b []byte) (Message, error) {
	var m XferTicket
	off := 0
	m.S1 = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	m.S2 = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	t, err := getTicket(b[off : off+TicketWidth])
	if err != nil {
		return nil, err
	}
	m.Ticket = t
	off += TicketWidth
	m.Target = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	m.IsObject = b[off] != 0
	return m, nil
}

// ---- MAKE_SUBJECT ----

type MakeSubject struct {
	Subject  string
	Type2    string // subject type, e.g. "user" / "admin" (field named Type2 to avoid clashing with Message.Type())
	Password string
}

func (MakeSubject) Type() Type { return TypeMakeSubject }
func (m MakeSubject) Marshal() []byte {
	b := make([]byte, SubjectWidth+TypeWidth+PasswordWidth)
	off := 0
	putStr(b[off:off+SubjectWidth], m.Subject)
	off += SubjectWidth
	putStr(b[off:off+TypeWidth], m.Type2)
	off += TypeWidth
	putStr(b[off:off+PasswordWidth], m.Password)
	return b
}
func unmarshalMakeSubject(b []byte) (Message, error) {
	var m MakeSubject
	off := 0
	m.Subject = getStr(b[off : off+SubjectWidth])
	off += SubjectWidth
	m.Type2 = getStr(b[off : off+TypeWidth])
	off += TypeWidth
	m.Password = getStr(b[off : off+PasswordWidth])
	return m, nil
}

// ---- MAKE_FILTER / DELETE_FILTER ----

type MakeFilter struct {
	Type1, Type2 string
	Ticket       ticket.Ticket
}

func (MakeFilter) Type() Type { return TypeMakeFilter }
func (m MakeFilter) Marshal() []byte {
	b := make([]byte, TypeWidth*2+TicketWidth)
	off := 0
	putStr(b[off:off+TypeWidth], m.Type1)
	off += TypeWidth
	putStr(b[off:off+TypeWidth], m.Type2)
	off += TypeWidth
	putTicket(b[off:off+TicketWidth], m.Ticket)
	return b
}
func unmarshalMakeFilter(b []byte) (Message, error) {
	return unmarshalFilter(b)
}

type DeleteFilter struct {
	Type1, Type2 string
	Ticket       ticket.Ticket
}

func (DeleteFilter) Type() Type { return TypeDeleteFilter }
func (m DeleteFilter) Marshal() []byte {
	return MakeFilter(m).Marshal()
}
func unmarshalDeleteFilter(b []byte) (Message, error) {
	m, err := unmarshalFilter(b)
	if err != nil {
		return nil, err
	}
	mf := m.(MakeFilter)
	return DeleteFilter(mf), nil
}

func unmarshalFilter(b []byte) (Message, error) {
	var m MakeFilter
	off := 0
	m.Type1 = getStr(b[off : off+TypeWidth])
	off += TypeWidth
	m.Type2 = getStr(b[off : off+TypeWidth])
	off += TypeWidth
	t, err := getTicket(b[off : off+TicketWidth])
	if err != nil {
		return nil, err
	}
	m.Ticket = t
	return m, nil
}

// ---- MAKE_LINK ----

type MakeLink struct{ S1, S2 string }

func (MakeLink) Type() Type { return TypeMakeLink }
func (m MakeLink) Marshal() []byte {
	b := make([]byte, SubjectWidth*2)
	putStr(b[:SubjectWidth], m.S1)
	putStr(b[SubjectWidth:], m.S2)
	return b
}
func unmarshalMakeLink(b []byte) (Message, error) {
	return MakeLink{
		S1: getStr(b[:SubjectWidth]),
		S2: getStr(b[SubjectWidth : SubjectWidth*2]),
	}, nil
}

// decoders maps each Type to the function that turns its raw,
// always-BodySize-long body slice into a typed Message.
var decoders = [typeCount]func([]byte) (Message, error){
	TypeHelloServer:       unmarshalHelloServer,
	TypeHelloClient:       unmarshalHelloClient,
	TypeDie:               unmarshalDie,
	TypePullFile:          unmarshalPullFile,
	TypePushFile:          unmarshalPushFile,
	TypeXferFile:          unmarshalXferFile,
	TypeOkay:              unmarshalOkay,
	TypeErrorServer:       unmarshalErrorServer,
	TypeAuthSubject:       unmarshalAuthSubject,
	TypeConfirmAuth:       unmarshalConfirmAuth,
	TypeRejectAuth:        unmarshalRejectAuth,
	TypeListSubjectClient: unmarshalListSubjectClient,
	TypeListSubjectServer: unmarshalListSubjectServer,
	TypeListObjectClient:  unmarshalListObjectClient,
	TypeListObjectServer:  unmarshalListObjectServer,
	TypeGiveTicketSubject: unmarshalGiveTicketSubject,
	TypeTakeTicketSubject: unmarshalTakeTicketSubject,
	TypeXferTicket:        unmarshalXferTicket,
	TypeMakeDirectory:     unmarshalMakeDirectory,
	TypeMakeSubject:       unmarshalMakeSubject,
	TypeCD:                unmarshalCD,
	TypeGetCD:             unmarshalGetCD,
	TypeMakeFilter:        unmarshalMakeFilter,
	TypeDeleteFilter:      unmarshalDeleteFilter,
	TypeMakeLink:          unmarshalMakeLink,
	TypeDeletePath:        unmarshalDeletePath,
	TypeClearLinks:        unmarshalClearLinks,
	TypeDeleteSubject:     unmarshalDeleteSubject,
}

// Decode turns a frame's (type, body) pair into a typed Message. body
// must be exactly BodySize long, as returned by Parse.
func Decode(t Type, body []byte) (Message, error) {
	if !t.valid() {
		return nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: unknown type byte %d", byte(t))
	}
	if len(body) != BodySize {
		return nil, errors.Wrapf(spmerr.ErrBadMessage, "wire: body is %d bytes, want %d", len(body), BodySize)
	}
	return decoders[t](body)
}
