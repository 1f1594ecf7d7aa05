package wire

// Class distinguishes unauthenticated cleartext frames from
// authenticated, encrypted, MAC'd frames.
type Class byte

const (
	Public  Class = 0
	Private Class = 1
)

func (c Class) String() string {
	switch c {
	case Public:
		return "PUBLIC"
	case Private:
		return "PRIVATE"
	default:
		return "UNKNOWN"
	}
}

// Type identifies the closed set of wire message types.
type Type byte

const (
	TypeHelloServer Type = iota
	TypeHelloClient
	TypeDie
	TypePullFile
	TypePushFile
	TypeXferFile
	TypeOkay
	TypeErrorServer
	TypeAuthSubject
	TypeConfirmAuth
	TypeRejectAuth
	TypeListSubjectClient
	TypeListSubjectServer
	TypeListObjectClient
	TypeListObjectServer
	TypeGiveTicketSubject
	TypeTakeTicketSubject
	TypeXferTicket
	TypeMakeDirectory
	TypeMakeSubject
	TypeCD
	TypeGetCD
	TypeMakeFilter
	TypeDeleteFilter
	TypeMakeLink
	TypeDeletePath
	TypeClearLinks
	TypeDeleteSubject

	typeCount
)

var typeNames = [typeCount]string{
	TypeHelloServer:       "HELLO_SERVER",
	TypeHelloClient:       "HELLO_CLIENT",
	TypeDie:               "DIE",
	TypePullFile:          "PULL_FILE",
	TypePushFile:          "PUSH_FILE",
	TypeXferFile:          "XFER_FILE",
	TypeOkay:              "OKAY",
	TypeErrorServer:       "ERROR_SERVER",
	TypeAuthSubject:       "AUTH_SUBJECT",
	TypeConfirmAuth:       "CONFIRM_AUTH",
	TypeRejectAuth:        "REJECT_AUTH",
	TypeListSubjectClient: "LIST_SUBJECT_CLIENT",
	TypeListSubjectServer: "LIST_SUBJECT_SERVER",
	TypeListObjectClient:  "LIST_OBJECT_CLIENT",
	TypeListObjectServer:  "LIST_OBJECT_SERVER",
	TypeGiveTicketSubject: "GIVE_TICKET_SUBJECT",
	TypeTakeTicketSubject: "TAKE_TICKET_SUBJECT",
	TypeXferTicket:        "XFER_TICKET",
	TypeMakeDirectory:     "MAKE_DIRECTORY",
	TypeMakeSubject:       "MAKE_SUBJECT",
	TypeCD:                "CD",
	TypeGetCD:             "GET_CD",
	TypeMakeFilter:        "MAKE_FILTER",
	TypeDeleteFilter:      "DELETE_FILTER",
	TypeMakeLink:          "MAKE_LINK",
	TypeDeletePath:        "DELETE_PATH",
	TypeClearLinks:        "CLEAR_LINKS",
	TypeDeleteSubject:     "DELETE_SUBJECT",
}

func (t Type) String() string {
	if t >= typeCount {
		return "UNKNOWN"
	}
	return typeNames[t]
}

func (t Type) valid() bool { return t < typeCount }

// allowedClass[t] reports whether class c is a legal pairing for type t,
// per the (class, type) table in the wire-frame specification.
var allowedClass = [typeCount][2]bool{
	TypeHelloServer:       {Public: true},
	TypeHelloClient:       {Public: true},
	TypeDie:               {Public: true, Private: true},
	TypePullFile:          {Private: true},
	TypePushFile:          {Private: true},
	TypeXferFile:          {Private: true},
	TypeOkay:              {Private: true},
	TypeErrorServer:       {Public: true, Private: true},
	TypeAuthSubject:       {Public: true, Private: true},
	TypeConfirmAuth:       {Private: true},
	TypeRejectAuth:        {Public: true},
	TypeListSubjectClient: {Private: true},
	TypeListSubjectServer: {Private: true},
	TypeListObjectClient:  {Private: true},
	TypeListObjectServer:  {Private: true},
	TypeGiveTicketSubject: {Private: true},
	TypeTakeTicketSubject: {Private: true},
	TypeXferTicket:        {Private: true},
	TypeMakeDirectory:     {Private: true},
	TypeMakeSubject:       {Private: true},
	TypeCD:                {Private: true},
	TypeGetCD:             {Private: true},
	TypeMakeFilter:        {Private: true},
	TypeDeleteFilter:      {Private: true},
	TypeMakeLink:          {Private: true},
	TypeDeletePath:        {Private: true},
	TypeClearLinks:        {Private: true},
	TypeDeleteSubject:     {Private: true},
}

// Allowed reports whether (class, t) is a legal combination.
func Allowed(class Class, t Type) bool {
	if !t.valid() || (class != Public && class != Private) {
		return false
	}
	return allowedClass[t][class]
}

// Field widths shared by the fixed-layout message bodies. Kept together
// here so a single change updates every message that embeds the field.
const (
	SubjectWidth  = 64
	PasswordWidth = 64
	SaltWidth     = 32
	PathWidth     = 256
	TypeWidth     = 32
	TicketWidth   = 3

	subjectListLen = 31 // BodySize / SubjectWidth, rounded down
	objectListLen  = 7  // BodySize / PathWidth, rounded down
)
