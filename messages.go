package ussh

// SSH message type bytes. RFC 4253 (transport), RFC 4252 (userauth),
// RFC 4254 (connection).
const (
	msgDisconnect     = uint8(1)
	msgIgnore         = uint8(2)
	msgUnimplemented  = uint8(3)
	msgDebug          = uint8(4)
	msgServiceRequest = uint8(5)
	msgServiceAccept  = uint8(6)

	msgKexInit = uint8(20)
	msgNewKeys = uint8(21)

	msgKexDHInit  = uint8(30)
	msgKexDHReply = uint8(31)

	msgUserAuthRequest    = uint8(50)
	msgUserAuthFailure    = uint8(51)
	msgUserAuthSuccess    = uint8(52)
	msgUserAuthBanner     = uint8(53)
	msgUserAuthPubKeyOk   = uint8(60)

	msgGlobalRequest  = uint8(80)
	msgRequestSuccess = uint8(81)
	msgRequestFailure = uint8(82)

	msgChannelOpen         = uint8(90)
	msgChannelOpenConfirm  = uint8(91)
	msgChannelOpenFailure  = uint8(92)
	msgChannelWindowAdjust = uint8(93)
	msgChannelData         = uint8(94)
	msgChannelExtendedData = uint8(95)
	msgChannelEOF          = uint8(96)
	msgChannelClose        = uint8(97)
	msgChannelRequest      = uint8(98)
	msgChannelSuccess      = uint8(99)
	msgChannelFailure      = uint8(100)
)

// RFC 4253 section 7.1
type kexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

// RFC 4253 section 8
type kexDHInitMsg struct {
	X []byte // client's DH public value e, raw big-endian bytes without mpint sign-byte normalization
}

type kexDHReplyMsg struct {
	HostKey   []byte
	Y         []byte // server's DH public value f
	Signature []byte
}

type newKeysMsg struct{}

type disconnectMsg struct {
	Reason   uint32
	Message  string
	Language string
}

type serviceRequestMsg struct {
	Service string
}

type serviceAcceptMsg struct {
	Service string
}

// RFC 4252 section 5
type userAuthRequestMsg struct {
	User    string
	Service string
	Method  string
	// Payload holds the method specific fields, already marshaled; each
	// auth method in auth.go knows how to build and parse its own.
	Payload []byte `ssh:"rest"`
}

type userAuthFailureMsg struct {
	Methods       []string
	PartialSuccess bool
}

type userAuthSuccessMsg struct{}

type userAuthBannerMsg struct {
	Message  string
	Language string
}

type userAuthPubKeyOkMsg struct {
	Algo   string
	PubKey []byte
}

// RFC 4254 section 4
type globalRequestMsg struct {
	Type      string
	WantReply bool
	Data      []byte `ssh:"rest"`
}

type globalRequestSuccessMsg struct {
	Data []byte `ssh:"rest"`
}

type globalRequestFailureMsg struct{}

// RFC 4254 section 5.1
type channelOpenMsg struct {
	ChanType         string
	PeersID          uint32
	PeersWindow      uint32
	MaxPacketSize    uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenConfirmMsg struct {
	PeersID       uint32
	MyID          uint32
	MyWindow      uint32
	MaxPacketSize uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenFailureMsg struct {
	PeersID  uint32
	Reason   uint32
	Message  string
	Language string
}

type channelWindowAdjustMsg struct {
	PeersID         uint32
	AdditionalBytes uint32
}

type channelDataMsg struct {
	PeersID uint32
	Length  uint32
	Rest    []byte `ssh:"rest"`
}

type channelEOFMsg struct {
	PeersID uint32
}

type channelCloseMsg struct {
	PeersID uint32
}

type channelRequestMsg struct {
	PeersID   uint32
	Request   string
	WantReply bool
	RequestSpecificData []byte `ssh:"rest"`
}

type channelRequestSuccessMsg struct {
	PeersID uint32
}

type channelRequestFailureMsg struct {
	PeersID uint32
}

// direct-tcpip / forwarded-tcpip channel open data, RFC 4254 section 7.2
type channelOpenDirectMsg struct {
	DestAddr string
	DestPort uint32
	OrigAddr string
	OrigPort uint32
}

type channelOpenForwardedMsg struct {
	Addr     string
	Port     uint32
	OrigAddr string
	OrigPort uint32
}

// tcpip-forward global request data, RFC 4254 section 7.1
type tcpipForwardMsg struct {
	Addr string
	Port uint32
}

type tcpipForwardReplyMsg struct {
	Port uint32
}

// pty-req / exec / shell / exit-status channel request payloads,
// RFC 4254 section 6
type ptyReqMsg struct {
	Term     string
	Columns  uint32
	Rows     uint32
	Width    uint32
	Height   uint32
	Modes    string
}

type execMsg struct {
	Command string
}

type exitStatusMsg struct {
	Status uint32
}

type exitSignalMsg struct {
	Signal       string
	CoreDumped   bool
	Message      string
	Language     string
}
