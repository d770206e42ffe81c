package sftp

import (
	"github.com/tredeske/ussh/uerr"
)

// StatusError is returned whenever a server responds with SSH_FXP_STATUS
// and the code is not SSH_FX_OK, SSH_FX_EOF, SSH_FX_NO_SUCH_FILE or
// SSH_FX_PERMISSION_DENIED (the client translates those three to io.EOF,
// os.ErrNotExist and os.ErrPermission instead of a StatusError).
type StatusError struct {
	Code uint32
	msg  string
	lang string
}

func (e *StatusError) Error() string {
	if 0 == len(e.msg) {
		return fxCodeName(e.Code)
	}
	return e.msg
}

// Is lets errors.Is(err, sftp.ErrNoSuchFile) work against a raw StatusError
// as well as against another *StatusError with the same code.
func (e *StatusError) Is(target error) bool {
	if t, ok := target.(*StatusError); ok {
		return t.Code == e.Code
	}
	return false
}

func (e *StatusError) FxCode() uint32 {
	return e.Code
}

var (
	ErrNoSuchFile       = &StatusError{Code: sshFxNoSuchFile}
	ErrPermissionDenied = &StatusError{Code: sshFxPermissionDenied}
	ErrFailure          = &StatusError{Code: sshFxFailure}
)

// UnknownMessageError indicates a packet carried a message type byte this
// implementation does not recognize.
type UnknownMessageError struct {
	uerr.UError
}

func newUnknownMessage(got, want uint8) error {
	return uerr.Cast(&UnknownMessageError{},
		"unexpected message type: got %d, wanted %d", got, want)
}

// UnexpectedCountError indicates a packet's declared element count did not
// match what the remaining payload could support.
type UnexpectedCountError struct {
	uerr.UError
}

func newUnexpectedCount(want, got uint32) error {
	return uerr.Cast(&UnexpectedCountError{},
		"unexpected count: got %d, wanted %d", got, want)
}

// ConnectionClosedError indicates the underlying transport was closed while
// a request was still outstanding.
type ConnectionClosedError struct {
	uerr.UError
}

func newConnectionClosed(cause error) error {
	return uerr.Recast(&ConnectionClosedError{}, cause, "sftp connection closed")
}

// FileHandleInvalidError indicates an operation was attempted against a
// handle the client (or server) no longer considers open.
type FileHandleInvalidError struct {
	uerr.UError
}

func newFileHandleInvalid(handle string) error {
	return uerr.Cast(&FileHandleInvalidError{}, "invalid file handle %q", handle)
}

// UnsupportedVersionError indicates the server's SSH_FXP_VERSION response
// was for a protocol version this implementation cannot speak.
type UnsupportedVersionError struct {
	uerr.UError
}

func newUnsupportedVersion(got uint32) error {
	return uerr.Cast(&UnsupportedVersionError{},
		"unsupported sftp version: %d, only version 3 is supported", got)
}

// ShortPacketError indicates a packet was too short to contain its declared
// fields - almost always a framing bug or a hostile peer.
type ShortPacketError struct {
	uerr.UError
}

func newShortPacket(need, got int) error {
	return uerr.Cast(&ShortPacketError{},
		"short packet: need %d bytes, have %d", need, got)
}

// maxPacketError indicates a packet declared a length larger than this
// implementation is willing to allocate for.
type maxPacketError struct {
	uerr.UError
}

func newMaxPacket(length, max uint32) error {
	return uerr.Cast(&maxPacketError{},
		"packet length %d exceeds max %d", length, max)
}
