package sftp

// SFTP protocol version 3 (draft-ietf-secsh-filexfer-02) message types and
// status codes. These are wire constants, not behavior, and never change.

const (
	sshFxpInit          = uint8(1)
	sshFxpVersion       = uint8(2)
	sshFxpOpen          = uint8(3)
	sshFxpClose         = uint8(4)
	sshFxpRead          = uint8(5)
	sshFxpWrite         = uint8(6)
	sshFxpLstat         = uint8(7)
	sshFxpFstat         = uint8(8)
	sshFxpSetstat       = uint8(9)
	sshFxpFsetstat      = uint8(10)
	sshFxpOpendir       = uint8(11)
	sshFxpReaddir       = uint8(12)
	sshFxpRemove        = uint8(13)
	sshFxpMkdir         = uint8(14)
	sshFxpRmdir         = uint8(15)
	sshFxpRealpath      = uint8(16)
	sshFxpStat          = uint8(17)
	sshFxpRename        = uint8(18)
	sshFxpReadlink      = uint8(19)
	sshFxpSymlink       = uint8(20)
	sshFxpStatus        = uint8(101)
	sshFxpHandle        = uint8(102)
	sshFxpData          = uint8(103)
	sshFxpName          = uint8(104)
	sshFxpAttrs         = uint8(105)
	sshFxpExtended      = uint8(200)
	sshFxpExtendedReply = uint8(201)
)

// SSH_FXP_OPEN pflags
const (
	sshFxfRead   = uint32(0x00000001)
	sshFxfWrite  = uint32(0x00000002)
	sshFxfAppend = uint32(0x00000004)
	sshFxfCreat  = uint32(0x00000008)
	sshFxfTrunc  = uint32(0x00000010)
	sshFxfExcl   = uint32(0x00000020)
)

// SSH_FXP_STATUS codes
const (
	sshFxOk               = uint32(0)
	sshFxEOF              = uint32(1)
	sshFxNoSuchFile       = uint32(2)
	sshFxPermissionDenied = uint32(3)
	sshFxFailure          = uint32(4)
	sshFxBadMessage       = uint32(5)
	sshFxNoConnection     = uint32(6)
	sshFxConnectionLost   = uint32(7)
	sshFxOPUnsupported    = uint32(8)

	// not part of draft-ietf-secsh-filexfer-02, but sent by OpenSSH's
	// sftp-server (borrowed from the later v5/v6 drafts) when REMOVE is
	// used against a directory. Recognized defensively on responses,
	// never sent.
	sshFxFileIsADirectory = uint32(11)
)

func fxCodeName(code uint32) string {
	switch code {
	case sshFxOk:
		return "ok"
	case sshFxEOF:
		return "eof"
	case sshFxNoSuchFile:
		return "no such file"
	case sshFxPermissionDenied:
		return "permission denied"
	case sshFxBadMessage:
		return "bad message"
	case sshFxNoConnection:
		return "no connection"
	case sshFxConnectionLost:
		return "connection lost"
	case sshFxOPUnsupported:
		return "operation unsupported"
	default:
		return "failure"
	}
}
