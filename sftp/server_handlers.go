package sftp

import (
	"io"
	"os"
	"path"
)

// dispatch routes one decoded request to its handler. payload has already
// had the message type byte and request id stripped by readRequest.
func (s *Server) dispatch(id uint32, typ uint8, payload []byte) error {
	switch typ {
	case sshFxpOpen:
		return s.handleOpen(id, payload)
	case sshFxpClose:
		return s.handleClose(id, payload)
	case sshFxpRead:
		return s.handleRead(id, payload)
	case sshFxpWrite:
		return s.handleWrite(id, payload)
	case sshFxpLstat:
		return s.handleStat(id, payload, true)
	case sshFxpStat:
		return s.handleStat(id, payload, false)
	case sshFxpFstat:
		return s.handleFstat(id, payload)
	case sshFxpSetstat:
		return s.handleSetstat(id, payload)
	case sshFxpFsetstat:
		return s.handleFsetstat(id, payload)
	case sshFxpOpendir:
		return s.handleOpendir(id, payload)
	case sshFxpReaddir:
		return s.handleReaddir(id, payload)
	case sshFxpRemove:
		return s.handleRemove(id, payload)
	case sshFxpMkdir:
		return s.handleMkdir(id, payload)
	case sshFxpRmdir:
		return s.handleRmdir(id, payload)
	case sshFxpRealpath:
		return s.handleRealpath(id, payload)
	case sshFxpRename:
		return s.handleRename(id, payload)
	case sshFxpSymlink:
		return s.handleSymlink(id, payload)
	case sshFxpReadlink:
		return s.handleReadlink(id, payload)
	default:
		return s.sendStatus(id, sshFxOPUnsupported, fxCodeName(sshFxOPUnsupported))
	}
}

func unmarshalBytes(b []byte) ([]byte, []byte) {
	n, b := unmarshalUint32(b)
	return b[:n], b[n:]
}

func (s *Server) handleOpen(id uint32, payload []byte) error {
	name, rest, err := unmarshalStringSafe(payload)
	if nil != err {
		return err
	}
	pflags, rest, err := unmarshalUint32Safe(rest)
	if nil != err {
		return err
	}
	_ = rest // attrs, ignored on create - most servers apply umask instead

	flags := fromPflags(pflags)
	f, err := s.handler.OpenFile(name, flags, 0644)
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	handle := s.newHandle(&serverHandle{file: f, name: name})
	return s.sendHandle(id, handle)
}

func (s *Server) handleClose(id uint32, payload []byte) error {
	handle, _ := unmarshalString(payload)
	h, ok := s.getHandle(handle)
	if !ok {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	s.dropHandle(handle)
	if nil != h.file {
		h.file.Close()
	}
	return s.sendOK(id)
}

func (s *Server) handleRead(id uint32, payload []byte) error {
	handle, rest := unmarshalString(payload)
	offset, rest := unmarshalUint64(rest)
	length, _ := unmarshalUint32(rest)

	h, ok := s.getHandle(handle)
	if !ok || nil == h.file {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	buf := make([]byte, length)
	n, err := h.file.ReadAt(buf, int64(offset))
	if n > 0 {
		return s.sendData(id, buf[:n])
	}
	if io.EOF == err {
		return s.sendStatus(id, sshFxEOF, "")
	}
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendStatus(id, sshFxEOF, "")
}

func (s *Server) handleWrite(id uint32, payload []byte) error {
	handle, rest := unmarshalString(payload)
	offset, rest := unmarshalUint64(rest)
	data, _ := unmarshalBytes(rest)

	h, ok := s.getHandle(handle)
	if !ok || nil == h.file {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	if _, err := h.file.WriteAt(data, int64(offset)); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleStat(id uint32, payload []byte, lstat bool) error {
	name, _ := unmarshalString(payload)
	var fi os.FileInfo
	var err error
	if lstat {
		fi, err = s.handler.Lstat(name)
	} else {
		fi, err = s.handler.Stat(name)
	}
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendAttrs(id, fi)
}

func (s *Server) handleFstat(id uint32, payload []byte) error {
	handle, _ := unmarshalString(payload)
	h, ok := s.getHandle(handle)
	if !ok || nil == h.file {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	fi, err := h.file.Stat()
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendAttrs(id, fi)
}

func (s *Server) handleSetstat(id uint32, payload []byte) error {
	name, rest := unmarshalString(payload)
	flags, rest := unmarshalUint32(rest)
	attrs, _, err := unmarshalFileStat(flags, rest)
	if nil != err {
		return err
	}
	if err := s.handler.Setstat(name, flags, attrs); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleFsetstat(id uint32, payload []byte) error {
	handle, rest := unmarshalString(payload)
	flags, rest := unmarshalUint32(rest)
	attrs, _, err := unmarshalFileStat(flags, rest)
	if nil != err {
		return err
	}
	h, ok := s.getHandle(handle)
	if !ok || nil == h.file {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	if err := s.handler.Setstat(h.name, flags, attrs); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleOpendir(id uint32, payload []byte) error {
	name, _ := unmarshalString(payload)
	entries, err := s.handler.ReadDir(name)
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	handle := s.newHandle(&serverHandle{isDir: true, name: name, entries: entries})
	return s.sendHandle(id, handle)
}

func (s *Server) handleReaddir(id uint32, payload []byte) error {
	handle, _ := unmarshalString(payload)
	h, ok := s.getHandle(handle)
	if !ok || !h.isDir {
		return s.sendStatus(id, sshFxFailure, "invalid handle")
	}
	if h.offset >= len(h.entries) {
		return s.sendStatus(id, sshFxEOF, "")
	}
	// one entry per READDIR reply, per the directory snapshot taken at
	// opendir time.
	fi := h.entries[h.offset]
	h.offset++

	return s.sendNames(id, []string{fi.Name()}, []os.FileInfo{fi})
}

func (s *Server) handleRemove(id uint32, payload []byte) error {
	name, _ := unmarshalString(payload)
	if err := s.handler.Remove(name); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleMkdir(id uint32, payload []byte) error {
	name, rest := unmarshalString(payload)
	flags, rest := unmarshalUint32(rest)
	attrs, _, err := unmarshalFileStat(flags, rest)
	if nil != err {
		return err
	}
	perm := os.FileMode(0755)
	if flags&sshFileXferAttrPermissions != 0 {
		perm = attrs.OsFileMode()
	}
	if err := s.handler.Mkdir(name, perm); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleRmdir(id uint32, payload []byte) error {
	name, _ := unmarshalString(payload)
	if err := s.handler.Rmdir(name); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

// cleanRequestPath resolves "." and ".." components in an SFTP request path
// without touching the filesystem, matching the behavior OpenSSH's
// sftp-server provides and draft-02 assumes but does not itself specify an
// algorithm for.
func cleanRequestPath(name string) string {
	return path.Clean(name)
}

func (s *Server) handleRealpath(id uint32, payload []byte) error {
	name, _ := unmarshalString(payload)
	name = cleanRequestPath(name)
	resolved, err := s.handler.Realpath(name)
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	fi, statErr := s.handler.Stat(resolved)
	if nil != statErr {
		fi = syntheticDirInfo(resolved)
	}
	return s.sendNames(id, []string{resolved}, []os.FileInfo{fi})
}

func (s *Server) handleRename(id uint32, payload []byte) error {
	oldName, rest := unmarshalString(payload)
	newName, _ := unmarshalString(rest)
	if err := s.handler.Rename(oldName, newName); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleSymlink(id uint32, payload []byte) error {
	// wire order is targetpath then linkpath, the OpenSSH order that this
	// package's own client (sshFxpSymlinkPacket) also sends.
	targetPath, rest := unmarshalString(payload)
	linkPath, _ := unmarshalString(rest)
	if err := s.handler.Symlink(targetPath, linkPath); nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	return s.sendOK(id)
}

func (s *Server) handleReadlink(id uint32, payload []byte) error {
	name, _ := unmarshalString(payload)
	target, err := s.handler.Readlink(name)
	if nil != err {
		return s.sendStatus(id, statusForErr(err), err.Error())
	}
	fi := syntheticDirInfo(target)
	return s.sendNames(id, []string{target}, []os.FileInfo{fi})
}

func fromPflags(p uint32) (flags int) {
	switch {
	case p&sshFxfRead != 0 && p&sshFxfWrite != 0:
		flags = os.O_RDWR
	case p&sshFxfWrite != 0:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if p&sshFxfAppend != 0 {
		flags |= os.O_APPEND
	}
	if p&sshFxfCreat != 0 {
		flags |= os.O_CREATE
	}
	if p&sshFxfTrunc != 0 {
		flags |= os.O_TRUNC
	}
	if p&sshFxfExcl != 0 {
		flags |= os.O_EXCL
	}
	return
}

func statusForErr(err error) uint32 {
	switch {
	case os.IsNotExist(err):
		return sshFxNoSuchFile
	case os.IsPermission(err):
		return sshFxPermissionDenied
	default:
		return sshFxFailure
	}
}

func syntheticDirInfo(name string) os.FileInfo {
	return FileInfoFromStat(&FileStat{Mode: uint32(ModeDir | 0755)}, name)
}
