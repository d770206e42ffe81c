package sftp

import (
	"io"
	"os"
	"path"
	"sync"

	"github.com/tredeske/ussh/ulog"
)

// Handler is implemented by whatever backs a Server's file namespace.
// A minimal delegate need only support the real filesystem (os.*), but
// the interface lets callers substitute a virtual or chrooted namespace.
type Handler interface {
	OpenFile(name string, flags int, perm os.FileMode) (*os.File, error)
	Stat(name string) (os.FileInfo, error)
	Lstat(name string) (os.FileInfo, error)
	Mkdir(name string, perm os.FileMode) error
	Remove(name string) error
	Rmdir(name string) error
	Rename(oldName, newName string) error
	Symlink(target, name string) error
	Readlink(name string) (string, error)
	ReadDir(name string) ([]os.FileInfo, error)
	Realpath(name string) (string, error)
	Setstat(name string, flags uint32, attrs *FileStat) error
}

// OsHandler backs a Server with the real local filesystem, rooted at Root
// (empty means no chrooting - paths are used as given).
type OsHandler struct {
	Root string
}

func (h *OsHandler) resolve(name string) string {
	if 0 == len(h.Root) {
		return name
	}
	return path.Join(h.Root, name)
}

func (h *OsHandler) OpenFile(name string, flags int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(h.resolve(name), flags, perm)
}
func (h *OsHandler) Stat(name string) (os.FileInfo, error)  { return os.Stat(h.resolve(name)) }
func (h *OsHandler) Lstat(name string) (os.FileInfo, error) { return os.Lstat(h.resolve(name)) }
func (h *OsHandler) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(h.resolve(name), perm)
}
func (h *OsHandler) Remove(name string) error { return os.Remove(h.resolve(name)) }
func (h *OsHandler) Rmdir(name string) error  { return os.Remove(h.resolve(name)) }
func (h *OsHandler) Rename(oldName, newName string) error {
	return os.Rename(h.resolve(oldName), h.resolve(newName))
}
func (h *OsHandler) Symlink(target, name string) error {
	return os.Symlink(target, h.resolve(name))
}
func (h *OsHandler) Readlink(name string) (string, error) {
	return os.Readlink(h.resolve(name))
}
func (h *OsHandler) ReadDir(name string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(h.resolve(name))
	if nil != err {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if nil != err {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Realpath resolves name to an absolute path rooted at the handler, without
// requiring the target to exist. "." and ".." components are cleaned by the
// dispatcher before this is called.
func (h *OsHandler) Realpath(name string) (string, error) {
	if !path.IsAbs(name) {
		if 0 != len(h.Root) {
			return path.Join("/", name), nil
		}
		wd, err := os.Getwd()
		if nil != err {
			return "", err
		}
		name = path.Join(wd, name)
	}
	return name, nil
}

func (h *OsHandler) Setstat(name string, flags uint32, attrs *FileStat) error {
	full := h.resolve(name)
	if flags&sshFileXferAttrSize != 0 {
		if err := os.Truncate(full, int64(attrs.Size)); nil != err {
			return err
		}
	}
	if flags&sshFileXferAttrPermissions != 0 {
		if err := os.Chmod(full, attrs.OsFileMode()); nil != err {
			return err
		}
	}
	if flags&sshFileXferAttrACmodTime != 0 {
		if err := os.Chtimes(full, attrs.AccessTime(), attrs.ModTime()); nil != err {
			return err
		}
	}
	return nil
}

// Server answers SFTPv3 requests read from rd, writing responses to wr,
// per draft-ietf-secsh-filexfer-02. One Server serves one logical
// connection (typically one "sftp" subsystem channel); requests are
// processed one at a time in arrival order, matching the client engine's
// own single in-flight-per-id discipline in conn.go.
type Server struct {
	rd io.Reader
	wr io.Writer

	handler Handler

	mu      sync.Mutex
	handles map[string]*serverHandle
	nextH   uint64

	maxPacket int
}

type serverHandle struct {
	isDir   bool
	name    string // name as given by the client, before resolve()
	file    *os.File
	entries []os.FileInfo
	offset  int
}

// NewServer wraps rd/wr (typically the two halves of a "sftp" subsystem
// channel accepted server side) to serve handler's namespace.
func NewServer(rd io.Reader, wr io.Writer, handler Handler) *Server {
	return &Server{
		rd:        rd,
		wr:        wr,
		handler:   handler,
		handles:   map[string]*serverHandle{},
		maxPacket: 1 << 15,
	}
}

// Serve reads SSH_FXP_INIT, replies SSH_FXP_VERSION, then loops handling
// requests until the transport closes or encounters a fatal framing error.
func (s *Server) Serve() error {
	if err := s.handshake(); nil != err {
		return err
	}
	for {
		id, typ, payload, err := s.readRequest()
		if nil != err {
			if io.EOF == err {
				return nil
			}
			return err
		}
		if err = s.dispatch(id, typ, payload); nil != err {
			ulog.Debugf("sftp server: request %d type %d: %s", id, typ, err)
		}
	}
}

func (s *Server) handshake() error {
	header := make([]byte, 9)
	if _, err := io.ReadFull(s.rd, header); nil != err {
		return err
	}
	length := bigEnd_.Uint32(header[:4])
	if header[4] != sshFxpInit {
		return newUnknownMessage(header[4], sshFxpInit)
	}
	if length > 5 {
		skip := make([]byte, length-5)
		io.ReadFull(s.rd, skip)
	}

	reply := marshal([]byte{sshFxpVersion}, uint32(3))
	return s.writePacket(reply)
}

func (s *Server) readRequest() (id uint32, typ uint8, payload []byte, err error) {
	header := make([]byte, 4)
	if _, err = io.ReadFull(s.rd, header); nil != err {
		return
	}
	length := bigEnd_.Uint32(header)
	if length < 5 {
		err = newShortPacket(5, int(length))
		return
	} else if length > uint32(s.maxPacket)+64 {
		err = newMaxPacket(length, uint32(s.maxPacket)+64)
		return
	}
	body := make([]byte, length)
	if _, err = io.ReadFull(s.rd, body); nil != err {
		return
	}
	typ = body[0]
	id, rest := unmarshalUint32(body[1:])
	payload = rest
	return
}

func (s *Server) writePacket(payload []byte) error {
	var lenBuf [4]byte
	bigEnd_.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := s.wr.Write(lenBuf[:]); nil != err {
		return err
	}
	_, err := s.wr.Write(payload)
	return err
}

func (s *Server) sendStatus(id uint32, code uint32, msg string) error {
	b := marshal([]byte{sshFxpStatus}, id)
	b = marshal(b, code)
	b = marshal(b, msg)
	b = marshal(b, "en")
	return s.writePacket(b)
}

func (s *Server) sendOK(id uint32) error { return s.sendStatus(id, sshFxOk, "") }

func (s *Server) sendHandle(id uint32, handle string) error {
	b := marshal([]byte{sshFxpHandle}, id)
	b = marshal(b, handle)
	return s.writePacket(b)
}

func (s *Server) sendData(id uint32, data []byte) error {
	b := marshal([]byte{sshFxpData}, id)
	b = marshal(b, data)
	return s.writePacket(b)
}

func (s *Server) sendAttrs(id uint32, fi os.FileInfo) error {
	b := marshal([]byte{sshFxpAttrs}, id)
	b = marshalFileInfo(b, fi)
	return s.writePacket(b)
}

func (s *Server) sendNames(id uint32, names []string, infos []os.FileInfo) error {
	b := marshal([]byte{sshFxpName}, id)
	b = marshal(b, uint32(len(names)))
	for i, n := range names {
		b = marshal(b, n)
		b = marshal(b, n) // longname: SFTPv3 has no canonical ls -l format, reuse name
		b = marshalFileInfo(b, infos[i])
	}
	return s.writePacket(b)
}

func (s *Server) newHandle(h *serverHandle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextH++
	handle := itoa(s.nextH)
	s.handles[handle] = h
	return handle
}

func (s *Server) getHandle(handle string) (*serverHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[handle]
	return h, ok
}

func (s *Server) dropHandle(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, handle)
}

func itoa(n uint64) string {
	if 0 == n {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
