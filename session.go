package ussh

import (
	"bytes"
	"io"
)

// Session wraps a "session" channel with the exec/shell/subsystem request
// vocabulary from RFC 4254 section 6, mirroring how x/crypto/ssh's Session
// type is commonly used but built on this package's own channel.
type Session struct {
	ch *channel

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	started    bool
	stdoutDone chan struct{}
}

// Setenv requests the peer set an environment variable for the session,
// RFC 4254 section 6.4. Most servers refuse this unless explicitly
// configured to allow it; a failure is not treated as fatal.
func (s *Session) Setenv(name, value string) error {
	payload := marshal(nil, name)
	payload = marshal(payload, value)
	_, err := s.ch.SendRequest("env", true, payload)
	return err
}

// RequestPty requests a pseudo terminal, RFC 4254 section 6.2.
func (s *Session) RequestPty(term string, rows, cols int) error {
	payload := marshal(nil, term)
	payload = marshal(payload, uint32(cols))
	payload = marshal(payload, uint32(rows))
	payload = marshal(payload, uint32(0))
	payload = marshal(payload, uint32(0))
	payload = marshal(payload, "")
	ok, err := s.ch.SendRequest("pty-req", true, payload)
	if nil != err {
		return err
	}
	if !ok {
		return newKexError("server refused pty-req")
	}
	return nil
}

// Run starts cmd via the "exec" request and blocks until the remote
// process exits, copying Stdin/Stdout/Stderr as configured.
func (s *Session) Run(cmd string) error {
	if err := s.Start(cmd); nil != err {
		return err
	}
	return s.Wait()
}

// Start issues the "exec" channel request and begins copying Stdin to the
// channel and the channel's data/extended-data to Stdout/Stderr, without
// waiting for the command to finish.
func (s *Session) Start(cmd string) error {
	payload := marshal(nil, cmd)
	ok, err := s.ch.SendRequest("exec", true, payload)
	if nil != err {
		return err
	}
	if !ok {
		return newKexError("server refused exec request")
	}
	s.started = true

	if nil != s.Stdin {
		go func() {
			io.Copy(s.ch, s.Stdin)
			s.ch.CloseWrite()
		}()
	}
	if nil != s.Stdout {
		s.stdoutDone = make(chan struct{})
		go func() {
			io.Copy(s.Stdout, s.ch)
			close(s.stdoutDone)
		}()
	}
	if nil != s.Stderr {
		go copyExtData(s.Stderr, s.ch)
	}
	return nil
}

// Shell requests an interactive shell on the session's pty, RFC 4254
// section 6.5.
func (s *Session) Shell() error {
	ok, err := s.ch.SendRequest("shell", true, nil)
	if nil != err {
		return err
	}
	if !ok {
		return newKexError("server refused shell request")
	}
	s.started = true
	return nil
}

// Output runs cmd and returns its stdout (extended data such as stderr is
// not included).
func (s *Session) Output(cmd string) ([]byte, error) {
	var buf bytes.Buffer
	s.Stdout = &buf
	err := s.Run(cmd)
	return buf.Bytes(), err
}

// Wait blocks until the remote command exits (exit-status or exit-signal
// channel request, or the channel simply closing) and, when Stdout is set,
// until all of the channel's data has been copied to it. It returns a
// *ExitError if the command's status was non-zero or it was killed by a
// signal.
func (s *Session) Wait() (err error) {
loop:
	for req := range s.ch.Requests() {
		switch req.Request {
		case "exit-status":
			status, _ := unmarshalUint32(req.RequestSpecificData)
			if 0 != status {
				err = &ExitError{Status: int(status)}
			}
			break loop
		case "exit-signal":
			var m exitSignalMsg
			decode(req.RequestSpecificData, &m)
			err = &ExitError{Signal: m.Signal, CoreDumped: m.CoreDumped, Message: m.Message}
			break loop
		}
	}
	if nil != s.stdoutDone {
		<-s.stdoutDone
	}
	return
}

// ParseExecRequest decodes the payload of an "exec" channel request, RFC
// 4254 section 6.5 - the command line to run.
func ParseExecRequest(data []byte) (cmd string) {
	cmd, _ = unmarshalString(data)
	return
}

// ParseSubsystemRequest decodes the payload of a "subsystem" channel
// request, RFC 4254 section 6.5 - the subsystem name (e.g. "sftp").
func ParseSubsystemRequest(data []byte) (name string) {
	name, _ = unmarshalString(data)
	return
}

// ExitStatusPayload builds the payload for an "exit-status" channel
// request, RFC 4254 section 6.10.
func ExitStatusPayload(status uint32) []byte {
	return marshal(nil, status)
}

// ExitError reports how a remote command via Session.Run exited.
type ExitError struct {
	Status     int
	Signal     string
	CoreDumped bool
	Message    string
}

func (e *ExitError) Error() string {
	if 0 != len(e.Signal) {
		return "ussh: remote process killed by signal " + e.Signal
	}
	return "ussh: remote process exited with nonzero status"
}

// RequestSubsystem starts a named subsystem (e.g. "sftp"), RFC 4254
// section 6.5, and returns an io.ReadWriteCloser plumbed directly to the channel
// for use as the transport of a nested protocol such as SFTP.
func (s *Session) RequestSubsystem(name string) (io.ReadWriteCloser, error) {
	payload := marshal(nil, name)
	ok, err := s.ch.SendRequest("subsystem", true, payload)
	if nil != err {
		return nil, err
	}
	if !ok {
		return nil, newKexError("server refused subsystem %q", name)
	}
	return channelReadWriteCloser{s.ch}, nil
}

func (s *Session) Close() error {
	return s.ch.Close()
}

func copyExtData(w io.Writer, ch *channel) {
	for data := range ch.Stderr() {
		w.Write(data)
	}
}

type channelReadWriteCloser struct {
	*channel
}
