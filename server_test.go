package ussh

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testServerConfig(t *testing.T, signer Signer) *ServerConfig {
	return &ServerConfig{
		HostSigners: []Signer{signer},
		PasswordCallback: func(user, password string) error {
			if user == "alice" && password == "secret" {
				return nil
			}
			return errors.New("denied")
		},
	}
}

// handshakeOverPipe runs NewServerConn and NewClientConn on the two ends
// of a net.Pipe concurrently and returns both once they agree, the same
// way a real dial would, minus the TCP round trip.
func handshakeOverPipe(t *testing.T, scfg *ServerConfig, ccfg *ClientConfig) (*Connection, *Client) {
	t.Helper()
	serverNC, clientNC := net.Pipe()

	type serverResult struct {
		conn *Connection
		err  error
	}
	done := make(chan serverResult, 1)
	go func() {
		conn, err := NewServerConn(serverNC, scfg)
		done <- serverResult{conn, err}
	}()

	client, err := NewClientConn(clientNC, "pipe", ccfg)
	require.NoError(t, err)

	res := <-done
	require.NoError(t, res.err)
	return res.conn, client
}

func TestNewServerConnPasswordAuth(t *testing.T) {
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)

	scfg := testServerConfig(t, signer)
	ccfg := &ClientConfig{
		User:            "alice",
		Auth:            []AuthMethod{Password("secret")},
		HostKeyCallback: InsecureIgnoreHostKey(),
	}

	conn, client := handshakeOverPipe(t, scfg, ccfg)
	defer conn.Close()
	defer client.Close()

	require.NotEmpty(t, conn.sessionID)
}

func TestNewServerConnPasswordAuthRejected(t *testing.T) {
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)

	scfg := testServerConfig(t, signer)
	ccfg := &ClientConfig{
		User:            "alice",
		Auth:            []AuthMethod{Password("wrong")},
		HostKeyCallback: InsecureIgnoreHostKey(),
	}

	serverNC, clientNC := net.Pipe()
	serverErr := make(chan error, 1)
	go func() {
		_, err := NewServerConn(serverNC, scfg)
		serverErr <- err
	}()

	_, err = NewClientConn(clientNC, "pipe", ccfg)
	require.Error(t, err)
	require.Error(t, <-serverErr)
}

func TestNewServerConnPublicKeyAuth(t *testing.T) {
	hostSigner, err := GenerateEd25519Signer()
	require.NoError(t, err)
	userSigner, err := GenerateEd25519Signer()
	require.NoError(t, err)

	scfg := &ServerConfig{
		HostSigners: []Signer{hostSigner},
		PublicKeyCallback: func(user string, key PublicKey) error {
			if user == "alice" && key.Type() == userSigner.PublicKey().Type() {
				return nil
			}
			return errors.New("denied")
		},
	}
	ccfg := &ClientConfig{
		User:            "alice",
		Auth:            []AuthMethod{PublicKeys(userSigner)},
		HostKeyCallback: InsecureIgnoreHostKey(),
	}

	conn, client := handshakeOverPipe(t, scfg, ccfg)
	defer conn.Close()
	defer client.Close()
}

func TestNewServerConnNoHostKeyForNegotiatedAlgo(t *testing.T) {
	// the only host signer reports an algorithm name neither KEXINIT
	// offers, so once negotiation settles on ssh-ed25519 the signerFor
	// lookup finds no host key and the handshake should fail rather than
	// hang.
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)
	scfg := &ServerConfig{HostSigners: []Signer{signer}}
	scfg.HostSigners[0] = stubWrongAlgoSigner{signer}

	ccfg := &ClientConfig{
		User:            "alice",
		Auth:            []AuthMethod{Password("secret")},
		HostKeyCallback: InsecureIgnoreHostKey(),
	}

	serverNC, clientNC := net.Pipe()
	serverErr := make(chan error, 1)
	go func() {
		_, err := NewServerConn(serverNC, scfg)
		serverErr <- err
	}()

	_, err = NewClientConn(clientNC, "pipe", ccfg)
	require.Error(t, err)
	require.Error(t, <-serverErr)
}

// stubWrongAlgoSigner reports a bogus algorithm name so signerFor never
// finds a match, without needing a second real key type wired up.
type stubWrongAlgoSigner struct{ Signer }

func (s stubWrongAlgoSigner) PublicKey() PublicKey {
	return stubWrongAlgoPublicKey{s.Signer.PublicKey()}
}

type stubWrongAlgoPublicKey struct{ PublicKey }

func (stubWrongAlgoPublicKey) Type() string { return "ssh-nonexistent" }

func TestSessionExecEndToEnd(t *testing.T) {
	hostSigner, err := GenerateEd25519Signer()
	require.NoError(t, err)

	scfg := testServerConfig(t, hostSigner)
	ccfg := &ClientConfig{
		User:            "alice",
		Auth:            []AuthMethod{Password("secret")},
		HostKeyCallback: InsecureIgnoreHostKey(),
	}

	conn, client := handshakeOverPipe(t, scfg, ccfg)
	defer client.Close()

	go func() {
		chanType, _, localID, ok := conn.Accept()
		if !ok {
			return
		}
		if chanType != "session" {
			conn.RejectChannel(localID, 3, "unsupported")
			return
		}
		ch, err := conn.AcceptChannel(localID)
		if nil != err {
			return
		}
		for req := range ch.Requests() {
			if req.Request == "exec" {
				cmd := ParseExecRequest(req.RequestSpecificData)
				io.WriteString(ch, "ran: "+cmd)
				ch.SendRequest("exit-status", false, ExitStatusPayload(0))
				ch.Close()
				return
			}
		}
	}()

	sess, err := client.NewSession()
	require.NoError(t, err)
	out, err := sess.Output("echo hi")
	require.NoError(t, err)
	require.Equal(t, "ran: echo hi", string(out))
}
