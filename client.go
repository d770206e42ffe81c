package ussh

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/tredeske/ussh/ulog"
)

const clientVersionString = "SSH-2.0-ussh_1.0"

// HostKeyCallback is invoked once per connection with the marshaled host
// key presented during key exchange. Returning an error aborts the
// handshake.
type HostKeyCallback func(hostname string, key PublicKey) error

// InsecureIgnoreHostKey accepts any host key. Intended for test fixtures
// and throwaway demo sessions only.
func InsecureIgnoreHostKey() HostKeyCallback {
	return func(string, PublicKey) error { return nil }
}

// ClientConfig gathers everything Dial needs to complete a handshake.
type ClientConfig struct {
	User            string
	Auth            []AuthMethod
	HostKeyCallback HostKeyCallback
	Crypto          CryptoConfig
	Timeout         time.Duration
}

// Client is an authenticated SSH connection, ready to open sessions and
// direct-tcpip channels.
type Client struct {
	conn *Connection
	cfg  *ClientConfig
	tag  string
}

var tagGen = NewTagBuilder()

// Dial connects to addr over TCP, completes the transport and key
// exchange handshake, then authenticates per cfg. network is typically
// "tcp".
func Dial(network, addr string, cfg *ClientConfig) (*Client, error) {
	nc, err := net.DialTimeout(network, addr, dialTimeout(cfg))
	if nil != err {
		return nil, err
	}
	return NewClientConn(nc, addr, cfg)
}

func dialTimeout(cfg *ClientConfig) time.Duration {
	if nil != cfg && cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 15 * time.Second
}

// Hop names one leg of a DialChain: the address to reach and the config
// to authenticate with once there.
type Hop struct {
	Network string // "tcp" if empty
	Addr    string
	Config  *ClientConfig
}

// DialChain connects through a series of jump hosts, opening each
// successive hop's transport as a direct-tcpip channel of the previous
// hop's Client rather than a fresh TCP connection. The returned Client
// is authenticated against the last hop; closing it does not close the
// earlier hops, so the caller is responsible for closing every *Client
// this function leaves behind it (only the last is returned).
func DialChain(hops ...Hop) (*Client, error) {
	if 0 == len(hops) {
		return nil, newKexError("DialChain: no hops given")
	}

	first := hops[0]
	network := first.Network
	if 0 == len(network) {
		network = "tcp"
	}
	current, err := Dial(network, first.Addr, first.Config)
	if nil != err {
		return nil, err
	}

	for _, hop := range hops[1:] {
		nc, err := current.DialTCP("tcp", hop.Addr)
		if nil != err {
			current.Close()
			return nil, err
		}
		next, err := NewClientConn(nc, hop.Addr, hop.Config)
		if nil != err {
			nc.Close()
			current.Close()
			return nil, err
		}
		current = next
	}
	return current, nil
}

// NewClientConn runs the client handshake over an already established
// net.Conn - the path Dial uses, and the one jump-host chaining uses to
// layer a second handshake over a direct-tcpip channel from a prior hop.
func NewClientConn(nc net.Conn, hostname string, cfg *ClientConfig) (*Client, error) {
	tag := tagGen.NewTag()

	magics, err := exchangeVersions(nc, true)
	if nil != err {
		nc.Close()
		return nil, err
	}

	t := newTransport(nc)
	conn := newConnection(t, true, tag)

	kexResult, negotiated, err := clientHandshake(t, magics, &cfg.Crypto, nil)
	if nil != err {
		nc.Close()
		return nil, err
	}
	conn.sessionID = kexResult.H

	hostKey, err := parseHostKey(negotiated.hostKey, kexResult.HostKey)
	if nil != err {
		nc.Close()
		return nil, err
	}
	if err = hostKey.Verify(kexResult.H, kexResult.Signature); nil != err {
		nc.Close()
		return nil, newHostKeyError(err, hostname)
	}
	if nil != cfg.HostKeyCallback {
		if err = cfg.HostKeyCallback(hostname, hostKey); nil != err {
			nc.Close()
			return nil, newHostKeyError(err, hostname)
		}
	}

	// persisted so a later mid-session rekey (Connection.handleKexInit /
	// rekeyIfDue) can redo the KEXINIT/DH/NEWKEYS sequence on this same
	// transport without re-running version exchange, RFC 4253 section 9.
	conn.cryptoCfg = &cfg.Crypto
	conn.hostname = hostname
	conn.hostKeyCallback = cfg.HostKeyCallback
	conn.versionMagics = handshakeMagics{clientVersion: magics.clientVersion, serverVersion: magics.serverVersion}
	conn.lastKexAt = time.Now()

	if err = authenticate(conn, cfg.User, conn.sessionID, cfg.Auth); nil != err {
		conn.Close()
		return nil, err
	}

	// started only now: authenticate reads the transport directly, and
	// mainLoop must not compete with it for packets.
	go conn.mainLoop()

	ulog.Debugf("ussh [%s]: authenticated %s@%s", tag, cfg.User, hostname)
	return &Client{conn: conn, cfg: cfg, tag: tag}, nil
}

// exchangeVersions performs RFC 4253 section 4.2's identification string
// exchange and returns the raw strings needed later for the exchange hash.
func exchangeVersions(nc net.Conn, weAreClient bool) (m *handshakeMagics, err error) {
	m = &handshakeMagics{}
	if weAreClient {
		if _, err = nc.Write([]byte(clientVersionString + "\r\n")); nil != err {
			return
		}
		m.clientVersion = []byte(clientVersionString)
	}

	line, err := readVersionLine(nc)
	if nil != err {
		return
	}
	if weAreClient {
		m.serverVersion = line
	} else {
		m.clientVersion = line
		if _, err = nc.Write([]byte(clientVersionString + "\r\n")); nil != err {
			return
		}
		m.serverVersion = []byte(clientVersionString)
	}
	return
}

func readVersionLine(nc net.Conn) ([]byte, error) {
	r := bufio.NewReader(nc)
	for {
		line, err := r.ReadString('\n')
		if nil != err {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "SSH-2.0-") || strings.HasPrefix(line, "SSH-1.99-") {
			return []byte(line), nil
		}
		// RFC 4253 section 4.2 allows arbitrary lines before the
		// identification string; ignore them.
	}
}

// clientHandshake runs one round of KEXINIT negotiation and DH exchange,
// then installs the derived keys and sends SSH_MSG_NEWKEYS. sessionID is
// nil for the connection's first exchange (the resulting H becomes the
// session id); for a later rekey, pass the connection's fixed session id
// so the key derivation function keeps using it instead of the new H, RFC
// 4253 section 7.2.
func clientHandshake(t *transport, magics *handshakeMagics, cryptoCfg *CryptoConfig, sessionID []byte) (rv kexResult, negotiated negotiatedAlgos, err error) {
	myInit := newKexInit(cryptoCfg)
	magics.clientKexInit = marshal([]byte{msgKexInit}, myInit)
	if err = t.writePacket(magics.clientKexInit); nil != err {
		return
	}

	payload, err := t.readPacket()
	if nil != err {
		return
	}
	return finishClientKex(t, magics, myInit, payload, sessionID)
}

// finishClientKex continues the client side of a key exchange once our
// own KEXINIT has already been sent (magics.clientKexInit) and the peer's
// raw KEXINIT payload is in hand - shared by clientHandshake above and by
// Connection.handleKexInit's peer-initiated mid-session rekey path.
func finishClientKex(t *transport, magics *handshakeMagics, myInit *kexInitMsg, payload []byte, sessionID []byte) (rv kexResult, negotiated negotiatedAlgos, err error) {
	if payload[0] != msgKexInit {
		err = newUnexpectedMessage(msgKexInit, payload[0])
		return
	}
	magics.serverKexInit = payload
	var peerInit kexInitMsg
	if err = decode(payload[1:], &peerInit); nil != err {
		return
	}

	negotiated, err = negotiate(myInit, &peerInit, true)
	if nil != err {
		return
	}

	rv, err = clientDH(t, negotiated.kex, magics, negotiated.hostKey)
	if nil != err {
		return
	}

	sid := sessionID
	if 0 == len(sid) {
		sid = rv.H
	}

	keys := deriveSessionKeys(rv.Hash, negotiated.cipherCtoS, negotiated.macCtoS, rv.K.Bytes(), rv.H, sid)
	if err = t.rekeyWrite(negotiated.cipherCtoS, negotiated.macCtoS, keys.encCtoS, keys.ivCtoS, keys.macCtoS); nil != err {
		return
	}
	readKeys := deriveSessionKeys(rv.Hash, negotiated.cipherStoC, negotiated.macStoC, rv.K.Bytes(), rv.H, sid)
	if err = t.rekeyRead(negotiated.cipherStoC, negotiated.macStoC, readKeys.encStoC, readKeys.ivStoC, readKeys.macStoC); nil != err {
		return
	}

	if err = sendMsg(t, &newKeysMsg{}); nil != err {
		return
	}
	var nk newKeysMsg
	err = recvMsg(t, msgNewKeys, &nk)
	return
}

func parseHostKey(algo string, blob []byte) (PublicKey, error) {
	switch algo {
	case hostAlgoEd25519:
		_, rest := unmarshalString(blob)
		pubBytes, _ := unmarshalBytes(rest)
		return &ed25519PublicKey{pub: ed25519.PublicKey(append([]byte{}, pubBytes...))}, nil
	case hostAlgoRSA:
		_, rest := unmarshalString(blob)
		eBytes, rest2 := unmarshalBytes(rest)
		nBytes, _ := unmarshalBytes(rest2)
		return &rsaPublicKey{pub: rsaPubFromParts(eBytes, nBytes)}, nil
	default:
		return nil, newKexError("unsupported host key algorithm %q", algo)
	}
}

// NewSession opens a "session" channel and wraps it for exec/shell/
// subsystem use, RFC 4254 section 6.
func (c *Client) NewSession() (*Session, error) {
	ch, err := c.openChannel("session", nil)
	if nil != err {
		return nil, err
	}
	return &Session{ch: ch}, nil
}

// DialTCP opens a "direct-tcpip" channel, letting this client act as a
// forwarding proxy - the primitive jump-host chaining is built from.
func (c *Client) DialTCP(network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if nil != err {
		return nil, err
	}
	var port uint32
	fmt.Sscanf(portStr, "%d", &port)

	payload := marshal(nil, host)
	payload = marshal(payload, port)
	payload = marshal(payload, "0.0.0.0")
	payload = marshal(payload, uint32(0))

	ch, err := c.openChannel("direct-tcpip", payload)
	if nil != err {
		return nil, err
	}
	return &channelConn{channel: ch}, nil
}

func (c *Client) openChannel(chanType string, extra []byte) (ch *channel, err error) {
	ch = newChannel(c.conn, chanType, 0)
	ch.localID = c.conn.chans.add(ch)

	c.conn.writeMu.Lock()
	err = sendMsg(c.conn.t, &channelOpenMsg{
		ChanType: chanType, PeersID: ch.localID,
		PeersWindow: defaultWindowSize, MaxPacketSize: defaultMaxPacket,
		TypeSpecificData: extra,
	})
	c.conn.writeMu.Unlock()
	if nil != err {
		return nil, err
	}

	select {
	case <-ch.openConfirm:
		return ch, nil
	case fail := <-ch.openFailure:
		c.conn.chans.remove(ch.localID)
		return nil, newChannelOpenError(fail.Reason, fail.Message)
	case <-c.conn.Done():
		return nil, newConnectionClosed(nil)
	}
}

// SendKeepAlive issues a global request the peer is not expected to
// understand (per RFC 4254 section 4, an unrecognized request just gets
// SSH_MSG_REQUEST_FAILURE), the same no-op ping most SSH client libraries
// use to detect a dead peer without relying on TCP keepalives alone.
func (c *Client) SendKeepAlive() error {
	_, _, err := c.conn.SendGlobalRequest("keepalive@ussh", true, nil)
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// channelConn adapts a channel to net.Conn for DialTCP callers.
type channelConn struct {
	*channel
}

func (c *channelConn) LocalAddr() net.Addr  { return channelAddr{} }
func (c *channelConn) RemoteAddr() net.Addr { return channelAddr{} }
func (c *channelConn) SetDeadline(time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(time.Time) error { return nil }

type channelAddr struct{}

func (channelAddr) Network() string { return "ssh-channel" }
func (channelAddr) String() string  { return "ssh-channel" }

func rsaPubFromParts(eBytes, nBytes []byte) *rsa.PublicKey {
	e := new(big.Int).SetBytes(eBytes)
	n := new(big.Int).SetBytes(nBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}
}
