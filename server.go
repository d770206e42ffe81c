package ussh

import (
	"crypto/rand"
	"net"
	"time"

	"github.com/tredeske/ussh/ulog"
)

// ServerConfig gathers everything NewServerConn needs to complete a
// server side handshake: the host keys to prove identity with during key
// exchange, and the callbacks that decide whether a user gets in during
// userauth, RFC 4252.
type ServerConfig struct {
	HostSigners []Signer
	Crypto      CryptoConfig

	// PasswordCallback, when set, is asked to approve a "password" method
	// request, RFC 4252 section 8. A nil callback refuses the method
	// outright rather than ever calling it.
	PasswordCallback func(user, password string) error

	// PublicKeyCallback, when set, is asked to approve a "publickey"
	// method request, RFC 4252 section 7: once with no signature yet (a
	// client probing whether a key is worth signing with), and again once
	// the client actually signs. A nil callback refuses the method
	// outright.
	PublicKeyCallback func(user string, key PublicKey) error
}

func (cfg *ServerConfig) signerFor(algo string) Signer {
	for _, s := range cfg.HostSigners {
		if s.PublicKey().Type() == algo {
			return s
		}
	}
	return nil
}

func (cfg *ServerConfig) methodNames() (methods []string) {
	if nil != cfg.PasswordCallback {
		methods = append(methods, "password")
	}
	if nil != cfg.PublicKeyCallback {
		methods = append(methods, "publickey")
	}
	return
}

// NewServerConn runs the server side of the handshake over an already
// accepted net.Conn: version exchange, KEXINIT negotiation, the DH
// exchange signed with one of cfg.HostSigners, then RFC 4252 userauth.
// The returned Connection's mainLoop is already running (it is started once
// userauth has succeeded); follow up with
// Accept to receive the client's channel-open requests.
func NewServerConn(nc net.Conn, cfg *ServerConfig) (*Connection, error) {
	tag := tagGen.NewTag()

	magics, err := exchangeVersions(nc, false)
	if nil != err {
		nc.Close()
		return nil, err
	}

	t := newTransport(nc)
	conn := newConnection(t, false, tag)

	result, _, err := serverHandshake(t, magics, cfg, nil)
	if nil != err {
		nc.Close()
		return nil, err
	}
	conn.sessionID = result.H

	// persisted so a later mid-session rekey (Connection.handleKexInit /
	// rekeyIfDue) can redo the KEXINIT/DH/NEWKEYS sequence on this same
	// transport without re-running version exchange, RFC 4253 section 9.
	conn.cryptoCfg = &cfg.Crypto
	conn.serverCfg = cfg
	conn.versionMagics = handshakeMagics{clientVersion: magics.clientVersion, serverVersion: magics.serverVersion}
	conn.lastKexAt = time.Now()

	user, err := serverAuthenticate(conn, cfg)
	if nil != err {
		conn.Close()
		return nil, err
	}

	// started only now: serverAuthenticate reads the transport directly,
	// and mainLoop must not compete with it for packets.
	go conn.mainLoop()

	ulog.Debugf("ussh [%s]: authenticated %s", tag, user)
	return conn, nil
}

// serverHandshake runs one round of KEXINIT negotiation and DH exchange
// as the server, then installs the derived keys and exchanges
// SSH_MSG_NEWKEYS - the mirror image of clientHandshake in client.go.
// sessionID is nil for the connection's first exchange; for a later
// rekey, pass the connection's fixed session id, RFC 4253 section 7.2.
func serverHandshake(t *transport, magics *handshakeMagics, cfg *ServerConfig, sessionID []byte) (rv kexResult, negotiated negotiatedAlgos, err error) {
	myInit := newKexInit(&cfg.Crypto)
	magics.serverKexInit = marshal([]byte{msgKexInit}, myInit)
	if err = t.writePacket(magics.serverKexInit); nil != err {
		return
	}

	payload, err := t.readPacket()
	if nil != err {
		return
	}
	return finishServerKex(t, magics, myInit, payload, cfg, sessionID)
}

// finishServerKex continues the server side of a key exchange once our
// own KEXINIT has already been sent (magics.serverKexInit) and the peer's
// raw KEXINIT payload is in hand - shared by serverHandshake above and by
// Connection.handleKexInit's peer-initiated mid-session rekey path.
func finishServerKex(t *transport, magics *handshakeMagics, myInit *kexInitMsg, payload []byte, cfg *ServerConfig, sessionID []byte) (rv kexResult, negotiated negotiatedAlgos, err error) {
	if payload[0] != msgKexInit {
		err = newUnexpectedMessage(msgKexInit, payload[0])
		return
	}
	magics.clientKexInit = payload
	var peerInit kexInitMsg
	if err = decode(payload[1:], &peerInit); nil != err {
		return
	}

	negotiated, err = negotiate(myInit, &peerInit, false)
	if nil != err {
		return
	}

	signer := cfg.signerFor(negotiated.hostKey)
	if nil == signer {
		err = newKexError("no host key configured for algorithm %q", negotiated.hostKey)
		return
	}
	hostKeyBlob := signer.PublicKey().Marshal()

	rv, err = serverDH(t, negotiated.kex, magics, hostKeyBlob, func(data []byte) ([]byte, error) {
		return signer.Sign(rand.Reader, data)
	})
	if nil != err {
		return
	}

	sid := sessionID
	if 0 == len(sid) {
		sid = rv.H
	}

	writeKeys := deriveSessionKeys(rv.Hash, negotiated.cipherStoC, negotiated.macStoC, rv.K.Bytes(), rv.H, sid)
	if err = t.rekeyWrite(negotiated.cipherStoC, negotiated.macStoC, writeKeys.encStoC, writeKeys.ivStoC, writeKeys.macStoC); nil != err {
		return
	}
	readKeys := deriveSessionKeys(rv.Hash, negotiated.cipherCtoS, negotiated.macCtoS, rv.K.Bytes(), rv.H, sid)
	if err = t.rekeyRead(negotiated.cipherCtoS, negotiated.macCtoS, readKeys.encCtoS, readKeys.ivCtoS, readKeys.macCtoS); nil != err {
		return
	}

	if err = sendMsg(t, &newKeysMsg{}); nil != err {
		return
	}
	var nk newKeysMsg
	err = recvMsg(t, msgNewKeys, &nk)
	return
}

// serverAuthenticate drives the server side of the userauth protocol, RFC
// 4252 section 5: accept the "ssh-userauth" service request, then try
// each SSH_MSG_USERAUTH_REQUEST the peer sends against cfg's callbacks
// until one succeeds.
func serverAuthenticate(conn *Connection, cfg *ServerConfig) (user string, err error) {
	var svcReq serviceRequestMsg
	if err = recvMsg(conn.t, msgServiceRequest, &svcReq); nil != err {
		return
	}
	if svcReq.Service != serviceUserAuth {
		err = newKexError("unexpected service request %q", svcReq.Service)
		return
	}
	conn.writeMu.Lock()
	err = sendMsg(conn.t, &serviceAcceptMsg{Service: serviceUserAuth})
	conn.writeMu.Unlock()
	if nil != err {
		return
	}

	for {
		var req userAuthRequestMsg
		if err = recvMsg(conn.t, msgUserAuthRequest, &req); nil != err {
			return
		}
		if req.Service != serviceConn {
			err = newKexError("userauth request for unexpected service %q", req.Service)
			return
		}

		ok, partial, authErr := cfg.tryMethod(conn, req.User, req.Method, req.Payload)
		if nil != authErr {
			err = authErr
			return
		}
		if ok {
			conn.writeMu.Lock()
			err = sendMsg(conn.t, &userAuthSuccessMsg{})
			conn.writeMu.Unlock()
			if nil != err {
				return
			}
			return req.User, nil
		}

		conn.writeMu.Lock()
		err = sendMsg(conn.t, &userAuthFailureMsg{
			Methods: cfg.methodNames(), PartialSuccess: partial,
		})
		conn.writeMu.Unlock()
		if nil != err {
			return
		}
	}
}

// tryMethod checks one SSH_MSG_USERAUTH_REQUEST's method-specific payload
// against the configured callbacks. A nil err with ok false means "send
// USERAUTH_FAILURE and keep going", not a protocol error.
func (cfg *ServerConfig) tryMethod(
	conn *Connection,
	user, method string,
	payload []byte,
) (ok, partial bool, err error) {

	switch method {
	case "password":
		if nil == cfg.PasswordCallback {
			return false, false, nil
		}
		_, rest := unmarshalBool(payload) // RFC 4252 8's unused "change password" flag
		secret, _ := unmarshalString(rest)
		if nil != cfg.PasswordCallback(user, secret) {
			return false, false, nil
		}
		return true, false, nil

	case "publickey":
		if nil == cfg.PublicKeyCallback {
			return false, false, nil
		}
		hasSig, rest := unmarshalBool(payload)
		algo, rest := unmarshalString(rest)
		blob, rest := unmarshalBytes(rest)

		pub, perr := parseHostKey(algo, blob)
		if nil != perr {
			return false, false, nil
		}
		if nil != cfg.PublicKeyCallback(user, pub) {
			return false, false, nil
		}
		if !hasSig {
			// the client is only asking whether this key is worth signing
			// with; reply with SSH_MSG_USERAUTH_PK_OK and wait for the
			// real request.
			conn.writeMu.Lock()
			err = sendMsg(conn.t, &userAuthPubKeyOkMsg{Algo: algo, PubKey: blob})
			conn.writeMu.Unlock()
			return false, false, err
		}

		sig, _ := unmarshalBytes(rest)
		toSign := buildAuthSignedData(conn.sessionID, user, "publickey", algo, blob)
		if nil != pub.Verify(toSign, sig) {
			return false, false, nil
		}
		return true, false, nil

	default:
		return false, false, nil
	}
}
