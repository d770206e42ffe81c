package ussh

import (
	"crypto/rand"
)

// AuthMethod is one way of answering an SSH_MSG_USERAUTH_REQUEST
// challenge, RFC 4252 section 5.
type AuthMethod interface {
	method() string
	auth(user string, sessionID []byte, conn *Connection) (ok bool, partial bool, err error)
}

// Password authenticates with the "password" method, RFC 4252 section 8.
func Password(secret string) AuthMethod {
	return passwordAuth{secret: secret}
}

type passwordAuth struct{ secret string }

func (passwordAuth) method() string { return "password" }

func (p passwordAuth) auth(user string, sessionID []byte, conn *Connection) (ok, partial bool, err error) {
	payload := marshal(marshal(nil, false), p.secret)
	return sendAuthRequest(conn, user, "password", payload)
}

// PublicKeys authenticates with the "publickey" method using each signer
// in turn until one succeeds, RFC 4252 section 7.
func PublicKeys(signers ...Signer) AuthMethod {
	return publicKeyAuth{signers: signers}
}

type publicKeyAuth struct{ signers []Signer }

func (publicKeyAuth) method() string { return "publickey" }

func (p publicKeyAuth) auth(user string, sessionID []byte, conn *Connection) (ok, partial bool, err error) {
	for _, signer := range p.signers {
		pub := signer.PublicKey()
		pubBlob := pub.Marshal()

		// RFC 4252 section 7's signed data: session id, request fields,
		// a boolean "has signature" true, algo name, public key blob.
		toSign := buildAuthSignedData(sessionID, user, "publickey", pub.Type(), pubBlob)
		sig, sigErr := signer.Sign(rand.Reader, toSign)
		if nil != sigErr {
			continue
		}

		payload := marshal([]byte{}, true)
		payload = marshal(payload, pub.Type())
		payload = marshal(payload, pubBlob)
		payload = marshal(payload, sig)

		ok, partial, err = sendAuthRequest(conn, user, "publickey", payload)
		if ok || nil != err {
			return
		}
	}
	return false, false, nil
}

func buildAuthSignedData(sessionID []byte, user, method, algo string, pubBlob []byte) []byte {
	b := marshal(nil, sessionID)
	b = append(b, msgUserAuthRequest)
	b = marshal(b, user)
	b = marshal(b, serviceConn)
	b = marshal(b, method)
	b = marshal(b, true)
	b = marshal(b, algo)
	b = marshal(b, pubBlob)
	return b
}

func sendAuthRequest(conn *Connection, user, method string, methodPayload []byte) (ok, partial bool, err error) {
	conn.writeMu.Lock()
	err = sendMsg(conn.t, &userAuthRequestMsg{
		User: user, Service: serviceConn, Method: method, Payload: methodPayload,
	})
	conn.writeMu.Unlock()
	if nil != err {
		return
	}

	for {
		var payload []byte
		payload, err = conn.t.readPacket()
		if nil != err {
			return
		}
		switch payload[0] {
		case msgUserAuthSuccess:
			return true, false, nil
		case msgUserAuthFailure:
			var m userAuthFailureMsg
			if err = decode(payload[1:], &m); nil != err {
				return
			}
			return false, m.PartialSuccess, nil
		case msgUserAuthBanner:
			continue // RFC 4252 section 5.4, display and keep waiting
		default:
			err = newUnexpectedMessage(msgUserAuthFailure, payload[0])
			return
		}
	}
}

// authenticate drives the userauth protocol (RFC 4252 section 5): request
// the "ssh-userauth" service, then try each method in order until one
// succeeds or the list is exhausted.
func authenticate(conn *Connection, user string, sessionID []byte, methods []AuthMethod) error {
	conn.writeMu.Lock()
	err := sendMsg(conn.t, &serviceRequestMsg{Service: serviceUserAuth})
	conn.writeMu.Unlock()
	if nil != err {
		return err
	}
	var accept serviceAcceptMsg
	if err = recvMsg(conn.t, msgServiceAccept, &accept); nil != err {
		return err
	}

	var tried []string
	for _, m := range methods {
		tried = append(tried, m.method())
		ok, _, err := m.auth(user, sessionID, conn)
		if nil != err {
			return err
		}
		if ok {
			return nil
		}
	}
	return newAuthError(tried)
}
