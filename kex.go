package ussh

import (
	"crypto/rand"
	"hash"
	"math/big"
)

// negotiatedAlgos is the result of comparing a local and peer KEXINIT,
// RFC 4253 section 7.1.
type negotiatedAlgos struct {
	kex         string
	hostKey     string
	cipherCtoS  string
	cipherStoC  string
	macCtoS     string
	macStoC     string
}

func negotiate(local, peer *kexInitMsg, weAreClient bool) (rv negotiatedAlgos, err error) {
	clientKex, serverKex := local.KexAlgos, peer.KexAlgos
	clientHost, serverHost := local.ServerHostKeyAlgos, peer.ServerHostKeyAlgos
	cCtoS, sCtoS := local.CiphersClientServer, peer.CiphersClientServer
	cStoC, sStoC := local.CiphersServerClient, peer.CiphersServerClient
	cMacCtoS, sMacCtoS := local.MACsClientServer, peer.MACsClientServer
	cMacStoC, sMacStoC := local.MACsServerClient, peer.MACsServerClient

	if !weAreClient {
		clientKex, serverKex = serverKex, clientKex
		clientHost, serverHost = serverHost, clientHost
		cCtoS, sCtoS = sCtoS, cCtoS
		cStoC, sStoC = sStoC, cStoC
		cMacCtoS, sMacCtoS = sMacCtoS, cMacCtoS
		cMacStoC, sMacStoC = sMacStoC, cMacStoC
	}

	if rv.kex, err = findCommon("kex", clientKex, serverKex); nil != err {
		return
	}
	if rv.hostKey, err = findCommon("host key", clientHost, serverHost); nil != err {
		return
	}
	if rv.cipherCtoS, err = findCommon("cipher", cCtoS, sCtoS); nil != err {
		return
	}
	if rv.cipherStoC, err = findCommon("cipher", cStoC, sStoC); nil != err {
		return
	}
	if rv.macCtoS, err = findCommon("mac", cMacCtoS, sMacCtoS); nil != err {
		return
	}
	if rv.macStoC, err = findCommon("mac", cMacStoC, sMacStoC); nil != err {
		return
	}
	return
}

func newKexInit(cfg *CryptoConfig) *kexInitMsg {
	msg := &kexInitMsg{
		KexAlgos:                cfg.kexes(),
		ServerHostKeyAlgos:      cfg.hostKeys(),
		CiphersClientServer:     cfg.ciphers(),
		CiphersServerClient:     cfg.ciphers(),
		MACsClientServer:        cfg.macs(),
		MACsServerClient:        cfg.macs(),
		CompressionClientServer: []string{compressionNone},
		CompressionServerClient: []string{compressionNone},
	}
	rand.Read(msg.Cookie[:])
	return msg
}

// kexResult carries everything derived from a completed exchange that the
// connection needs to finish the handshake and derive session keys.
type kexResult struct {
	H         []byte
	K         *big.Int
	HostKey   []byte
	Signature []byte
	SessionID []byte
	Hash      func() hash.Hash
}

// clientDH runs the client side of diffie-hellman-group1-sha1 /
// diffie-hellman-group14-{sha1,sha256}, RFC 4253 section 8. magics carries
// the four byte strings (versions and KEXINITs) that feed the exchange
// hash along with the DH values and host key.
func clientDH(
	t *transport,
	algo string,
	magics *handshakeMagics,
	hostKeyAlgo string,
) (rv kexResult, err error) {

	group := kexGroup(algo)
	hashFn := kexHash(algo)

	var x *big.Int
	x, err = randomInGroup(group)
	if nil != err {
		return
	}
	X := new(big.Int).Exp(group.g, x, group.p)

	if err = sendMsg(t, &kexDHInitMsg{X: X.Bytes()}); nil != err {
		return
	}

	var reply kexDHReplyMsg
	if err = recvMsg(t, msgKexDHReply, &reply); nil != err {
		return
	}

	Y := new(big.Int).SetBytes(reply.Y)
	k, err := group.diffieHellman(Y, x)
	if nil != err {
		return
	}
	if 0 == k.Sign() {
		err = newWeakSharedSecret()
		return
	}

	h := hashFn()
	writeKexHashMaterial(h, magics, reply.HostKey, X.Bytes(), Y.Bytes(), k)

	rv = kexResult{
		H:         h.Sum(nil),
		K:         k,
		HostKey:   reply.HostKey,
		Signature: reply.Signature,
		Hash:      hashFn,
	}
	return
}

// serverDH runs the server side of the same exchange: it already has the
// client's X (from kexDHInitMsg), generates its own Y/y, computes K and H,
// and signs H with the host key.
func serverDH(
	t *transport,
	algo string,
	magics *handshakeMagics,
	hostKeyAlgo []byte,
	sign func(data []byte) ([]byte, error),
) (rv kexResult, err error) {

	group := kexGroup(algo)
	hashFn := kexHash(algo)

	var init kexDHInitMsg
	if err = recvMsg(t, msgKexDHInit, &init); nil != err {
		return
	}
	X := new(big.Int).SetBytes(init.X)

	y, err := randomInGroup(group)
	if nil != err {
		return
	}
	Y := new(big.Int).Exp(group.g, y, group.p)

	k, err := group.diffieHellman(X, y)
	if nil != err {
		return
	}
	if 0 == k.Sign() {
		err = newWeakSharedSecret()
		return
	}

	h := hashFn()
	writeKexHashMaterial(h, magics, hostKeyAlgo, X.Bytes(), Y.Bytes(), k)
	H := h.Sum(nil)

	sig, err := sign(H)
	if nil != err {
		return
	}

	if err = sendMsg(t, &kexDHReplyMsg{
		HostKey:   hostKeyAlgo,
		Y:         Y.Bytes(),
		Signature: sig,
	}); nil != err {
		return
	}

	rv = kexResult{H: H, K: k, HostKey: hostKeyAlgo, Signature: sig, Hash: hashFn}
	return
}

func randomInGroup(group *dhGroup) (x *big.Int, err error) {
	// per RFC 4253 section 8, the private exponent should have at least
	// twice the bits of security as the negotiated session key; using a
	// value close to the group order's bit length is simplest and matches
	// what most implementations actually do in practice.
	bits := group.p.BitLen()
	for {
		x, err = rand.Int(rand.Reader, group.p)
		if nil != err {
			return
		}
		if x.Sign() > 0 && x.BitLen() >= bits-64 {
			return
		}
	}
}

func writeKexHashMaterial(h hash.Hash, magics *handshakeMagics, hostKey, eBytes, fBytes []byte, k *big.Int) {
	write := func(s []byte) {
		var lenBuf [4]byte
		bigEnd_.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}
	writeMpint := func(b []byte) {
		if len(b) > 0 && b[0]&0x80 != 0 {
			write(append([]byte{0}, b...))
		} else {
			write(b)
		}
	}
	write(magics.clientVersion)
	write(magics.serverVersion)
	write(magics.clientKexInit)
	write(magics.serverKexInit)
	write(hostKey)
	writeMpint(eBytes)
	writeMpint(fBytes)
	writeMpint(k.Bytes())
}

type handshakeMagics struct {
	clientVersion, serverVersion []byte
	clientKexInit, serverKexInit []byte
}

// sendMsg marshals a message type byte followed by the struct fields.
func sendMsg(t *transport, msg messageBody) error {
	buf := marshal([]byte{msg.msgType()}, msg)
	return t.writePacket(buf)
}

// messageBody is implemented by every message struct in messages.go via a
// one line msgType() method (see message_types.go), so sendMsg never has
// to guess a type byte from a Go type.
type messageBody interface {
	msgType() uint8
}

// recvMsg reads the next packet, checks its type byte, and decodes the
// body into msg.
func recvMsg(t *transport, want uint8, msg interface{}) error {
	payload, err := t.readPacket()
	if nil != err {
		return err
	}
	if 0 == len(payload) {
		return newParseError(0)
	}
	if payload[0] != want {
		return newUnexpectedMessage(want, payload[0])
	}
	return decode(payload[1:], msg)
}
