package ussh

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"io"
	"sync/atomic"

	"github.com/tredeske/ussh/uio"
)

const (
	minPacketLen     = 16
	maxPacketLen     = 1 << 18 // 256KiB, well above any message this package sends
	packetSizeMultiple = 8
)

// side streams holds the per-direction cipher/mac state negotiated during
// key exchange. Prior to the first SSH_MSG_NEWKEYS, stream and mac are nil
// and packets flow in the clear, matching the initial state of every SSH
// connection (RFC 4253 section 6).
type sideStream struct {
	stream cipher.Stream
	mac    hash.Hash
	macLen int
	seqNum uint32
}

func (s *sideStream) bumpSeq() (rv uint32) {
	rv = s.seqNum
	s.seqNum++
	return
}

// transport implements RFC 4253 section 6's binary packet protocol over an
// underlying io.ReadWriter. One transport instance is shared by a single
// connection's reader and writer goroutines in mux.go; read and write each
// own their own sideStream and are otherwise independent, so no locking is
// needed here beyond what the caller already serializes.
type transport struct {
	rw   io.ReadWriteCloser
	pool *uio.BufferPool

	readSide  sideStream
	writeSide sideStream

	// bytesOut/bytesIn count raw wire bytes since the last completed key
	// exchange, feeding the "one billion bytes" rekey threshold of RFC
	// 4253 section 9 / spec.md section 4.C. Atomic because writePacket can
	// be called from any goroutine holding Connection.writeMu while
	// readPacket is only ever called from mainLoop's goroutine.
	bytesOut atomic.Uint64
	bytesIn  atomic.Uint64
}

func newTransport(rw io.ReadWriteCloser) *transport {
	return &transport{
		rw:   rw,
		pool: uio.NewBufferPool(maxPacketLen, 8),
	}
}

func (t *transport) Close() error {
	return t.rw.Close()
}

// writePacket frames payload per RFC 4253 section 6.1:
//
//	uint32    packet_length
//	byte      padding_length
//	byte[n1]  payload
//	byte[n2]  random padding
//	byte[m]   mac
func (t *transport) writePacket(payload []byte) (err error) {
	side := &t.writeSide

	blockSize := 8
	if nil != side.stream {
		blockSize = 16 // CTR ciphers here all use 16 byte blocks (AES)
	}

	// total (length field excluded) must be a multiple of blockSize, and
	// padding must be at least 4 bytes.
	padLen := blockSize - (5+len(payload))%blockSize
	if padLen < 4 {
		padLen += blockSize
	}
	if padLen < minPacketLen-4-len(payload) {
		padLen += blockSize
	}

	packetLen := 1 + len(payload) + padLen

	buf := make([]byte, 4+packetLen)
	binary.BigEndian.PutUint32(buf, uint32(packetLen))
	buf[4] = byte(padLen)
	copy(buf[5:], payload)

	pad := buf[5+len(payload):]
	if _, err = rand.Read(pad); nil != err {
		return
	}

	// the MAC covers the sequence number and the unencrypted packet
	var macSum []byte
	if nil != side.mac {
		seq := side.bumpSeq()
		var seqBuf [4]byte
		binary.BigEndian.PutUint32(seqBuf[:], seq)
		side.mac.Reset()
		side.mac.Write(seqBuf[:])
		side.mac.Write(buf)
		macSum = side.mac.Sum(nil)
	} else {
		side.bumpSeq()
	}

	if nil != side.stream {
		side.stream.XORKeyStream(buf, buf)
	}
	buf = append(buf, macSum...)

	_, err = t.rw.Write(buf)
	if nil == err {
		t.bytesOut.Add(uint64(len(buf)))
	}
	return
}

// bytesSinceKex reports the wire bytes moved in both directions since the
// last resetByteCounters call (the last completed key exchange).
func (t *transport) bytesSinceKex() uint64 {
	return t.bytesOut.Load() + t.bytesIn.Load()
}

func (t *transport) resetByteCounters() {
	t.bytesOut.Store(0)
	t.bytesIn.Store(0)
}

// readPacket reverses writePacket, returning the payload (message type
// byte plus body) with framing and MAC stripped.
func (t *transport) readPacket() (payload []byte, err error) {
	side := &t.readSide

	lenBuf := make([]byte, 4)
	if _, err = io.ReadFull(t.rw, lenBuf); nil != err {
		return
	}

	if nil != side.stream {
		side.stream.XORKeyStream(lenBuf, lenBuf)
	}
	packetLen := binary.BigEndian.Uint32(lenBuf)
	if packetLen < 1 || packetLen > maxPacketLen {
		err = newParseError(0)
		return
	}

	rest := make([]byte, packetLen+uint32(side.macLen))
	if _, err = io.ReadFull(t.rw, rest); nil != err {
		return
	}

	body := rest[:packetLen]
	macBytes := rest[packetLen:]

	if nil != side.stream {
		side.stream.XORKeyStream(body, body)
	}

	if nil != side.mac {
		seq := side.bumpSeq()
		var seqBuf [4]byte
		binary.BigEndian.PutUint32(seqBuf[:], seq)
		side.mac.Reset()
		side.mac.Write(seqBuf[:])
		side.mac.Write(lenBuf)
		side.mac.Write(body)
		expect := side.mac.Sum(nil)
		if 1 != subtle.ConstantTimeCompare(expect, macBytes) {
			err = newKexError("mac mismatch")
			return
		}
	} else {
		side.bumpSeq()
	}

	padLen := int(body[0])
	if padLen+1 > len(body) {
		err = newParseError(0)
		return
	}
	payload = body[1 : len(body)-padLen]
	t.bytesIn.Add(uint64(len(lenBuf) + len(rest)))
	return
}

// rekey installs freshly derived keys for one direction after a successful
// key exchange (initial, or a later SSH_MSG_KEXINIT driven rekey).
func (t *transport) rekeyWrite(cipherName, macName string, enc, iv, mkey []byte) (err error) {
	t.writeSide.stream, err = newCTRStream(cipherName, enc, iv)
	if nil != err {
		return
	}
	t.writeSide.mac, err = newHMAC(macName, mkey)
	if nil != err {
		return
	}
	t.writeSide.macLen = macParamsFor[macName].keySize
	return
}

func (t *transport) rekeyRead(cipherName, macName string, enc, iv, mkey []byte) (err error) {
	t.readSide.stream, err = newCTRStream(cipherName, enc, iv)
	if nil != err {
		return
	}
	t.readSide.mac, err = newHMAC(macName, mkey)
	if nil != err {
		return
	}
	t.readSide.macLen = macParamsFor[macName].keySize
	return
}
