package ussh

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tredeske/ussh/ulog"
)

// rekey is initiated (by either side) once one billion bytes have crossed
// the wire or an hour has elapsed since the last completed key exchange,
// RFC 4253 section 9 / spec.md section 4.C.
const (
	rekeyThresholdBytes    = 1 << 30
	rekeyThresholdDuration = time.Hour
)

// chanList is a mutex protected slice keyed by local channel id, modeled
// on the slot-reuse list from the reference ssh fork's chanList, adapted
// to this package's channel type and to return ok rather than panic on a
// miss (several mainLoop paths legitimately race a close against a late
// packet for the same id).
type chanList struct {
	mu    sync.Mutex
	chans []*channel
}

func (l *chanList) add(c *channel) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.chans {
		if nil == existing {
			l.chans[i] = c
			return uint32(i)
		}
	}
	l.chans = append(l.chans, c)
	return uint32(len(l.chans) - 1)
}

func (l *chanList) get(id uint32) (c *channel, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id >= uint32(len(l.chans)) {
		return nil, false
	}
	c = l.chans[id]
	return c, nil != c
}

func (l *chanList) remove(id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < uint32(len(l.chans)) {
		l.chans[id] = nil
	}
}

func (l *chanList) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.chans {
		if nil != c {
			c.markClosed()
		}
	}
}

// globalRequestState serializes global requests (RFC 4254 section 4): the
// protocol permits only one outstanding global request awaiting a reply at
// a time, so SendGlobalRequest holds mu for the round trip, the same
// discipline the reference fork's sendGlobalRequest uses. respMu guards
// resp alone, so mainLoop can hand over the reply while mu is held.
type globalRequestState struct {
	mu     sync.Mutex
	respMu sync.Mutex
	resp   chan interface{} // *globalRequestSuccessMsg or *globalRequestFailureMsg
}

func (g *globalRequestState) setResp(resp chan interface{}) {
	g.respMu.Lock()
	g.resp = resp
	g.respMu.Unlock()
}

// Connection is one multiplexed SSH connection: a transport plus the
// channel and global-request bookkeeping layered on top of it per RFC
// 4254. A single mainLoop goroutine owns reads; writers serialize through
// writeMu.
type Connection struct {
	t *transport

	writeMu sync.Mutex

	chans   chanList
	global  globalRequestState

	incomingChans chan *channel

	pendingMu sync.Mutex
	pending   map[uint32]*channel

	onGlobalRequest func(reqType string, data []byte) (ok bool, reply []byte, err error)

	sessionID []byte

	// rekey support: persisted across the life of the connection (set by
	// NewClientConn/NewServerConn right after the initial handshake) so a
	// later mid-session SSH_MSG_KEXINIT - this package's own proactive
	// rekey, or one the peer sends - can redo the KEXINIT/DH/NEWKEYS
	// sequence on the same transport without repeating version exchange.
	cryptoCfg       *CryptoConfig
	versionMagics   handshakeMagics // clientVersion/serverVersion only, fixed for the connection's life
	serverCfg       *ServerConfig   // server side only
	hostname        string          // client side only
	hostKeyCallback HostKeyCallback // client side only
	lastKexAt       time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	isClient bool
	tag      string
}

func newConnection(t *transport, isClient bool, tag string) *Connection {
	return &Connection{
		t:             t,
		incomingChans: make(chan *channel, 16),
		done:          make(chan struct{}),
		isClient:      isClient,
		tag:           tag,
	}
}

// mainLoop reads packets until the transport closes, dispatching each to
// the channel, global request, or kex machinery it belongs to. Grounded on
// the switch-over-decoded-message-type dispatch loop in the reference ssh
// fork's mainLoop, generalized to route through this package's channel and
// request types instead of x/crypto/ssh's.
func (c *Connection) mainLoop() {
	defer c.shutdown(nil)
	for {
		payload, err := c.t.readPacket()
		if nil != err {
			c.shutdown(err)
			return
		}
		if 0 == len(payload) {
			continue
		}
		if err = c.dispatch(payload); nil != err {
			ulog.Warnf("ussh [%s]: dispatch error: %s", c.tag, err)
			c.shutdown(err)
			return
		}
		c.rekeyIfDue()
	}
}

func (c *Connection) dispatch(payload []byte) (err error) {
	switch payload[0] {

	case msgDisconnect:
		var m disconnectMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		return newDisconnectError(m.Reason, m.Message)

	case msgGlobalRequest:
		var m globalRequestMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		return c.handleGlobalRequest(&m)

	case msgRequestSuccess:
		var m globalRequestSuccessMsg
		decode(payload[1:], &m)
		c.deliverGlobalReply(&m)

	case msgRequestFailure:
		c.deliverGlobalReply(&globalRequestFailureMsg{})

	case msgChannelOpen:
		var m channelOpenMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		c.handleChannelOpen(&m)

	case msgChannelOpenConfirm:
		var m channelOpenConfirmMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		if ch, ok := c.chans.get(m.PeersID); ok {
			ch.peersID = m.MyID
			ch.peerWindow = newWindow(m.MyWindow)
			ch.peerMaxPacket = m.MaxPacketSize
			ch.openConfirm <- &m
		}

	case msgChannelOpenFailure:
		var m channelOpenFailureMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		if ch, ok := c.chans.get(m.PeersID); ok {
			ch.openFailure <- &m
			c.chans.remove(m.PeersID)
		}

	case msgChannelWindowAdjust:
		var m channelWindowAdjustMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		if ch, ok := c.chans.get(m.PeersID); ok && nil != ch.peerWindow {
			ch.peerWindow.add(m.AdditionalBytes)
		}

	case msgChannelData:
		if len(payload) < 9 {
			return newParseError(payload[0])
		}
		id, rest := unmarshalUint32(payload[1:])
		data, _ := unmarshalBytes(rest)
		if ch, ok := c.chans.get(id); ok {
			cp := make([]byte, len(data))
			copy(cp, data)
			select {
			case ch.incomingData <- cp:
			case <-ch.closed:
			}
		}

	case msgChannelExtendedData:
		id, rest := unmarshalUint32(payload[1:])
		_, rest = unmarshalUint32(rest) // extended data type code, stderr only in practice
		data, _ := unmarshalBytes(rest)
		if ch, ok := c.chans.get(id); ok {
			cp := make([]byte, len(data))
			copy(cp, data)
			select {
			case ch.extData <- cp:
			case <-ch.closed:
			}
		}

	case msgChannelEOF:
		id, _ := unmarshalUint32(payload[1:])
		if ch, ok := c.chans.get(id); ok {
			ch.mu.Lock()
			ch.recvEOF = true
			ch.mu.Unlock()
		}

	case msgChannelClose:
		id, _ := unmarshalUint32(payload[1:])
		if ch, ok := c.chans.get(id); ok {
			ch.mu.Lock()
			ch.recvClose = true
			needClose := !ch.sentClose
			ch.mu.Unlock()
			if needClose {
				c.sendChannelClose(ch.peersID)
			}
			ch.markClosed()
			c.chans.remove(id)
		}

	case msgChannelRequest:
		var m channelRequestMsg
		if err = decode(payload[1:], &m); nil != err {
			return
		}
		if ch, ok := c.chans.get(m.PeersID); ok {
			select {
			case ch.requests <- &m:
			default:
				ulog.Warnf("ussh [%s]: dropped channel request %q, queue full", c.tag, m.Request)
			}
			if m.WantReply {
				c.sendChannelRequestSuccess(ch.peersID)
			}
		}

	case msgChannelSuccess:
		id, _ := unmarshalUint32(payload[1:])
		if ch, ok := c.chans.get(id); ok {
			select {
			case ch.replyC <- true:
			default:
			}
		}

	case msgChannelFailure:
		id, _ := unmarshalUint32(payload[1:])
		if ch, ok := c.chans.get(id); ok {
			select {
			case ch.replyC <- false:
			default:
			}
		}

	case msgIgnore, msgDebug, msgUnimplemented:
		// no-ops per RFC 4253 section 11.3/11.4

	case msgKexInit:
		return c.handleKexInit(payload)

	default:
		ulog.Debugf("ussh [%s]: unhandled message type %d", c.tag, payload[0])
	}
	return nil
}

// handleKexInit re-enters the KEXINIT/DH/NEWKEYS sequence on this
// connection's existing transport for a peer-initiated mid-session rekey,
// RFC 4253 section 9. payload is the peer's raw KEXINIT as already read
// by mainLoop. c.sessionID is never reassigned - only the connection's
// first key exchange sets it; every later exchange's key derivation keeps
// using that original value, RFC 4253 section 7.2. Writes here hold
// writeMu for the whole round so ordinary channel/global-request traffic
// can't interleave with the kex messages.
func (c *Connection) handleKexInit(payload []byte) error {
	magics := &handshakeMagics{
		clientVersion: c.versionMagics.clientVersion,
		serverVersion: c.versionMagics.serverVersion,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	myInit := newKexInit(c.cryptoCfg)

	if c.isClient {
		magics.clientKexInit = marshal([]byte{msgKexInit}, myInit)
		if err := c.t.writePacket(magics.clientKexInit); nil != err {
			return err
		}
		rv, negotiated, err := finishClientKex(c.t, magics, myInit, payload, c.sessionID)
		if nil != err {
			return err
		}
		hostKey, err := parseHostKey(negotiated.hostKey, rv.HostKey)
		if nil != err {
			return err
		}
		if err = hostKey.Verify(rv.H, rv.Signature); nil != err {
			return newHostKeyError(err, c.hostname)
		}
		if nil != c.hostKeyCallback {
			if err = c.hostKeyCallback(c.hostname, hostKey); nil != err {
				return newHostKeyError(err, c.hostname)
			}
		}
	} else {
		magics.serverKexInit = marshal([]byte{msgKexInit}, myInit)
		if err := c.t.writePacket(magics.serverKexInit); nil != err {
			return err
		}
		if _, _, err := finishServerKex(c.t, magics, myInit, payload, c.serverCfg, c.sessionID); nil != err {
			return err
		}
	}

	c.t.resetByteCounters()
	c.lastKexAt = time.Now()
	ulog.Debugf("ussh [%s]: rekeyed (peer initiated)", c.tag)
	return nil
}

// rekeyIfDue proactively starts a new key exchange once either rekey
// threshold has been crossed since the last completed one. Called from
// mainLoop's own goroutine after each dispatched payload, so it never
// competes with handleKexInit's read of the peer's response - both run on
// the same goroutine that owns c.t's reads.
func (c *Connection) rekeyIfDue() {
	if nil == c.cryptoCfg {
		return // rekey fields not yet installed (still mid-handshake)
	}
	if c.t.bytesSinceKex() < rekeyThresholdBytes && time.Since(c.lastKexAt) < rekeyThresholdDuration {
		return
	}

	magics := &handshakeMagics{
		clientVersion: c.versionMagics.clientVersion,
		serverVersion: c.versionMagics.serverVersion,
	}

	c.writeMu.Lock()
	var err error
	if c.isClient {
		_, _, err = clientHandshake(c.t, magics, c.cryptoCfg, c.sessionID)
	} else {
		_, _, err = serverHandshake(c.t, magics, c.serverCfg, c.sessionID)
	}
	c.writeMu.Unlock()
	if nil != err {
		ulog.Warnf("ussh [%s]: rekey failed: %s", c.tag, err)
		return
	}

	c.t.resetByteCounters()
	c.lastKexAt = time.Now()
	ulog.Debugf("ussh [%s]: rekeyed (self initiated)", c.tag)
}

func (c *Connection) handleGlobalRequest(m *globalRequestMsg) error {
	// default behavior: refuse anything we don't have a registered
	// handler for. A handler installed with
	// Connection.GlobalRequestHandler decides instead.
	if nil != c.onGlobalRequest {
		reply, data, err := c.onGlobalRequest(m.Type, m.Data)
		if nil != err {
			reply = false
		}
		if m.WantReply {
			return c.replyGlobalRequest(reply, data)
		}
		return nil
	}
	if m.WantReply {
		return c.replyGlobalRequest(false, nil)
	}
	return nil
}

func (c *Connection) replyGlobalRequest(ok bool, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if ok {
		return sendMsg(c.t, &globalRequestSuccessMsg{Data: data})
	}
	return sendMsg(c.t, &globalRequestFailureMsg{})
}

func (c *Connection) deliverGlobalReply(m interface{}) {
	c.global.respMu.Lock()
	resp := c.global.resp
	c.global.respMu.Unlock()
	if nil != resp {
		resp <- m
	}
}

// SendGlobalRequest issues a global request and, if wantReply, blocks for
// the peer's SSH_MSG_REQUEST_SUCCESS/FAILURE.
func (c *Connection) SendGlobalRequest(reqType string, wantReply bool, data []byte) (ok bool, reply []byte, err error) {
	c.global.mu.Lock()
	defer c.global.mu.Unlock()

	respC := make(chan interface{}, 1)
	if wantReply {
		c.global.setResp(respC)
	}

	c.writeMu.Lock()
	err = sendMsg(c.t, &globalRequestMsg{Type: reqType, WantReply: wantReply, Data: data})
	c.writeMu.Unlock()
	if nil != err || !wantReply {
		c.global.setResp(nil)
		return false, nil, err
	}

	resp := <-respC
	c.global.setResp(nil)
	switch r := resp.(type) {
	case *globalRequestSuccessMsg:
		return true, r.Data, nil
	default:
		return false, nil, nil
	}
}

// GlobalRequestHandler installs fn as the handler for incoming global
// requests this connection did not itself send, RFC 4254 section 4 - the
// server side's home for tcpip-forward, cancel-tcpip-forward, and this
// package's own keepalive@ussh. Passing nil goes back to refusing
// everything.
func (c *Connection) GlobalRequestHandler(
	fn func(reqType string, data []byte) (ok bool, reply []byte, err error),
) {
	c.onGlobalRequest = fn
}

func (c *Connection) handleChannelOpen(m *channelOpenMsg) {
	ch := newChannel(c, m.ChanType, 0)
	ch.peersID = m.PeersID
	ch.peerWindow = newWindow(m.PeersWindow)
	ch.peerMaxPacket = m.MaxPacketSize
	ch.localID = c.chans.add(ch)
	ch.openExtra = m.TypeSpecificData

	c.pendingMu.Lock()
	if nil == c.pending {
		c.pending = map[uint32]*channel{}
	}
	c.pending[ch.localID] = ch
	c.pendingMu.Unlock()

	select {
	case c.incomingChans <- ch:
	default:
		ulog.Warnf("ussh [%s]: incoming channel backlog full, rejecting %s", c.tag, m.ChanType)
		c.chans.remove(ch.localID)
		c.sendChannelOpenFailure(ch.peersID, 4, "connection backlog full")
	}
}

// Accept blocks for the next incoming channel-open request. The caller
// must follow up with either AcceptChannel or RejectChannel.
func (c *Connection) Accept() (chanType string, extra []byte, localID uint32, ok bool) {
	ch, chanOk := <-c.incomingChans
	if !chanOk {
		return "", nil, 0, false
	}
	return ch.chanType, ch.openExtra, ch.localID, true
}

// AcceptChannel confirms a pending incoming channel open (RFC 4254
// section 5.1) and returns the usable channel.
func (c *Connection) AcceptChannel(localID uint32) (ch *channel, err error) {
	c.pendingMu.Lock()
	ch = c.pending[localID]
	delete(c.pending, localID)
	c.pendingMu.Unlock()
	if nil == ch {
		return nil, newChannelOpenError(4, "unknown pending channel")
	}
	c.writeMu.Lock()
	err = sendMsg(c.t, &channelOpenConfirmMsg{
		PeersID: ch.peersID, MyID: ch.localID,
		MyWindow: defaultWindowSize, MaxPacketSize: defaultMaxPacket,
	})
	c.writeMu.Unlock()
	return
}

// RejectChannel refuses a pending incoming channel open.
func (c *Connection) RejectChannel(localID uint32, reason uint32, msg string) error {
	c.pendingMu.Lock()
	ch := c.pending[localID]
	delete(c.pending, localID)
	c.pendingMu.Unlock()
	if nil == ch {
		return nil
	}
	c.chans.remove(localID)
	return c.sendChannelOpenFailure(ch.peersID, reason, msg)
}

func (c *Connection) sendChannelOpenFailure(peersID uint32, reason uint32, msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sendMsg(c.t, &channelOpenFailureMsg{PeersID: peersID, Reason: reason, Message: msg, Language: "en"})
}

func (c *Connection) sendWindowAdjust(localID, n uint32) error {
	ch, ok := c.chans.get(localID)
	if !ok {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sendMsg(c.t, &channelWindowAdjustMsg{PeersID: ch.peersID, AdditionalBytes: n})
}

func (c *Connection) sendChannelData(peersID uint32, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.t.writePacket(marshal(
		marshal([]byte{msgChannelData}, peersID), data))
}

func (c *Connection) sendChannelEOF(peersID uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sendMsg(c.t, &channelEOFMsg{PeersID: peersID})
}

func (c *Connection) sendChannelClose(peersID uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sendMsg(c.t, &channelCloseMsg{PeersID: peersID})
}

func (c *Connection) sendChannelRequestSuccess(peersID uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sendMsg(c.t, &channelRequestSuccessMsg{PeersID: peersID})
}

func (c *Connection) sendChannelRequest(ch *channel, name string, wantReply bool, payload []byte) (ok bool, err error) {
	c.writeMu.Lock()
	err = sendMsg(c.t, &channelRequestMsg{
		PeersID: ch.peersID, Request: name, WantReply: wantReply, RequestSpecificData: payload,
	})
	c.writeMu.Unlock()
	if nil != err || !wantReply {
		return !wantReply, err
	}
	select {
	case ok = <-ch.replyC:
		return ok, nil
	case <-ch.closed:
		return false, newConnectionClosed(nil)
	}
}

func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.chans.closeAll()
		c.t.Close()
		if nil != cause && cause != io.EOF {
			ulog.Printf("ussh [%s]: connection closed: %s", c.tag, cause)
		}
	})
}

func (c *Connection) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}
