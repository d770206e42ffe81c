package ussh

import (
	"io"
	"sync"
)

// channel states, RFC 4254 section 5.
const (
	chanOpening = iota
	chanOpen
	chanHalfClosedLocal
	chanHalfClosedRemote
	chanClosed
)

const defaultWindowSize = 1 << 20 // 1MiB, generous enough for interactive and bulk transfer alike
const defaultMaxPacket = 1 << 15 // 32KiB, matches what most servers offer

// window tracks how much data the peer has told us we may send (or how
// much we have told the peer it may send), RFC 4254 section 5.2. Grounded
// on the same add/reserve shape used by the reference ssh fork this
// package's channel design is based on: a mutex-guarded counter, with a
// sync.Cond that wakes reserve callers when add grows the window.
type window struct {
	mu   sync.Mutex
	cond *sync.Cond
	size uint32
}

func newWindow(initial uint32) *window {
	w := &window{size: initial}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *window) add(n uint32) {
	if 0 == n {
		return
	}
	w.mu.Lock()
	w.size += n
	w.cond.Broadcast()
	w.mu.Unlock()
}

// reserve blocks until at least 1 byte of window is available, then
// consumes up to n bytes (possibly less) and returns how much was
// reserved.
func (w *window) reserve(n uint32) (rv uint32) {
	w.mu.Lock()
	for 0 == w.size {
		w.cond.Wait()
	}
	rv = n
	if w.size < rv {
		rv = w.size
	}
	w.size -= rv
	w.mu.Unlock()
	return
}

// channel is a single RFC 4254 multiplexed stream within a connection.
// Session, direct-tcpip, and forwarded-tcpip channels are all represented
// by this one type; what differs between them is only the channel open
// type string and request-specific data.
type channel struct {
	conn *Connection

	chanType string
	localID  uint32
	peersID  uint32

	sentEOF, sentClose       bool
	recvEOF, recvClose       bool
	mu                       sync.Mutex

	myWindow    *window
	peerWindow  *window
	maxPacket   uint32
	peerMaxPacket uint32

	incomingData chan []byte
	extData      chan []byte
	requests     chan *channelRequestMsg
	openConfirm  chan *channelOpenConfirmMsg
	openFailure  chan *channelOpenFailureMsg
	replyC       chan bool

	readBuf   []byte
	openExtra []byte

	closed chan struct{}
	closeOnce sync.Once
}

func newChannel(conn *Connection, chanType string, localID uint32) *channel {
	return &channel{
		conn:         conn,
		chanType:     chanType,
		localID:      localID,
		myWindow:     newWindow(defaultWindowSize),
		maxPacket:    defaultMaxPacket,
		incomingData: make(chan []byte, 16),
		extData:      make(chan []byte, 16),
		requests:     make(chan *channelRequestMsg, 16),
		openConfirm:  make(chan *channelOpenConfirmMsg, 1),
		openFailure:  make(chan *channelOpenFailureMsg, 1),
		replyC:       make(chan bool, 1),
		closed:       make(chan struct{}),
	}
}

// Read implements io.Reader over the channel's incoming data stream,
// topping up our advertised window as data is consumed so the peer keeps
// sending. Once the channel has closed, data that arrived before the close
// is still returned; io.EOF follows it.
func (c *channel) Read(p []byte) (n int, err error) {
	for 0 == len(c.readBuf) {
		data, ok := <-c.incomingData
		if !ok {
			return 0, io.EOF
		}
		c.readBuf = data
	}
	n = copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	c.myWindow.add(uint32(n))
	if err = c.conn.sendWindowAdjust(c.localID, uint32(n)); nil != err {
		return
	}
	return n, nil
}

// Write implements io.Writer, splitting data into SSH_MSG_CHANNEL_DATA
// packets no larger than the peer's advertised max packet size and
// blocking on the peer's window as needed.
func (c *channel) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		want := uint32(len(p))
		if want > c.peerMaxPacket {
			want = c.peerMaxPacket
		}
		toSend := c.peerWindow.reserve(want)
		if err = c.conn.sendChannelData(c.peersID, p[:toSend]); nil != err {
			return
		}
		p = p[toSend:]
		n += int(toSend)
	}
	return
}

// SendRequest issues a channel request (RFC 4254 section 4), optionally
// waiting for SSH_MSG_CHANNEL_SUCCESS/FAILURE.
func (c *channel) SendRequest(name string, wantReply bool, payload []byte) (ok bool, err error) {
	return c.conn.sendChannelRequest(c, name, wantReply, payload)
}

// Requests exposes channel requests sent by the peer (exec, shell,
// subsystem, exit-status, exit-signal, ...) for the owner to service.
func (c *channel) Requests() <-chan *channelRequestMsg {
	return c.requests
}

func (c *channel) Stderr() <-chan []byte {
	return c.extData
}

func (c *channel) CloseWrite() error {
	c.mu.Lock()
	if c.sentEOF {
		c.mu.Unlock()
		return nil
	}
	c.sentEOF = true
	c.mu.Unlock()
	return c.conn.sendChannelEOF(c.peersID)
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.sentClose {
		c.mu.Unlock()
		return nil
	}
	c.sentClose = true
	c.mu.Unlock()
	return c.conn.sendChannelClose(c.peersID)
}

// markClosed is invoked by the connection's reader goroutine once both
// directions have closed, releasing anyone blocked in Read/Write/Requests.
func (c *channel) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.incomingData)
		close(c.extData)
		close(c.requests)
	})
}
