// Package sshmod manages a pool of named ussh client connections as a
// golum.Reloadable, the way ucerts manages TLS configs in the teacher
// repo: one config section per connection, reloaded as a unit when the
// config changes, looked up by name from other golums that need to open
// a session or a forwarding tunnel.
package sshmod

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tredeske/ussh"
	"github.com/tredeske/ussh/golum"
	"github.com/tredeske/ussh/uconfig"
)

var (
	added_ bool
	theMgr_ = mgr_{conns: make(map[string]*Conn)}
)

// AddManagers registers this package's golum.Reloadable under the name
// "sshConnections". Call once at process startup, alongside any other
// golum.AddReloadable calls.
func AddManagers() {
	if !added_ {
		added_ = true
		golum.AddReloadable("sshConnections", &theMgr_)
	}
}

// Lookup returns the named connection, or nil if no such name is
// configured.
func Lookup(name string) *Conn { return theMgr_.Get(name) }

// Conn wraps a *ussh.Client with the reconnect-on-keepalive-failure loop
// a long-lived golum needs; individual operations (NewSession, DialTCP)
// pass through to the current underlying client.
type Conn struct {
	Name string
	Addr string

	cfg         *ussh.ClientConfig
	keepalive   time.Duration
	reconnect   time.Duration

	mu     sync.Mutex
	client *ussh.Client
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Session opens a new session channel on the current connection,
// dialing fresh if the connection has gone away since the last call.
func (c *Conn) Session() (*ussh.Session, error) {
	client, err := c.current()
	if nil != err {
		return nil, err
	}
	return client.NewSession()
}

// DialTCP forwards through the current connection, RFC 4254 section 7.2.
func (c *Conn) DialTCP(network, addr string) (net.Conn, error) {
	client, err := c.current()
	if nil != err {
		return nil, err
	}
	return client.DialTCP(network, addr)
}

func (c *Conn) current() (*ussh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nil != c.client {
		return c.client, nil
	}
	client, err := ussh.Dial("tcp", c.Addr, c.cfg)
	if nil != err {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Conn) start() {
	c.stop = make(chan struct{})
	if 0 == c.keepalive {
		return
	}
	c.wg.Add(1)
	go c.keepaliveLoop()
}

func (c *Conn) keepaliveLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.keepalive)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.mu.Lock()
			client := c.client
			c.mu.Unlock()
			if nil == client {
				continue
			}
			if err := client.SendKeepAlive(); nil != err {
				c.mu.Lock()
				if c.client == client {
					client.Close()
					c.client = nil
				}
				c.mu.Unlock()
			}
		}
	}
}

func (c *Conn) Close() {
	if nil != c.stop {
		close(c.stop)
	}
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if nil != c.client {
		c.client.Close()
		c.client = nil
	}
}

// mgr_ is the golum.Reloadable singleton backing AddManagers.
type mgr_ struct {
	lock  sync.Mutex
	conns map[string]*Conn
}

func (m *mgr_) Get(name string) (rv *Conn) {
	m.lock.Lock()
	rv = m.conns[name]
	m.lock.Unlock()
	return
}

func (m *mgr_) Start() error { return nil }

func (m *mgr_) Stop() {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, c := range m.conns {
		c.Close()
	}
}

func (m *mgr_) Help(name string, help *uconfig.Help) {
	p := help.Init(name, "Manages named ussh client connections")
	conns := p.NewItem("connections", "[]connection", "List of SSH connections.")
	conns.NewItem("name", "string", "Name connection is registered as")
	conns.NewItem("addr", "string", "host:port to dial")
	conns.NewItem("user", "string", "username to authenticate as")
	conns.NewItem("password", "string", "password auth secret").SetOptional()
	conns.NewItem("privateKey", "string", "PEM file with a private key for publickey auth").
		SetOptional()
	conns.NewItem("knownHosts", "string", "trust-set file for host key verification").
		SetOptional()
	conns.NewItem("keepaliveSecs", "int", "seconds between keepalive@ussh global requests").
		SetDefault(0)
}

func (m *mgr_) Reload(
	name string,
	config *uconfig.Section,
) (rv golum.Reloadable, err error) {

	m.lock.Lock()
	defer m.lock.Unlock()

	next := make(map[string]*Conn)

	err = config.Chain().
		Each("connections", func(c *uconfig.Chain) (err error) {
			conn := &Conn{cfg: &ussh.ClientConfig{}}
			var password, privateKeyF, knownHostsF string
			var keepaliveSecs int
			err = c.
				GetString("name", &conn.Name, uconfig.StringNotBlank()).
				GetString("addr", &conn.Addr, uconfig.StringNotBlank()).
				GetString("user", &conn.cfg.User, uconfig.StringNotBlank()).
				GetString("password", &password).
				GetString("privateKey", &privateKeyF).
				GetString("knownHosts", &knownHostsF).
				GetInt("keepaliveSecs", &keepaliveSecs).
				ThenCheck(func() (err error) {
					if 0 != len(password) {
						conn.cfg.Auth = append(conn.cfg.Auth, ussh.Password(password))
					}
					if 0 != len(privateKeyF) {
						signer, err := loadSigner(privateKeyF)
						if nil != err {
							return err
						}
						conn.cfg.Auth = append(conn.cfg.Auth, ussh.PublicKeys(signer))
					}
					if 0 == len(knownHostsF) {
						conn.cfg.HostKeyCallback = ussh.InsecureIgnoreHostKey()
					} else {
						ts, err := ussh.NewTrustSet(knownHostsF)
						if nil != err {
							return err
						}
						conn.cfg.HostKeyCallback = ts.Callback()
					}
					conn.keepalive = time.Duration(keepaliveSecs) * time.Second
					if _, exists := next[conn.Name]; exists {
						return fmt.Errorf("duplicate ssh connection name: %s", conn.Name)
					}
					conn.start()
					next[conn.Name] = conn
					return nil
				}).
				Done()
			return
		}).
		Done()
	if nil != err {
		for _, c := range next {
			c.Close()
		}
		return nil, err
	}

	for name, old := range m.conns {
		if _, stillHere := next[name]; !stillHere {
			old.Close()
		}
	}
	m.conns = next
	rv = m
	return
}

func loadSigner(pemFile string) (ussh.Signer, error) {
	pemBytes, err := os.ReadFile(pemFile)
	if nil != err {
		return nil, err
	}
	return ussh.ParsePrivateKey(pemBytes, nil)
}
