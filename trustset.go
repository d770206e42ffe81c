package ussh

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tredeske/ussh/ulog"
)

// TrustSet is a known_hosts-style HostKeyCallback collaborator: it
// accepts a host key the first time it sees one for a given hostname
// (trust on first use), persists it to disk in the one-line-per-key
// format marshalPublicKeyLine already produces, and rejects any later
// connection whose host key for that hostname doesn't match.
type TrustSet struct {
	mu      sync.Mutex
	path    string
	entries map[string][]byte // hostname -> Marshal() blob
}

// NewTrustSet loads path if it exists (a missing file is not an error -
// it starts empty, as with a fresh known_hosts) and returns a TrustSet
// ready to use as a HostKeyCallback via Verify.
func NewTrustSet(path string) (*TrustSet, error) {
	ts := &TrustSet{path: path, entries: map[string][]byte{}}
	f, err := os.Open(path)
	if nil != err {
		if os.IsNotExist(err) {
			return ts, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if 0 == len(line) || strings.HasPrefix(line, "#") {
			continue
		}
		host, blob, err := parseTrustLine(line)
		if nil != err {
			ulog.Warnf("trust set %s: skipping malformed line: %s", path, err)
			continue
		}
		ts.entries[host] = blob
	}
	return ts, scanner.Err()
}

func parseTrustLine(line string) (host string, blob []byte, err error) {
	fields := strings.Fields(line)
	if 3 != len(fields) {
		return "", nil, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	host = fields[0]
	// fields[2] is base64(key.Marshal()), which already self-describes
	// its algorithm as a length-prefixed string per RFC 4253 section
	// 6.6; fields[1] is the same algorithm name written out for a human
	// reading the file, same as marshalPublicKeyLine produces.
	blob, err = base64.StdEncoding.DecodeString(fields[2])
	if nil != err {
		return "", nil, err
	}
	return host, blob, nil
}

// Callback returns a HostKeyCallback backed by this trust set.
func (t *TrustSet) Callback() HostKeyCallback {
	return t.Verify
}

// Verify implements HostKeyCallback.
func (t *TrustSet) Verify(hostname string, key PublicKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	blob := key.Marshal()
	if existing, ok := t.entries[hostname]; ok {
		if bytes.Equal(existing, blob) {
			return nil
		}
		return newHostKeyError(
			fmt.Errorf("host key for %q changed since it was trusted", hostname), hostname)
	}

	t.entries[hostname] = blob
	ulog.Printf("ussh: trusting new host key for %s (%s)", hostname, key.Type())
	return t.persist(hostname, key)
}

func (t *TrustSet) persist(hostname string, key PublicKey) error {
	if 0 == len(t.path) {
		return nil
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if nil != err {
		return err
	}
	defer f.Close()

	line := hostname + " " + marshalPublicKeyLine(key) + "\n"
	_, err = f.WriteString(line)
	return err
}
