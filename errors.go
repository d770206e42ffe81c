package ussh

import (
	"fmt"

	"github.com/tredeske/ussh/uerr"
)

// UnexpectedMessageError results when a message was received that did not
// match what the protocol state machine expected next.
type UnexpectedMessageError struct {
	uerr.UError
}

func newUnexpectedMessage(want, got uint8) error {
	return uerr.Cast(&UnexpectedMessageError{},
		"unexpected message type %d (wanted %d)", got, want)
}

// ParseError results from a malformed SSH message - too short, or with a
// length field that does not match the remaining payload.
type ParseError struct {
	uerr.UError
}

func newParseError(msgType uint8) error {
	return uerr.Cast(&ParseError{}, "parse error in message type %d", msgType)
}

// DisconnectError wraps a peer supplied SSH_MSG_DISCONNECT.
type DisconnectError struct {
	uerr.UError
	Code   uint32
	Reason string
}

func newDisconnectError(code uint32, reason string) error {
	err := &DisconnectError{Code: code, Reason: reason}
	uerr.Cast(err, "disconnected: %s (%d)", reason, code)
	return err
}

// KeyExchangeError indicates the two ends of the connection could not agree
// on an algorithm, or the exchange hash / signature failed to verify.
type KeyExchangeError struct {
	uerr.UError
}

func newKexError(format string, args ...interface{}) error {
	return uerr.Cast(&KeyExchangeError{}, format, args...)
}

// HostKeyError indicates the presented host key was rejected by the
// configured HostKeyCallback.
type HostKeyError struct {
	uerr.UError
}

func newHostKeyError(cause error, host string) error {
	return uerr.Recast(&HostKeyError{}, cause, "host key rejected for %s", host)
}

// AuthenticationError indicates every configured auth method was exhausted
// without the server granting SSH_MSG_USERAUTH_SUCCESS.
type AuthenticationError struct {
	uerr.UError
	Methods []string
}

func newAuthError(methods []string) error {
	err := &AuthenticationError{Methods: methods}
	uerr.Cast(err, "all authentication methods failed, tried: %v", methods)
	return err
}

// ChannelOpenError wraps a peer supplied SSH_MSG_CHANNEL_OPEN_FAILURE.
type ChannelOpenError struct {
	uerr.UError
	Reason  uint32
	Message string
}

func newChannelOpenError(reason uint32, message string) error {
	err := &ChannelOpenError{Reason: reason, Message: message}
	uerr.Cast(err, "channel open failed: %s (%d)", message, reason)
	return err
}

func (e *ChannelOpenError) Error() string {
	return fmt.Sprintf("ssh: channel open failed: %s (reason %d)", e.Message, e.Reason)
}

// ConnectionClosedError indicates the transport went away while a request
// was outstanding.
type ConnectionClosedError struct {
	uerr.UError
}

func newConnectionClosed(cause error) error {
	return uerr.Recast(&ConnectionClosedError{}, cause, "ssh connection closed")
}

// WeakSharedSecretError indicates the computed Diffie-Hellman shared
// secret K was all-zero, RFC 4253 section 8's degenerate case a peer
// supplying a crafted public value could force.
type WeakSharedSecretError struct {
	uerr.UError
}

func newWeakSharedSecret() error {
	return uerr.Cast(&WeakSharedSecretError{}, "diffie-hellman shared secret is all-zero")
}
