package ussh

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"io"
)

// PublicKey is implemented by every key type this package can use as a
// host key or a client authentication key.
type PublicKey interface {
	Type() string   // e.g. "ssh-ed25519", "ssh-rsa"
	Marshal() []byte // RFC 4253 section 6.6 wire encoding
	Verify(data, sig []byte) error
}

// Signer produces signatures over arbitrary data using a private key,
// RFC 4252 section 7.
type Signer interface {
	PublicKey() PublicKey
	Sign(rand io.Reader, data []byte) (sig []byte, err error)
}

// --- RSA ---

type rsaPublicKey struct {
	pub *rsa.PublicKey
}

func (k *rsaPublicKey) Type() string { return hostAlgoRSA }

func (k *rsaPublicKey) Marshal() []byte {
	e := intToMpint(k.pub.E)
	n := k.pub.N.Bytes()
	b := marshalString(nil, hostAlgoRSA)
	b = marshal(b, mpintBytes(e))
	b = marshal(b, mpintBytes(n))
	return b
}

func (k *rsaPublicKey) Verify(data, sig []byte) error {
	// sig is the RFC 4253 6.6 "ssh-rsa" signature blob: string "ssh-rsa",
	// string sig-bytes.
	algo, rest2 := unmarshalString(sig)
	if algo != hostAlgoRSA {
		return newKexError("unexpected signature algo %q", algo)
	}
	raw, _ := unmarshalBytes(rest2)
	h := sha256Sum(data)
	return rsa.VerifyPKCS1v15(k.pub, crypto.SHA256, h, raw)
}

type rsaSigner struct {
	priv *rsa.PrivateKey
}

func (s *rsaSigner) PublicKey() PublicKey { return &rsaPublicKey{pub: &s.priv.PublicKey} }

func (s *rsaSigner) Sign(rnd io.Reader, data []byte) (sig []byte, err error) {
	h := sha256Sum(data)
	raw, err := rsa.SignPKCS1v15(rnd, s.priv, crypto.SHA256, h)
	if nil != err {
		return nil, err
	}
	return serializeSignature(hostAlgoRSA, raw), nil
}

// --- Ed25519 ---

type ed25519PublicKey struct {
	pub ed25519.PublicKey
}

func (k *ed25519PublicKey) Type() string { return hostAlgoEd25519 }

func (k *ed25519PublicKey) Marshal() []byte {
	b := marshalString(nil, hostAlgoEd25519)
	b = marshal(b, []byte(k.pub))
	return b
}

func (k *ed25519PublicKey) Verify(data, sig []byte) error {
	algo, rest := unmarshalString(sig)
	if algo != hostAlgoEd25519 {
		return newKexError("unexpected signature algo %q", algo)
	}
	raw, _ := unmarshalBytes(rest)
	if !ed25519.Verify(k.pub, data, raw) {
		return newKexError("ed25519 signature verification failed")
	}
	return nil
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s *ed25519Signer) PublicKey() PublicKey {
	return &ed25519PublicKey{pub: s.priv.Public().(ed25519.PublicKey)}
}

func (s *ed25519Signer) Sign(_ io.Reader, data []byte) (sig []byte, err error) {
	raw := ed25519.Sign(s.priv, data)
	return serializeSignature(hostAlgoEd25519, raw), nil
}

// --- ECDSA (placeholder: Verify always returns an error; not used for client auth here) ---

type ecdsaPublicKey struct {
	pub *ecdsa.PublicKey
}

func (k *ecdsaPublicKey) Type() string { return "ecdsa-sha2-nistp256" }
func (k *ecdsaPublicKey) Marshal() []byte {
	return marshalString(nil, k.Type())
}
func (k *ecdsaPublicKey) Verify(data, sig []byte) error {
	return newKexError("ecdsa host key verification not implemented")
}

func serializeSignature(algo string, raw []byte) []byte {
	b := marshalString(nil, algo)
	b = marshal(b, raw)
	return b
}

func sha256Sum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func mpintBytes(b []byte) []byte {
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > 0 && b[0]&0x80 != 0 {
		return append([]byte{0}, b...)
	}
	return b
}

func intToMpint(i int) []byte {
	var b []byte
	for i > 0 {
		b = append([]byte{byte(i)}, b...)
		i >>= 8
	}
	if 0 == len(b) {
		b = []byte{0}
	}
	return mpintBytes(b)
}

// GenerateEd25519Signer creates a fresh ed25519 key pair, the algorithm
// this package's sshmod defaults to for generated host keys.
func GenerateEd25519Signer() (Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if nil != err {
		return nil, err
	}
	return &ed25519Signer{priv: priv}, nil
}
