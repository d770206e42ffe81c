package ussh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"strings"

	"golang.org/x/crypto/blowfish"
)

const openSSHMagic = "openssh-key-v1\x00"

// ParsePrivateKey parses a PEM encoded OpenSSH "openssh-key-v1" private
// key container (the format `ssh-keygen` has written by default since
// OpenSSH 7.8) and, if it is encrypted, decrypts it with passphrase.
func ParsePrivateKey(pemBytes []byte, passphrase []byte) (Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if nil == block || !strings.Contains(block.Type, "OPENSSH PRIVATE KEY") {
		return nil, newKexError("not an OpenSSH private key PEM block")
	}
	return parseOpenSSHKey(block.Bytes, passphrase)
}

// parseOpenSSHKey implements the container format described informally by
// OpenSSH's PROTOCOL.key (there is no RFC for it):
//
//	"openssh-key-v1\x00"
//	string  ciphername
//	string  kdfname
//	string  kdfoptions
//	uint32  number of keys, must be 1
//	string  publickey1
//	string  encrypted, padded list of private keys
func parseOpenSSHKey(b []byte, passphrase []byte) (Signer, error) {
	if len(b) < len(openSSHMagic) || string(b[:len(openSSHMagic)]) != openSSHMagic {
		return nil, newKexError("bad OpenSSH key magic")
	}
	b = b[len(openSSHMagic):]

	cipherName, b := readOSString(b)
	kdfName, b := readOSString(b)
	kdfOpts, b := readOSBytes(b)
	numKeys, b := readOSUint32(b)
	if 1 != numKeys {
		return nil, newKexError("only single-key OpenSSH containers are supported, got %d", numKeys)
	}

	_, b = readOSBytes(b) // public key blob, redundant with the private section
	priv, b := readOSBytes(b)

	if cipherName != "none" {
		if 0 == len(passphrase) {
			return nil, newKexError("key %q is encrypted, passphrase required", cipherName)
		}
		var err error
		priv, err = decryptOSPrivate(cipherName, kdfName, kdfOpts, passphrase, priv)
		if nil != err {
			return nil, err
		}
	}

	return parsePrivateSection(priv)
}

func readOSUint32(b []byte) (uint32, []byte) {
	return binary.BigEndian.Uint32(b), b[4:]
}

func readOSString(b []byte) (string, []byte) {
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	return string(b[:n]), b[n:]
}

func readOSBytes(b []byte) ([]byte, []byte) {
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	return b[:n], b[n:]
}

// decryptOSPrivate derives a key/iv with bcrypt_pbkdf (OpenSSH's chosen
// KDF for "bcrypt" kdfname) and decrypts the private section with
// aes256-ctr, the only cipher this implementation offers for key
// protection.
func decryptOSPrivate(cipherName, kdfName string, kdfOpts []byte, passphrase []byte, ct []byte) ([]byte, error) {
	if kdfName != "bcrypt" {
		return nil, newKexError("unsupported openssh key kdf %q", kdfName)
	}
	salt, rest := readOSBytes(kdfOpts)
	rounds, _ := readOSUint32(rest)

	var keyIV []byte
	switch cipherName {
	case "aes256-ctr":
		keyIV = bcryptPBKDF(passphrase, salt, int(rounds), 32+16)
	default:
		return nil, newKexError("unsupported openssh key cipher %q", cipherName)
	}
	key, iv := keyIV[:32], keyIV[32:]

	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, err
	}
	pt := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(pt, ct)
	return pt, nil
}

// parsePrivateSection decodes the decrypted private key list:
//
//	uint32  checkint1
//	uint32  checkint2  (must equal checkint1)
//	string  key type name
//	...     type specific private key fields
//	string  comment
//	byte[]  padding (1, 2, 3, ...)
func parsePrivateSection(b []byte) (Signer, error) {
	c1, b := readOSUint32(b)
	c2, b := readOSUint32(b)
	if c1 != c2 {
		return nil, newKexError("incorrect passphrase or corrupt key (checkint mismatch)")
	}

	keyType, b := readOSString(b)
	switch keyType {
	case hostAlgoEd25519:
		_, b = readOSBytes(b) // public key, duplicate of the outer section
		privBlob, _ := readOSBytes(b)
		if len(privBlob) != ed25519.PrivateKeySize {
			return nil, newKexError("bad ed25519 private key length %d", len(privBlob))
		}
		priv := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
		copy(priv, privBlob)
		return &ed25519Signer{priv: priv}, nil
	default:
		return nil, newKexError("unsupported openssh private key type %q", keyType)
	}
}

// bcryptPBKDF implements OpenSSH's bcrypt_pbkdf: PBKDF2-style stretching
// built from repeated invocations of bcrypt's internal Blowfish
// expand-key, each round hashed with SHA-512 per RFC 4253-adjacent OpenSSH
// convention (described in OpenSSH's bcrypt_pbkdf.c; there is no RFC).
// golang.org/x/crypto exposes blowfish's primitives but not OpenSSH's
// bcrypt hash construction directly, so it is reimplemented here on top of
// x/crypto/blowfish rather than pulled in as a second crypto dependency.
func bcryptPBKDF(passphrase, salt []byte, rounds int, keyLen int) []byte {
	const bcryptBlockSize = 32
	numBlocks := (keyLen + bcryptBlockSize - 1) / bcryptBlockSize

	out := make([]byte, numBlocks*bcryptBlockSize)
	shaPass := sha512.Sum512(passphrase)

	for block := 0; block < numBlocks; block++ {
		var countSalt [4]byte
		binary.BigEndian.PutUint32(countSalt[:], uint32(block+1))

		shaSalt := sha512.Sum512(append(append([]byte{}, salt...), countSalt[:]...))
		tmp := bcryptHash(shaPass[:], shaSalt[:])
		combined := append([]byte{}, tmp...)

		for r := 1; r < rounds; r++ {
			shaPassRound := sha512.Sum512(tmp)
			tmp = bcryptHash(shaPass[:], shaPassRound[:])
			for i := range combined {
				combined[i] ^= tmp[i]
			}
		}
		// each block's bytes are spread across the output: byte i of
		// block b lands at i*numBlocks+b.
		for i, v := range combined {
			out[i*numBlocks+block] = v
		}
	}
	return out[:keyLen]
}

// bcryptHash is OpenBSD bcrypt's "Blowfish in ECB mode over a fixed
// magic string, keyed by an Eksblowfish schedule seeded from sha512Pass
// and sha512Salt" step used internally by bcrypt_pbkdf. It returns 32
// bytes (four 64 bit blocks of the magic string "OxychromaticBlowfishSwatDynamite").
func bcryptHash(shaPass, shaSalt []byte) []byte {
	cipherBlock, _ := blowfish.NewSaltedCipher(shaPass, shaSalt)
	for i := 0; i < 64; i++ {
		blowfish.ExpandKey(shaSalt, cipherBlock)
		blowfish.ExpandKey(shaPass, cipherBlock)
	}
	magic := []byte("OxychromaticBlowfishSwatDynamite")
	out := make([]byte, len(magic))
	copy(out, magic)
	for i := 0; i < 64; i++ {
		for j := 0; j < len(out); j += 8 {
			cipherBlock.Encrypt(out[j:j+8], out[j:j+8])
		}
	}
	// bcrypt's output is little endian word swapped; OpenSSH's
	// bcrypt_pbkdf undoes that before using the bytes as key material.
	swapped := make([]byte, len(out))
	for i := 0; i < len(out); i += 4 {
		swapped[i], swapped[i+1], swapped[i+2], swapped[i+3] =
			out[i+3], out[i+2], out[i+1], out[i]
	}
	return swapped
}

func marshalPublicKeyLine(k PublicKey) string {
	return k.Type() + " " + base64.StdEncoding.EncodeToString(k.Marshal())
}

// MarshalPrivateKey encodes signer as a PEM "OPENSSH PRIVATE KEY" block in
// the same openssh-key-v1 container parseOpenSSHKey reads, unencrypted
// (cipher/kdf "none"). Only ed25519 signers are supported, mirroring
// parsePrivateSection's single supported key type.
func MarshalPrivateKey(signer Signer, comment string) ([]byte, error) {
	ed, ok := signer.(*ed25519Signer)
	if !ok {
		return nil, newKexError("MarshalPrivateKey: unsupported key type %T", signer)
	}

	pubBlob := ed.PublicKey().Marshal()

	var checkint [4]byte
	if _, err := rand.Read(checkint[:]); nil != err {
		return nil, err
	}

	var priv []byte
	priv = append(priv, checkint[:]...)
	priv = append(priv, checkint[:]...)
	priv = writeOSString(priv, hostAlgoEd25519)
	priv = writeOSBytes(priv, []byte(ed.priv.Public().(ed25519.PublicKey)))
	priv = writeOSBytes(priv, []byte(ed.priv))
	priv = writeOSString(priv, comment)

	const blockSize = 8
	for pad := byte(1); len(priv)%blockSize != 0; pad++ {
		priv = append(priv, pad)
	}

	var b []byte
	b = append(b, openSSHMagic...)
	b = writeOSString(b, "none")
	b = writeOSString(b, "none")
	b = writeOSString(b, "")
	var numKeys [4]byte
	binary.BigEndian.PutUint32(numKeys[:], 1)
	b = append(b, numKeys[:]...)
	b = writeOSBytes(b, pubBlob)
	b = writeOSBytes(b, priv)

	return pem.EncodeToMemory(&pem.Block{Type: "OPENSSH PRIVATE KEY", Bytes: b}), nil
}

func writeOSUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func writeOSString(b []byte, s string) []byte {
	b = writeOSUint32(b, uint32(len(s)))
	return append(b, s...)
}

func writeOSBytes(b []byte, v []byte) []byte {
	b = writeOSUint32(b, uint32(len(v)))
	return append(b, v...)
}
