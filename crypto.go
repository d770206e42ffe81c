package ussh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"math/big"
	"sync"
)

// algorithm name constants, RFC 4253 section 6.
const (
	kexAlgoDH1SHA1    = "diffie-hellman-group1-sha1"
	kexAlgoDH14SHA1   = "diffie-hellman-group14-sha1"
	kexAlgoDH14SHA256 = "diffie-hellman-group14-sha256"
	kexAlgoDH14SHA512 = "diffie-hellman-group14-sha512"

	hostAlgoRSA = "ssh-rsa"
	hostAlgoEd25519 = "ssh-ed25519"

	cipherAES128CTR = "aes128-ctr"
	cipherAES256CTR = "aes256-ctr"

	macHMACSHA1   = "hmac-sha1"
	macHMACSHA256 = "hmac-sha2-256"
	macHMACSHA512 = "hmac-sha2-512"

	compressionNone = "none"

	serviceUserAuth = "ssh-userauth"
	serviceConn     = "ssh-connection"
)

var defaultKexOrder = []string{kexAlgoDH14SHA512, kexAlgoDH14SHA256, kexAlgoDH14SHA1, kexAlgoDH1SHA1}
var defaultHostKeyOrder = []string{hostAlgoEd25519, hostAlgoRSA}
var defaultCipherOrder = []string{cipherAES256CTR, cipherAES128CTR}
var defaultMACOrder = []string{macHMACSHA256, macHMACSHA512, macHMACSHA1}

// CryptoConfig lets callers narrow the algorithms offered during key
// exchange. A nil slice means "use the built in default order".
type CryptoConfig struct {
	KeyExchanges []string
	HostKeys     []string
	Ciphers      []string
	MACs         []string
}

func (c *CryptoConfig) kexes() []string {
	if nil == c || nil == c.KeyExchanges {
		return defaultKexOrder
	}
	return c.KeyExchanges
}

func (c *CryptoConfig) hostKeys() []string {
	if nil == c || nil == c.HostKeys {
		return defaultHostKeyOrder
	}
	return c.HostKeys
}

func (c *CryptoConfig) ciphers() []string {
	if nil == c || nil == c.Ciphers {
		return defaultCipherOrder
	}
	return c.Ciphers
}

func (c *CryptoConfig) macs() []string {
	if nil == c || nil == c.MACs {
		return defaultMACOrder
	}
	return c.MACs
}

func findCommon(what string, client, server []string) (agreed string, err error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", newKexError("no common %s algorithm: client=%v server=%v", what, client, server)
}

// dhGroup is a multiplicative group usable for Diffie-Hellman key
// agreement, RFC 4253 section 8.
type dhGroup struct {
	g, p *big.Int
}

func (g *dhGroup) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	// RFC 4253 section 8 requires 1 < f < p-1, i.e. f in [2, p-2].
	if theirPublic.Cmp(big.NewInt(2)) < 0 ||
		theirPublic.Cmp(new(big.Int).Sub(g.p, big.NewInt(2))) > 0 {
		return nil, newKexError("DH parameter out of bounds")
	}
	return new(big.Int).Exp(theirPublic, myPrivate, g.p), nil
}

var (
	dhGroup1Once  sync.Once
	dhGroup1_     *dhGroup
	dhGroup14Once sync.Once
	dhGroup14_    *dhGroup
)

// dhGroup1 is Oakley Group 2 (RFC 2409), used by diffie-hellman-group1-sha1.
func dhGroup1() *dhGroup {
	dhGroup1Once.Do(func() {
		p, _ := new(big.Int).SetString("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD"+
			"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B"+
			"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0"+
			"BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FF"+
			"FFFFFFFFFFFFFF", 16)
		dhGroup1_ = &dhGroup{g: big.NewInt(2), p: p}
	})
	return dhGroup1_
}

// dhGroup14 is Oakley Group 14 (RFC 3526), used by diffie-hellman-group14-*.
func dhGroup14() *dhGroup {
	dhGroup14Once.Do(func() {
		p, _ := new(big.Int).SetString("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD"+
			"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B"+
			"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0"+
			"BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2"+
			"007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C6"+
			"2F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C3290"+
			"5E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BC"+
			"BF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFF"+
			"FFFFFFFFFF", 16)
		dhGroup14_ = &dhGroup{g: big.NewInt(2), p: p}
	})
	return dhGroup14_
}

func kexHash(name string) func() hash.Hash {
	switch name {
	case kexAlgoDH1SHA1:
		return sha1.New
	case kexAlgoDH14SHA1:
		return sha1.New
	case kexAlgoDH14SHA256:
		return sha256.New
	case kexAlgoDH14SHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

func kexGroup(name string) *dhGroup {
	switch name {
	case kexAlgoDH1SHA1:
		return dhGroup1()
	case kexAlgoDH14SHA1, kexAlgoDH14SHA256, kexAlgoDH14SHA512:
		return dhGroup14()
	default:
		return dhGroup14()
	}
}

// cipherParams describes the key and IV sizes the named cipher requires and
// constructs a cipher.Stream for it (RFC 4253 section 6.3 - all the ciphers
// this package supports are CTR mode stream ciphers built from block
// ciphers).
type cipherParams struct {
	keySize int
	ivSize  int
	newBlock func(key []byte) (cipher.Block, error)
}

var cipherParamsFor = map[string]cipherParams{
	cipherAES128CTR: {keySize: 16, ivSize: aes.BlockSize, newBlock: aes.NewCipher},
	cipherAES256CTR: {keySize: 32, ivSize: aes.BlockSize, newBlock: aes.NewCipher},
}

func newCTRStream(name string, key, iv []byte) (cipher.Stream, error) {
	p, ok := cipherParamsFor[name]
	if !ok {
		return nil, newKexError("unsupported cipher %q", name)
	}
	block, err := p.newBlock(key)
	if nil != err {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}

type macParams struct {
	keySize int
	newHash func() hash.Hash
}

var macParamsFor = map[string]macParams{
	macHMACSHA1:   {keySize: 20, newHash: sha1.New},
	macHMACSHA256: {keySize: 32, newHash: sha256.New},
	macHMACSHA512: {keySize: 64, newHash: sha512.New},
}

func newHMAC(name string, key []byte) (hash.Hash, error) {
	p, ok := macParamsFor[name]
	if !ok {
		return nil, newKexError("unsupported mac %q", name)
	}
	return hmac.New(p.newHash, key), nil
}

// sessionKeys holds the six values derived from K and H per RFC 4253
// section 7.2: initial IV, encryption key and integrity key, one triple
// for each direction.
type sessionKeys struct {
	ivCtoS, ivStoC     []byte
	encCtoS, encStoC   []byte
	macCtoS, macStoC   []byte
}

// deriveKey implements RFC 4253 section 7.2's key derivation function:
// HASH(K || H || letter || sessionID), extended by repeated hashing when
// more bytes are needed than a single hash digest provides.
func deriveKey(hashFn func() hash.Hash, size int, k []byte, h []byte, letter byte, sessionID []byte) []byte {
	out := make([]byte, 0, size)
	var digest []byte
	for len(out) < size {
		hs := hashFn()
		hs.Write(k)
		hs.Write(h)
		if 0 == len(digest) {
			hs.Write([]byte{letter})
			hs.Write(sessionID)
		} else {
			hs.Write(digest)
		}
		digest = hs.Sum(nil)
		out = append(out, digest...)
	}
	return out[:size]
}

func deriveSessionKeys(
	hashFn func() hash.Hash,
	cipherName, macName string,
	k, h, sessionID []byte,
) (rv sessionKeys) {

	ivSize := cipherParamsFor[cipherName].ivSize
	encSize := cipherParamsFor[cipherName].keySize
	macSize := macParamsFor[macName].keySize

	rv.ivCtoS = deriveKey(hashFn, ivSize, k, h, 'A', sessionID)
	rv.ivStoC = deriveKey(hashFn, ivSize, k, h, 'B', sessionID)
	rv.encCtoS = deriveKey(hashFn, encSize, k, h, 'C', sessionID)
	rv.encStoC = deriveKey(hashFn, encSize, k, h, 'D', sessionID)
	rv.macCtoS = deriveKey(hashFn, macSize, k, h, 'E', sessionID)
	rv.macStoC = deriveKey(hashFn, macSize, k, h, 'F', sessionID)
	return
}
