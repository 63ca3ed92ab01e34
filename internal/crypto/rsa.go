package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"cipherlog/internal/domain"
	"cipherlog/internal/util/memzero"
)

const (
	// DefaultRSABits is the key size GenerateKeyPair uses when given 0.
	DefaultRSABits = 2048

	envelopeVersion = 1
	contentKeySize  = 32
)

// GenerateKeyPair creates a group key pair and returns it PEM encoded:
// the public key as PKIX "PUBLIC KEY" and the private key as PKCS#1
// "RSA PRIVATE KEY".
func GenerateKeyPair(bits int) (publicPEM, privatePEM string, err error) {
	if bits == 0 {
		bits = DefaultRSABits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", err
	}
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
	return publicPEM, privatePEM, nil
}

// ParsePublicKey accepts PKIX or PKCS#1 PEM.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key: %T", key)
	}
	return pub, nil
}

// ParsePrivateKey accepts PKCS#1 or PKCS#8 PEM.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return priv, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key: %T", key)
	}
	return priv, nil
}

// rsaCipher seals each message under a fresh AES-256-GCM key and wraps
// that key with RSA-OAEP. Envelope layout:
//
//	version(1) | wrappedLen(2, big endian) | wrapped | nonce | sealed
type rsaCipher struct {
	mu    sync.RWMutex
	pub   *rsa.PublicKey
	priv  *rsa.PrivateKey
	group domain.GroupID
}

func newRSACipher(publicPEM, privatePEM string) (*rsaCipher, error) {
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}
	priv, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrKeyMismatch, err)
	}
	priv.Precompute()
	return &rsaCipher{pub: pub, priv: priv, group: GroupIDFromPublicKey(der)}, nil
}

func (c *rsaCipher) Encrypt(plaintext string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pub == nil {
		return nil, fmt.Errorf("%w: cipher wiped", domain.ErrEncryptionFailure)
	}
	out, err := c.encrypt([]byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncryptionFailure, err)
	}
	return out, nil
}

func (c *rsaCipher) encrypt(plaintext []byte) ([]byte, error) {
	contentKey := make([]byte, contentKeySize)
	defer memzero.Zero(contentKey)
	if _, err := rand.Read(contentKey); err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.pub, contentKey, nil)
	if err != nil {
		return nil, err
	}
	aead, err := contentAEAD(contentKey)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(aead, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 3+len(wrapped)+len(sealed))
	out = append(out, envelopeVersion)
	out = binary.BigEndian.AppendUint16(out, uint16(len(wrapped)))
	out = append(out, wrapped...)
	return append(out, sealed...), nil
}

func (c *rsaCipher) Decrypt(ciphertext []byte) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.priv == nil {
		return "", domain.ErrUndecryptable
	}
	pt, err := c.decrypt(ciphertext)
	if err != nil || !utf8.Valid(pt) {
		return "", domain.ErrUndecryptable
	}
	return string(pt), nil
}

func (c *rsaCipher) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 3 || ciphertext[0] != envelopeVersion {
		return nil, errShortCiphertext
	}
	n := int(binary.BigEndian.Uint16(ciphertext[1:3]))
	body := ciphertext[3:]
	if len(body) < n {
		return nil, errShortCiphertext
	}
	contentKey, err := rsa.DecryptOAEP(sha256.New(), nil, c.priv, body[:n], nil)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(contentKey)
	if len(contentKey) != contentKeySize {
		return nil, errors.New("unexpected content key size")
	}
	aead, err := contentAEAD(contentKey)
	if err != nil {
		return nil, err
	}
	return open(aead, body[n:])
}

func (c *rsaCipher) GroupID() domain.GroupID { return c.group }

func (c *rsaCipher) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pub = nil
	c.priv = nil
}

func contentAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
