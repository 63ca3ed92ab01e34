package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"

	"cipherlog/internal/domain"
	"cipherlog/internal/util/memzero"
)

const (
	// PBKDF2Iterations is fixed; changing it orphans every existing log.
	PBKDF2Iterations = 100000
	// KeySize is the derived key length in bytes.
	KeySize = 32
	// SaltSize is the length of a generated salt.
	SaltSize = 16
)

var staticSalt = []byte("StaticSaltForDemo")

var errShortCiphertext = errors.New("ciphertext too short")

// StaticSalt returns a copy of the fixed demo salt used when no per-group
// salt has been provisioned.
func StaticSalt() []byte { return append([]byte(nil), staticSalt...) }

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey stretches passphrase into a KeySize key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

type passphraseCipher struct {
	mu    sync.RWMutex
	key   []byte
	aead  cipher.AEAD
	group domain.GroupID
}

func newPassphraseCipher(passphrase string, salt []byte, aeadName string) (*passphraseCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", domain.ErrInvalidKeyMaterial)
	}
	if len(salt) == 0 {
		salt = staticSalt
	}
	key := DeriveKey(passphrase, salt)
	aead, err := newAEAD(aeadName, key)
	if err != nil {
		memzero.Zero(key)
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidKeyMaterial, err)
	}
	return &passphraseCipher{key: key, aead: aead, group: GroupIDFromKey(key)}, nil
}

func (c *passphraseCipher) Encrypt(plaintext string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aead == nil {
		return nil, fmt.Errorf("%w: cipher wiped", domain.ErrEncryptionFailure)
	}
	out, err := seal(c.aead, []byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncryptionFailure, err)
	}
	return out, nil
}

func (c *passphraseCipher) Decrypt(ciphertext []byte) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aead == nil {
		return "", domain.ErrUndecryptable
	}
	pt, err := open(c.aead, ciphertext)
	if err != nil || !utf8.Valid(pt) {
		return "", domain.ErrUndecryptable
	}
	return string(pt), nil
}

func (c *passphraseCipher) GroupID() domain.GroupID { return c.group }

func (c *passphraseCipher) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	memzero.Zero(c.key)
	c.key = nil
	c.aead = nil
}
