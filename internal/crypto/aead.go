package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD choices for the passphrase scheme.
const (
	CipherAESGCM           = "aes-gcm"
	CipherChaCha20Poly1305 = "chacha20poly1305"
)

// ValidCipher reports whether name is a supported AEAD.
func ValidCipher(name string) bool {
	return name == CipherAESGCM || name == CipherChaCha20Poly1305
}

func newAEAD(name string, key []byte) (cipher.AEAD, error) {
	switch name {
	case CipherAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case CipherChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("unsupported cipher %q", name)
	}
}

// seal encrypts plaintext under a fresh random nonce and returns
// nonce || ciphertext.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out, plaintext, nil), nil
}

// open reverses seal.
func open(aead cipher.AEAD, sealed []byte) ([]byte, error) {
	n := aead.NonceSize()
	if len(sealed) < n+aead.Overhead() {
		return nil, errShortCiphertext
	}
	return aead.Open(nil, sealed[:n], sealed[n:], nil)
}
