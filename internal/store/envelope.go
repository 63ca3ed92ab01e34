package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"cipherlog/internal/util/memzero"
)

const (
	envelopeVersion = 1
	envelopeSaltLen = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrWrongPassphrase is returned when the passphrase or bound data does not
// match, or the envelope has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted envelope")

// envelope is the persisted form of a sealed value. The scrypt parameters
// travel with it so they can be raised without orphaning old envelopes.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// Seal encrypts raw under a key stretched from passphrase. bind is
// authenticated but not stored; Unseal must be given the same bytes.
func Seal(passphrase string, raw, bind []byte) ([]byte, error) {
	env := envelope{
		V:     envelopeVersion,
		Salt:  make([]byte, envelopeSaltLen),
		N:     scryptN,
		R:     scryptR,
		P:     scryptP,
		Nonce: make([]byte, chacha20poly1305.NonceSize),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}

	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	env.Cipher = aead.Seal(nil, env.Nonce, raw, env.associated(bind))
	return json.Marshal(env)
}

// Unseal opens an envelope produced by Seal with the same bind bytes.
func Unseal(passphrase string, b, bind []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.V)
	}
	if len(env.Nonce) != chacha20poly1305.NonceSize {
		return nil, ErrWrongPassphrase
	}

	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, env.Nonce, env.Cipher, env.associated(bind))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// associated binds the salt and the caller's bind bytes.
func (e envelope) associated(bind []byte) []byte {
	ad := make([]byte, 0, len(e.Salt)+len(bind))
	ad = append(ad, e.Salt...)
	return append(ad, bind...)
}
