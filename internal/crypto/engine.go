package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cipherlog/internal/domain"
	"cipherlog/internal/worker"
)

// probe is the plaintext used to prove key material round-trips.
const probe = "test"

// DefaultTimeout bounds key derivation and probe validation.
const DefaultTimeout = 10 * time.Second

// Options configure an Engine.
type Options struct {
	// Cipher selects the passphrase-scheme AEAD (CipherAESGCM by default).
	Cipher string
	// Timeout bounds each CPU-bound step. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Engine opens and validates group key material.
type Engine struct {
	opts Options
}

var _ domain.CryptoEngine = (*Engine)(nil)

// NewEngine returns an Engine with opts applied over the defaults.
func NewEngine(opts Options) *Engine {
	if opts.Cipher == "" {
		opts.Cipher = CipherAESGCM
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Engine{opts: opts}
}

// Open parses or derives keys from km.
func (e *Engine) Open(ctx context.Context, km domain.KeyMaterial) (domain.Cipher, error) {
	c, err := worker.Run(ctx, e.opts.Timeout, func() (domain.Cipher, error) {
		return e.open(km)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidKeyMaterial) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidKeyMaterial, err)
	}
	return c, nil
}

func (e *Engine) open(km domain.KeyMaterial) (domain.Cipher, error) {
	switch km.Scheme {
	case domain.SchemeRSAOAEP:
		c, err := newRSACipher(km.PublicKeyPEM, km.PrivateKeyPEM)
		if err != nil {
			return nil, err
		}
		return c, nil
	case domain.SchemePassphrase:
		c, err := newPassphraseCipher(km.Passphrase, km.Salt, e.opts.Cipher)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", domain.ErrInvalidKeyMaterial, km.Scheme)
	}
}

// Validate opens km, encrypts the probe and decrypts it again. Encryption
// failure reports domain.ErrInvalidPublicKey; a failed or wrong decrypt
// reports domain.ErrKeyMismatch.
func (e *Engine) Validate(ctx context.Context, km domain.KeyMaterial) (domain.Cipher, error) {
	c, err := e.Open(ctx, km)
	if err != nil {
		return nil, err
	}

	ct, err := worker.Run(ctx, e.opts.Timeout, func() ([]byte, error) {
		return c.Encrypt(probe)
	})
	if err != nil {
		c.Wipe()
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPublicKey, err)
	}

	pt, err := worker.Run(ctx, e.opts.Timeout, func() (string, error) {
		return c.Decrypt(ct)
	})
	if err != nil || pt != probe {
		c.Wipe()
		return nil, domain.ErrKeyMismatch
	}
	return c, nil
}

// Valid reports whether km passes Validate.
func (e *Engine) Valid(ctx context.Context, km domain.KeyMaterial) bool {
	c, err := e.Validate(ctx, km)
	if err != nil {
		return false
	}
	c.Wipe()
	return true
}

// Encrypt is a one-shot helper around Open and Cipher.Encrypt.
func (e *Engine) Encrypt(ctx context.Context, km domain.KeyMaterial, plaintext string) ([]byte, error) {
	c, err := e.Open(ctx, km)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncryptionFailure, err)
	}
	defer c.Wipe()
	return worker.Run(ctx, e.opts.Timeout, func() ([]byte, error) {
		return c.Encrypt(plaintext)
	})
}

// Decrypt is a one-shot helper around Open and Cipher.Decrypt. Every
// failure, including unusable key material, is domain.ErrUndecryptable.
func (e *Engine) Decrypt(ctx context.Context, km domain.KeyMaterial, ciphertext []byte) (string, error) {
	c, err := e.Open(ctx, km)
	if err != nil {
		return "", domain.ErrUndecryptable
	}
	defer c.Wipe()
	pt, err := worker.Run(ctx, e.opts.Timeout, func() (string, error) {
		return c.Decrypt(ciphertext)
	})
	if err != nil {
		return "", domain.ErrUndecryptable
	}
	return pt, nil
}
