package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrInvalidPublicKey   = fmt.Errorf("%w: invalid public key", ErrInvalidKeyMaterial)
	ErrKeyMismatch        = fmt.Errorf("%w: invalid private key or key mismatch", ErrInvalidKeyMaterial)
	ErrEncryptionFailure  = errors.New("encryption failed")
	ErrUndecryptable      = errors.New("entry cannot be decrypted")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrBannedAccess       = errors.New("access denied")
	ErrNotConnected       = errors.New("session not connected")
	ErrAlreadyConnected   = errors.New("session already connected")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports every missing or malformed input field at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// BanError carries the ban that blocked an operation. Cause is
// ErrBannedAccess for an existing ban and ErrRateLimitExceeded when the
// current send issued it.
type BanError struct {
	Record BanRecord
	Cause  error
}

func (e *BanError) Error() string {
	return fmt.Sprintf("%v until %s (%s)",
		e.Cause, e.Record.ExpiresAt.Local().Format(time.RFC1123), e.Record.Reason)
}

func (e *BanError) Unwrap() error { return e.Cause }
