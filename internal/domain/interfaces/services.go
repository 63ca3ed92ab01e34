package interfaces

import (
	"context"

	domaintypes "cipherlog/internal/domain/types"
)

// Cipher encrypts and decrypts message text under one set of group keys.
// Implementations are safe for concurrent use until Wipe is called.
type Cipher interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(ciphertext []byte) (string, error)
	GroupID() domaintypes.GroupID
	Wipe()
}

// CryptoEngine turns key material into a Cipher.
type CryptoEngine interface {
	// Open parses or derives keys without checking they work together.
	Open(ctx context.Context, km domaintypes.KeyMaterial) (Cipher, error)
	// Validate opens km and proves it with a probe round trip.
	Validate(ctx context.Context, km domaintypes.KeyMaterial) (Cipher, error)
}

// IdentityResolver derives the identity used for abuse control.
type IdentityResolver interface {
	Resolve(ctx context.Context) (domaintypes.Identity, error)
}

// MessageLog is the append-only encrypted group log.
type MessageLog interface {
	Open(ctx context.Context, group domaintypes.GroupID) error
	Append(ctx context.Context, author domaintypes.Username, text string) (domaintypes.Message, error)
	ReadAll(ctx context.Context) ([]domaintypes.Line, error)
	Poll(ctx context.Context) (changed bool, err error)
}

// AbuseController enforces the rate limit and the ban registry.
type AbuseController interface {
	CheckBan(ctx context.Context, id domaintypes.Identity) (*domaintypes.BanRecord, error)
	RecordMessage(
		ctx context.Context,
		window *domaintypes.RateWindow,
		id domaintypes.Identity,
	) (allowed bool, ban *domaintypes.BanRecord, err error)
}

// Presenter displays the transcript. It may be called from the polling
// goroutine, so implementations must be safe for concurrent use.
type Presenter interface {
	Render(lines []domaintypes.Line)
	Notify(err error)
}
