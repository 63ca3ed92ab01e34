// Package crypto implements the two group-key schemes cipherlog supports.
//
// Contents
//
//   - RSA-OAEP (SHA-256) hybrid envelopes: a fresh AES-256-GCM key per
//     message, wrapped under the group public key (GenerateKeyPair)
//   - Passphrase keys derived with PBKDF2-HMAC-SHA256 and sealed with
//     AES-GCM or ChaCha20-Poly1305 (DeriveKey, StaticSalt, NewSalt)
//   - Key material validation by probe round trip (Engine.Validate)
//   - Group identities derived from key material (GroupIDFromPublicKey,
//     GroupIDFromKey)
//
// # Notes
//
// Decryption never panics and never returns partial plaintext: every
// failure collapses to domain.ErrUndecryptable. Key derivation and probe
// validation run through internal/worker so callers can bound them with a
// context and a timeout.
package crypto
