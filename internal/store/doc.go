// Package store provides the shared key-value stores cipherlog persists to.
//
// Every store implements domain.KVStore and domain.Swapper, so the message
// log can append with compare-and-swap instead of a blind overwrite. Values
// are opaque bytes; callers own their encoding.
//
// The package includes:
//   - FileStore: one file per key under a directory, written via temp file
//     and rename
//   - BadgerStore: an embedded Badger database with transactional swaps
//   - MemoryStore: a process-local map for tests and throwaway sessions
//   - Seal/Unseal: a passphrase envelope (scrypt + ChaCha20-Poly1305) for
//     values that must not sit in the clear, such as cached credentials
package store
