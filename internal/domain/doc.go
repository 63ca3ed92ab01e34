// Package domain defines the core data models, contracts and error
// sentinels shared across cipherlog.
//
// It contains plain types (key material, log entries, ban records) and
// interfaces (stores, the crypto engine, services, presenters) only.
// Concrete implementations live under internal/crypto, internal/store and
// internal/services.
package domain
