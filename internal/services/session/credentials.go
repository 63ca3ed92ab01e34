package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/store"
)

const credentialsKey = "cipherlog/credentials"

// ErrLocked is returned by Recall when cached credentials are sealed and
// no lock passphrase was given.
var ErrLocked = errors.New("cached credentials are locked")

type cachedCredentials struct {
	Username string `json:"username"`
	// Sealed marks Data as a store.Seal blob rather than plain JSON.
	Sealed bool   `json:"sealed"`
	Data   []byte `json:"data"`
}

// CredentialCache remembers a member's username and key material across
// runs. Nothing is cached unless Remember is called.
type CredentialCache struct {
	store domain.KVStore
	log   *logrus.Entry
}

// NewCredentialCache returns a cache backed by store.
func NewCredentialCache(store domain.KVStore, log *logrus.Entry) *CredentialCache {
	return &CredentialCache{store: store, log: logging.OrDiscard(log)}
}

// Remember stores username and km. A non-empty lock seals the key
// material with that passphrase; otherwise it is stored in the clear.
func (c *CredentialCache) Remember(username string, km domain.KeyMaterial, lock string) error {
	raw, err := json.Marshal(km)
	if err != nil {
		return err
	}
	entry := cachedCredentials{Username: username, Data: raw}
	if lock != "" {
		if entry.Data, err = store.Seal(lock, raw, []byte(username)); err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
		entry.Sealed = true
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.store.Set(credentialsKey, b); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	c.log.WithField("sealed", entry.Sealed).Info("credentials cached")
	return nil
}

// Recall returns the cached username and key material. ok is false when
// nothing usable is cached.
func (c *CredentialCache) Recall(lock string) (username string, km domain.KeyMaterial, ok bool, err error) {
	b, present, err := c.store.Get(credentialsKey)
	if err != nil {
		c.log.WithError(err).Warn("read cached credentials")
		return "", domain.KeyMaterial{}, false, nil
	}
	if !present {
		return "", domain.KeyMaterial{}, false, nil
	}

	var entry cachedCredentials
	if err := json.Unmarshal(b, &entry); err != nil {
		c.log.WithError(err).Warn("cached credentials malformed, ignoring")
		return "", domain.KeyMaterial{}, false, nil
	}
	raw := entry.Data
	if entry.Sealed {
		if lock == "" {
			return "", domain.KeyMaterial{}, false, ErrLocked
		}
		if raw, err = store.Unseal(lock, entry.Data, []byte(entry.Username)); err != nil {
			return "", domain.KeyMaterial{}, false, err
		}
	}
	if err := json.Unmarshal(raw, &km); err != nil || !km.Scheme.Valid() {
		c.log.Warn("cached key material malformed, ignoring")
		return "", domain.KeyMaterial{}, false, nil
	}
	return entry.Username, km, true, nil
}

// Forget removes cached credentials.
func (c *CredentialCache) Forget() error {
	if err := c.store.Remove(credentialsKey); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	c.log.Info("credentials forgotten")
	return nil
}
