package identity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
)

const (
	deviceTokenKey = "cipherlog/device-token"
	// unknownOrigin is hashed when the origin cannot be determined, so
	// every such participant shares one identity hash.
	unknownOrigin = "unknown"
)

// Service resolves identities from an origin source and the shared store.
type Service struct {
	store  domain.KVStore
	origin OriginSource
	log    *logrus.Entry
}

// New returns an identity service. A nil origin falls back to HostOrigin.
func New(store domain.KVStore, origin OriginSource, log *logrus.Entry) *Service {
	if origin == nil {
		origin = HostOrigin{}
	}
	return &Service{store: store, origin: origin, log: logging.OrDiscard(log)}
}

// Resolve returns the current identity, creating and persisting the device
// token on first use. A token that cannot be read is an error; only a
// missing or malformed one is replaced.
func (s *Service) Resolve(ctx context.Context) (domain.Identity, error) {
	origin, err := s.origin.Origin(ctx)
	if err != nil || origin == "" {
		s.log.WithError(err).Warn("origin unavailable, using fallback")
		origin = unknownOrigin
	}
	token, err := s.deviceToken()
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{IdentityHash: HashOrigin(origin), DeviceToken: token}, nil
}

// HashOrigin returns the xxhash64 of origin in hex.
func HashOrigin(origin string) string {
	return strconv.FormatUint(xxhash.Sum64String(origin), 16)
}

func (s *Service) deviceToken() (string, error) {
	b, ok, err := s.store.Get(deviceTokenKey)
	if err != nil {
		return "", fmt.Errorf("read device token: %w", err)
	}
	if ok {
		if id, perr := uuid.ParseBytes(b); perr == nil {
			return id.String(), nil
		}
		s.log.Warn("stored device token malformed, replacing")
	}

	token := uuid.NewString()
	if err := s.store.Set(deviceTokenKey, []byte(token)); err != nil {
		return "", fmt.Errorf("persist device token: %w", err)
	}
	s.log.Debug("issued device token")
	return token, nil
}

// Compile-time assertion that Service implements domain.IdentityResolver.
var _ domain.IdentityResolver = (*Service)(nil)
