package abuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/metrics"
)

const (
	bansKey = "cipherlog/bans"

	DefaultLimit       = 30
	DefaultWindow      = time.Minute
	DefaultBanDuration = 24 * time.Hour

	// ReasonRateLimit is recorded on bans issued by RecordMessage.
	ReasonRateLimit = "rate limit exceeded"

	casAttempts = 5
)

// ErrContention is returned when every compare-and-swap on the registry
// lost to a concurrent writer.
var ErrContention = errors.New("ban registry changed concurrently, ban not persisted")

// Config tunes the controller. Zero fields take the defaults.
type Config struct {
	Limit       int
	Window      time.Duration
	BanDuration time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.BanDuration <= 0 {
		c.BanDuration = DefaultBanDuration
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Controller implements domain.AbuseController over a shared store.
type Controller struct {
	store   domain.KVStore
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New returns a controller persisting bans to store.
func New(store domain.KVStore, cfg Config, log *logrus.Entry, m *metrics.Metrics) *Controller {
	return &Controller{
		store:   store,
		cfg:     cfg.withDefaults(),
		log:     logging.OrDiscard(log),
		metrics: metrics.OrNew(m),
	}
}

// CheckBan returns the first active ban matching id, or nil.
func (c *Controller) CheckBan(_ context.Context, id domain.Identity) (*domain.BanRecord, error) {
	now := c.cfg.Clock()
	for _, rec := range c.load() {
		if rec.Matches(id) && rec.Active(now) {
			rec := rec
			return &rec, nil
		}
	}
	return nil, nil
}

// RecordMessage counts one send against window. The first send after the
// window lapses starts a new window with a count of one. A send that takes
// the count past the limit is refused and bans id.
func (c *Controller) RecordMessage(
	ctx context.Context,
	window *domain.RateWindow,
	id domain.Identity,
) (bool, *domain.BanRecord, error) {
	now := c.cfg.Clock()
	elapsed := now.Sub(window.WindowStart)
	if window.WindowStart.IsZero() || elapsed < 0 || elapsed >= c.cfg.Window {
		window.WindowStart = now
		window.Count = 1
		return true, nil, nil
	}

	window.Count++
	if window.Count <= c.cfg.Limit {
		return true, nil, nil
	}

	c.metrics.RateLimited.Inc()
	rec, err := c.Ban(ctx, id, ReasonRateLimit)
	return false, rec, err
}

// Ban records a ban against id for the configured duration.
func (c *Controller) Ban(_ context.Context, id domain.Identity, reason string) (*domain.BanRecord, error) {
	now := c.cfg.Clock()
	rec := domain.BanRecord{
		IdentityHash: id.IdentityHash,
		DeviceToken:  id.DeviceToken,
		Reason:       reason,
		IssuedAt:     now.UTC(),
		ExpiresAt:    now.Add(c.cfg.BanDuration).UTC(),
	}

	persisted := false
	for attempt := 1; attempt <= casAttempts; attempt++ {
		bans, raw := c.read()
		kept := make([]domain.BanRecord, 0, len(bans)+1)
		for _, b := range bans {
			if b.Active(now) {
				kept = append(kept, b)
			}
		}
		kept = append(kept, rec)

		b, err := json.Marshal(kept)
		if err != nil {
			return &rec, err
		}
		ok, err := c.write(raw, b)
		if err != nil {
			return &rec, fmt.Errorf("persist ban: %w", err)
		}
		if ok {
			persisted = true
			break
		}
		c.log.WithField("attempt", attempt).Debug("ban lost a swap, retrying")
	}
	if !persisted {
		return &rec, ErrContention
	}

	c.metrics.BansIssued.Inc()
	c.log.WithFields(logrus.Fields{
		"identity": id.IdentityHash,
		"expires":  rec.ExpiresAt,
		"reason":   reason,
	}).Warn("ban issued")
	return &rec, nil
}

// Bans returns every ban in the registry that is still active.
func (c *Controller) Bans() []domain.BanRecord {
	now := c.cfg.Clock()
	var out []domain.BanRecord
	for _, b := range c.load() {
		if b.Active(now) {
			out = append(out, b)
		}
	}
	return out
}

// load reads the registry. Unreadable or malformed data counts as empty.
func (c *Controller) load() []domain.BanRecord {
	bans, _ := c.read()
	return bans
}

// read returns the registry and the raw bytes it was decoded from, for
// use as the expected value of a swap.
func (c *Controller) read() ([]domain.BanRecord, []byte) {
	b, ok, err := c.store.Get(bansKey)
	if err != nil {
		c.log.WithError(err).Warn("read ban registry")
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	var bans []domain.BanRecord
	if err := json.Unmarshal(b, &bans); err != nil {
		c.log.WithError(err).Warn("ban registry malformed, treating as empty")
		return nil, b
	}
	return bans, b
}

func (c *Controller) write(old, b []byte) (bool, error) {
	if s, ok := c.store.(domain.Swapper); ok {
		return s.CompareAndSwap(bansKey, old, b)
	}
	return true, c.store.Set(bansKey, b)
}

// Compile-time assertion that Controller implements domain.AbuseController.
var _ domain.AbuseController = (*Controller)(nil)
