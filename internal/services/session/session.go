package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/metrics"
	"cipherlog/internal/validation"
)

const (
	saltKey = "cipherlog/salt"

	DefaultPollInterval = time.Second
)

// State is the lifecycle position of a Session.
type State int32

const (
	Disconnected State = iota
	Validating
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Validating:
		return "validating"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SaltMode selects where passphrase salts come from.
type SaltMode string

const (
	// SaltStatic uses the fixed demo salt.
	SaltStatic SaltMode = "static"
	// SaltPersisted generates a random salt once and stores it for every
	// member to reuse.
	SaltPersisted SaltMode = "persisted"
)

// Valid reports whether m is a known salt mode.
func (m SaltMode) Valid() bool { return m == SaltStatic || m == SaltPersisted }

// LogOpener builds the message log for a validated cipher.
type LogOpener func(c domain.Cipher) domain.MessageLog

// Deps are the collaborators a Session drives.
type Deps struct {
	Engine   domain.CryptoEngine
	Resolver domain.IdentityResolver
	Abuse    domain.AbuseController
	OpenLog  LogOpener
	// Store holds the persisted passphrase salt.
	Store   domain.KVStore
	Metrics *metrics.Metrics
	Log     *logrus.Entry
}

// Config tunes a Session. Zero fields take the defaults.
type Config struct {
	PollInterval time.Duration
	SaltMode     SaltMode
}

// Session is one member's connection to a group. Its methods are safe for
// concurrent use.
type Session struct {
	deps      Deps
	cfg       Config
	presenter domain.Presenter
	log       *logrus.Entry
	metrics   *metrics.Metrics

	// sendMu serialises sends and guards window.
	sendMu sync.Mutex
	window domain.RateWindow

	mu       sync.Mutex
	state    State
	username domain.Username
	identity domain.Identity
	cipher   domain.Cipher
	chat     domain.MessageLog
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a disconnected Session rendering to presenter. A nil
// presenter discards output.
func New(deps Deps, cfg Config, presenter domain.Presenter) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SaltMode == "" {
		cfg.SaltMode = SaltStatic
	}
	if presenter == nil {
		presenter = discardPresenter{}
	}
	return &Session{
		deps:      deps,
		cfg:       cfg,
		presenter: presenter,
		log:       logging.OrDiscard(deps.Log),
		metrics:   metrics.OrNew(deps.Metrics),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the connected display name, or "" when disconnected.
func (s *Session) Username() domain.Username {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Group returns the connected group identity, or "" when disconnected.
func (s *Session) Group() domain.GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cipher == nil {
		return ""
	}
	return s.cipher.GroupID()
}

// Identity returns the identity resolved at connect time.
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Connect refuses banned identities, validates input, proves km and
// starts polling the group log. On any failure the session is left
// Disconnected.
func (s *Session) Connect(ctx context.Context, km domain.KeyMaterial, username string) (err error) {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return domain.ErrAlreadyConnected
	}
	s.state = Validating
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.setState(Disconnected)
			s.log.WithError(err).Info("connect failed")
		}
	}()

	id, err := s.deps.Resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	ban, err := s.deps.Abuse.CheckBan(ctx, id)
	if err != nil {
		return fmt.Errorf("check ban: %w", err)
	}
	if ban != nil {
		return &domain.BanError{Record: *ban, Cause: domain.ErrBannedAccess}
	}

	username = strings.TrimSpace(username)
	if err := validation.Connect(username, km); err != nil {
		return err
	}

	if km.Scheme == domain.SchemePassphrase && len(km.Salt) == 0 {
		if km.Salt, err = s.salt(); err != nil {
			return err
		}
	}
	c, err := s.deps.Engine.Validate(ctx, km)
	if err != nil {
		return err
	}

	chat := s.deps.OpenLog(c)
	if err := chat.Open(ctx, c.GroupID()); err != nil {
		c.Wipe()
		return fmt.Errorf("open log: %w", err)
	}

	s.sendMu.Lock()
	s.window = domain.RateWindow{}
	s.sendMu.Unlock()

	pollCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.username = domain.Username(username)
	s.identity = id
	s.cipher = c
	s.chat = chat
	s.cancel = cancel
	s.state = Connected
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pollLoop(pollCtx, chat, domain.Username(username))

	s.log.WithFields(logrus.Fields{
		"user":  username,
		"group": c.GroupID().Short(),
	}).Info("connected")
	s.render(ctx, chat, domain.Username(username))
	return nil
}

// Send rate-limits, encrypts and appends text. Surrounding whitespace is
// trimmed. A send that exceeds the rate limit bans the identity, ends the
// session and returns a *domain.BanError wrapping
// domain.ErrRateLimitExceeded.
func (s *Session) Send(ctx context.Context, text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	state, chat, username, id := s.state, s.chat, s.username, s.identity
	s.mu.Unlock()
	if state != Connected {
		return domain.ErrNotConnected
	}

	text = strings.TrimSpace(text)
	if err := validation.Message(string(username), text); err != nil {
		return err
	}

	ban, err := s.deps.Abuse.CheckBan(ctx, id)
	if err != nil {
		return fmt.Errorf("check ban: %w", err)
	}
	if ban != nil {
		berr := &domain.BanError{Record: *ban, Cause: domain.ErrBannedAccess}
		s.presenter.Notify(berr)
		s.Disconnect()
		return berr
	}

	allowed, ban, err := s.deps.Abuse.RecordMessage(ctx, &s.window, id)
	if !allowed {
		if ban == nil {
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrRateLimitExceeded, err)
			}
			return domain.ErrRateLimitExceeded
		}
		if err != nil {
			s.log.WithError(err).Error("ban not persisted")
		}
		berr := &domain.BanError{Record: *ban, Cause: domain.ErrRateLimitExceeded}
		s.presenter.Notify(berr)
		s.Disconnect()
		return berr
	}

	if _, err := chat.Append(ctx, username, text); err != nil {
		return err
	}
	s.render(ctx, chat, username)
	return nil
}

// Lines returns the decrypted transcript with IsSelf set on the entries
// authored under this session's username.
func (s *Session) Lines(ctx context.Context) ([]domain.Line, error) {
	s.mu.Lock()
	state, chat, username := s.state, s.chat, s.username
	s.mu.Unlock()
	if state != Connected {
		return nil, domain.ErrNotConnected
	}
	return lines(ctx, chat, username)
}

// Reload polls the log now and re-renders regardless of change.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	state, chat, username := s.state, s.chat, s.username
	s.mu.Unlock()
	if state != Connected {
		return domain.ErrNotConnected
	}
	if _, err := chat.Poll(ctx); err != nil {
		return err
	}
	s.render(ctx, chat, username)
	return nil
}

// Disconnect stops polling and wipes the group keys. It is a no-op when
// not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	cancel, c := s.cancel, s.cipher
	s.state = Disconnected
	s.username = ""
	s.identity = domain.Identity{}
	s.cipher = nil
	s.chat = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	c.Wipe()
	s.log.Info("disconnected")
}

func (s *Session) pollLoop(ctx context.Context, chat domain.MessageLog, username domain.Username) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := chat.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Warn("poll failed")
				continue
			}
			if changed {
				s.metrics.PollChanges.Inc()
				s.render(ctx, chat, username)
			}
		}
	}
}

func (s *Session) render(ctx context.Context, chat domain.MessageLog, username domain.Username) {
	ls, err := lines(ctx, chat, username)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.presenter.Notify(err)
		}
		return
	}
	s.presenter.Render(ls)
}

func lines(ctx context.Context, chat domain.MessageLog, username domain.Username) ([]domain.Line, error) {
	ls, err := chat.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ls {
		ls[i].IsSelf = ls[i].Author == username
	}
	return ls, nil
}

// salt returns the passphrase salt for the configured mode. A persisted
// salt is created once; an unreadable one is an error, never replaced.
func (s *Session) salt() ([]byte, error) {
	if s.cfg.SaltMode != SaltPersisted {
		return crypto.StaticSalt(), nil
	}
	b, ok, err := s.deps.Store.Get(saltKey)
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if ok {
		if len(b) != crypto.SaltSize {
			return nil, fmt.Errorf("stored salt has %d bytes, want %d", len(b), crypto.SaltSize)
		}
		return b, nil
	}

	fresh, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	if sw, ok := s.deps.Store.(domain.Swapper); ok {
		swapped, err := sw.CompareAndSwap(saltKey, nil, fresh)
		if err != nil {
			return nil, fmt.Errorf("persist salt: %w", err)
		}
		if !swapped {
			// another member provisioned it first
			return s.salt()
		}
		return fresh, nil
	}
	if err := s.deps.Store.Set(saltKey, fresh); err != nil {
		return nil, fmt.Errorf("persist salt: %w", err)
	}
	return fresh, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

type discardPresenter struct{}

func (discardPresenter) Render([]domain.Line) {}
func (discardPresenter) Notify(error)         {}
