package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/services/abuse"
	"cipherlog/internal/services/chatlog"
	"cipherlog/internal/services/identity"
	"cipherlog/internal/services/session"
	"cipherlog/internal/store"
)

type keyPair struct{ pub, priv string }

var (
	pairsOnce sync.Once
	pairs     [2]keyPair
	pairsErr  error
)

func rsaKeys(t *testing.T, i int) domain.KeyMaterial {
	t.Helper()
	pairsOnce.Do(func() {
		for n := range pairs {
			pub, priv, err := crypto.GenerateKeyPair(2048)
			if err != nil {
				pairsErr = err
				return
			}
			pairs[n] = keyPair{pub, priv}
		}
	})
	require.NoError(t, pairsErr)
	return domain.KeyMaterial{Scheme: domain.SchemeRSAOAEP, PublicKeyPEM: pairs[i].pub, PrivateKeyPEM: pairs[i].priv}
}

type recorder struct {
	mu      sync.Mutex
	renders [][]domain.Line
	errs    []error
}

func (r *recorder) Render(ls []domain.Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, ls)
}

func (r *recorder) Notify(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func (r *recorder) last() []domain.Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return nil
	}
	return r.renders[len(r.renders)-1]
}

type env struct {
	kv        *store.MemoryStore
	engine    *crypto.Engine
	partition chatlog.Partition
	abuseCfg  abuse.Config
	cfg       session.Config
}

func newEnv(partition chatlog.Partition) *env {
	return &env{
		kv:        store.NewMemoryStore(),
		engine:    crypto.NewEngine(crypto.Options{}),
		partition: partition,
		cfg:       session.Config{PollInterval: time.Hour},
	}
}

func (e *env) session(t *testing.T, origin string, p domain.Presenter) *session.Session {
	t.Helper()
	s := session.New(session.Deps{
		Engine:   e.engine,
		Resolver: identity.New(e.kv, identity.StaticOrigin(origin), nil),
		Abuse:    abuse.New(e.kv, e.abuseCfg, nil, nil),
		OpenLog: func(c domain.Cipher) domain.MessageLog {
			return chatlog.New(e.kv, c, chatlog.Config{Partition: e.partition}, nil, nil)
		},
		Store: e.kv,
	}, e.cfg, p)
	t.Cleanup(s.Disconnect)
	return s
}

func summary(ls []domain.Line) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = string(l.Author) + ":" + l.Text
		if l.IsSelf {
			out[i] += " (me)"
		}
	}
	return out
}

func TestGroupChatScenario(t *testing.T) {
	for _, partition := range []chatlog.Partition{chatlog.PartitionShared, chatlog.PartitionGroup} {
		t.Run(string(partition), func(t *testing.T) {
			e := newEnv(partition)
			ctx := context.Background()

			alice := e.session(t, "10.0.0.1", nil)
			require.NoError(t, alice.Connect(ctx, rsaKeys(t, 0), "alice"))
			require.Equal(t, session.Connected, alice.State())
			require.NoError(t, alice.Send(ctx, "hello"))

			lines, err := alice.Lines(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice:hello (me)"}, summary(lines))

			bob := e.session(t, "10.0.0.2", nil)
			require.NoError(t, bob.Connect(ctx, rsaKeys(t, 0), "bob"))
			assert.Equal(t, alice.Group(), bob.Group())
			require.NoError(t, bob.Send(ctx, "hi alice"))

			require.NoError(t, alice.Reload(ctx))
			lines, err = alice.Lines(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice:hello (me)", "bob:hi alice"}, summary(lines))

			lines, err = bob.Lines(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice:hello", "bob:hi alice (me)"}, summary(lines))

			third := e.session(t, "10.0.0.3", nil)
			require.NoError(t, third.Connect(ctx, rsaKeys(t, 1), "carol"))
			assert.NotEqual(t, alice.Group(), third.Group())
			lines, err = third.Lines(ctx)
			require.NoError(t, err)
			assert.Empty(t, lines)
		})
	}
}

func TestConnect_RejectsBadInput(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	ctx := context.Background()
	s := e.session(t, "10.0.0.1", nil)
	good := rsaKeys(t, 0)
	other := rsaKeys(t, 1)

	err := s.Connect(ctx, good, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, session.Disconnected, s.State())

	bad := good
	bad.PublicKeyPEM = "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n"
	assert.ErrorIs(t, s.Connect(ctx, bad, "alice"), domain.ErrInvalidPublicKey)

	mismatch := good
	mismatch.PrivateKeyPEM = other.PrivateKeyPEM
	assert.ErrorIs(t, s.Connect(ctx, mismatch, "alice"), domain.ErrKeyMismatch)
	assert.Equal(t, session.Disconnected, s.State())

	assert.ErrorIs(t, s.Send(ctx, "hi"), domain.ErrNotConnected)
	_, err = s.Lines(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	require.NoError(t, s.Connect(ctx, good, "alice"))
	assert.ErrorIs(t, s.Connect(ctx, good, "alice"), domain.ErrAlreadyConnected)
}

func TestSend_Validation(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	ctx := context.Background()
	s := e.session(t, "10.0.0.1", nil)
	require.NoError(t, s.Connect(ctx, domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "pw"}, "alice"))

	assert.ErrorIs(t, s.Send(ctx, "   "), domain.ErrValidation)
	lines, err := s.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, s.Send(ctx, "  padded  "))
	lines, _ = s.Lines(ctx)
	assert.Equal(t, []string{"alice:padded (me)"}, summary(lines))
}

func TestRateLimitBansAndDisconnects(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	e.abuseCfg = abuse.Config{Limit: 3, Window: time.Hour}
	ctx := context.Background()
	rec := &recorder{}
	s := e.session(t, "10.0.0.1", rec)
	km := domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "pw"}
	require.NoError(t, s.Connect(ctx, km, "spammer"))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(ctx, "spam"))
	}
	err := s.Send(ctx, "one too many")
	require.ErrorIs(t, err, domain.ErrRateLimitExceeded)
	var berr *domain.BanError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, abuse.ReasonRateLimit, berr.Record.Reason)
	assert.Equal(t, session.Disconnected, s.State())
	assert.NotEmpty(t, rec.errs)

	err = s.Connect(ctx, km, "spammer")
	assert.ErrorIs(t, err, domain.ErrBannedAccess)
	assert.Equal(t, session.Disconnected, s.State())

	// same device from another address is still banned
	again := e.session(t, "10.9.9.9", nil)
	assert.ErrorIs(t, again.Connect(ctx, km, "renamed"), domain.ErrBannedAccess)
}

func TestPollerRendersRemoteChanges(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	ctx := context.Background()
	km := rsaKeys(t, 0)

	e.cfg.PollInterval = 10 * time.Millisecond
	rec := &recorder{}
	alice := e.session(t, "10.0.0.1", rec)
	require.NoError(t, alice.Connect(ctx, km, "alice"))

	e.cfg.PollInterval = time.Hour
	bob := e.session(t, "10.0.0.2", nil)
	require.NoError(t, bob.Connect(ctx, km, "bob"))
	require.NoError(t, bob.Send(ctx, "are you there?"))

	require.Eventually(t, func() bool {
		return len(rec.last()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bob:are you there?"}, summary(rec.last()))

	alice.Disconnect()
	assert.Equal(t, session.Disconnected, alice.State())
	assert.Empty(t, alice.Group())
	settled := rec.count()

	require.NoError(t, bob.Send(ctx, "hello?"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, rec.count(), "poller still running after Disconnect")
}

func TestPersistedSalt(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	ctx := context.Background()
	km := domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "shared secret"}

	static := e.session(t, "10.0.0.1", nil)
	require.NoError(t, static.Connect(ctx, km, "alice"))
	staticGroup := static.Group()
	static.Disconnect()

	e.cfg.SaltMode = session.SaltPersisted
	a := e.session(t, "10.0.0.1", nil)
	require.NoError(t, a.Connect(ctx, km, "alice"))
	b := e.session(t, "10.0.0.2", nil)
	require.NoError(t, b.Connect(ctx, km, "bob"))

	salt, ok, _ := e.kv.Get("cipherlog/salt")
	require.True(t, ok)
	assert.Len(t, salt, crypto.SaltSize)
	assert.Equal(t, a.Group(), b.Group())
	assert.NotEqual(t, staticGroup, a.Group())
}

func TestPersistedSalt_MalformedIsNotReplaced(t *testing.T) {
	e := newEnv(chatlog.PartitionGroup)
	e.cfg.SaltMode = session.SaltPersisted
	require.NoError(t, e.kv.Set("cipherlog/salt", []byte("bad")))
	km := domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "shared secret"}

	s := e.session(t, "10.0.0.1", nil)
	err := s.Connect(context.Background(), km, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored salt has 3 bytes")
	assert.Equal(t, session.Disconnected, s.State())

	salt, ok, _ := e.kv.Get("cipherlog/salt")
	require.True(t, ok)
	assert.Equal(t, "bad", string(salt))
}

func TestCredentialCache(t *testing.T) {
	kv := store.NewMemoryStore()
	cache := session.NewCredentialCache(kv, nil)
	km := domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "pw"}

	_, _, ok, err := cache.Recall("")
	require.NoError(t, err)
	assert.False(t, ok, "credentials cached without opt-in")

	require.NoError(t, cache.Remember("alice", km, ""))
	user, got, ok, err := cache.Recall("")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, km, got)

	require.NoError(t, cache.Remember("alice", km, "lock"))
	raw, _, _ := kv.Get("cipherlog/credentials")
	assert.Contains(t, string(raw), `"sealed":true`)

	_, _, _, err = cache.Recall("")
	assert.ErrorIs(t, err, session.ErrLocked)
	_, _, _, err = cache.Recall("wrong")
	assert.ErrorIs(t, err, store.ErrWrongPassphrase)
	_, got, ok, err = cache.Recall("lock")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, km, got)

	moved := strings.Replace(string(raw), `"username":"alice"`, `"username":"mallory"`, 1)
	require.NotEqual(t, string(raw), moved)
	require.NoError(t, kv.Set("cipherlog/credentials", []byte(moved)))
	_, _, _, err = cache.Recall("lock")
	assert.ErrorIs(t, err, store.ErrWrongPassphrase, "sealed key material moved to another user")

	require.NoError(t, cache.Forget())
	_, _, ok, _ = cache.Recall("lock")
	assert.False(t, ok)

	require.NoError(t, kv.Set("cipherlog/credentials", []byte("garbage")))
	_, _, ok, err = cache.Recall("")
	assert.NoError(t, err)
	assert.False(t, ok)
}
