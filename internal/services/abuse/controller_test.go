package abuse_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/domain"
	"cipherlog/internal/metrics"
	"cipherlog/internal/services/abuse"
	"cipherlog/internal/store"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newController(t *testing.T) (*abuse.Controller, *clock, *store.MemoryStore, *metrics.Metrics) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	kv := store.NewMemoryStore()
	m := metrics.New()
	return abuse.New(kv, abuse.Config{Clock: clk.Now}, nil, m), clk, kv, m
}

var alice = domain.Identity{IdentityHash: "a1", DeviceToken: "tok-a"}

func TestRecordMessage_ThirtyAllowedThirtyFirstBans(t *testing.T) {
	c, clk, _, m := newController(t)
	ctx := context.Background()
	var w domain.RateWindow

	for i := 1; i <= abuse.DefaultLimit; i++ {
		ok, ban, err := c.RecordMessage(ctx, &w, alice)
		require.NoError(t, err)
		require.True(t, ok, "message %d refused", i)
		require.Nil(t, ban)
		clk.Advance(time.Second)
	}

	ok, ban, err := c.RecordMessage(ctx, &w, alice)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, ban)
	assert.Equal(t, abuse.ReasonRateLimit, ban.Reason)
	assert.Equal(t, clk.now.Add(24*time.Hour), ban.ExpiresAt)

	got, err := c.CheckBan(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BansIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestRecordMessage_NewWindowResets(t *testing.T) {
	c, clk, _, _ := newController(t)
	ctx := context.Background()
	var w domain.RateWindow

	for i := 0; i < abuse.DefaultLimit; i++ {
		ok, _, _ := c.RecordMessage(ctx, &w, alice)
		require.True(t, ok)
	}
	clk.Advance(time.Minute)

	ok, ban, err := c.RecordMessage(ctx, &w, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, ban)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clk.now, w.WindowStart)
}

func TestCheckBan_MatchesEitherField(t *testing.T) {
	c, _, _, _ := newController(t)
	ctx := context.Background()
	_, err := c.Ban(ctx, alice, "manual")
	require.NoError(t, err)

	for _, id := range []domain.Identity{
		{IdentityHash: "a1", DeviceToken: "other-device"},
		{IdentityHash: "elsewhere", DeviceToken: "tok-a"},
	} {
		ban, err := c.CheckBan(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, ban, "identity %+v not matched", id)
	}

	ban, err := c.CheckBan(ctx, domain.Identity{IdentityHash: "b2", DeviceToken: "tok-b"})
	require.NoError(t, err)
	assert.Nil(t, ban)
}

func TestCheckBan_ExpiryAndPrune(t *testing.T) {
	c, clk, kv, _ := newController(t)
	ctx := context.Background()
	_, err := c.Ban(ctx, alice, "manual")
	require.NoError(t, err)

	clk.Advance(24*time.Hour - time.Second)
	ban, _ := c.CheckBan(ctx, alice)
	assert.NotNil(t, ban)

	clk.Advance(time.Second)
	ban, _ = c.CheckBan(ctx, alice)
	assert.Nil(t, ban)
	assert.Empty(t, c.Bans())

	bob := domain.Identity{IdentityHash: "b2", DeviceToken: "tok-b"}
	_, err = c.Ban(ctx, bob, "manual")
	require.NoError(t, err)

	raw, _, _ := kv.Get("cipherlog/bans")
	assert.NotContains(t, string(raw), "tok-a", "expired ban not pruned")
	assert.Len(t, c.Bans(), 1)
}

func TestCheckBan_MalformedRegistryIsEmpty(t *testing.T) {
	c, _, kv, _ := newController(t)
	require.NoError(t, kv.Set("cipherlog/bans", []byte("{not json")))

	ban, err := c.CheckBan(context.Background(), alice)
	require.NoError(t, err)
	assert.Nil(t, ban)

	_, err = c.Ban(context.Background(), alice, "manual")
	require.NoError(t, err)
	ban, _ = c.CheckBan(context.Background(), alice)
	assert.NotNil(t, ban)
}

func TestConfig_CustomLimit(t *testing.T) {
	kv := store.NewMemoryStore()
	c := abuse.New(kv, abuse.Config{Limit: 2, Window: time.Hour, BanDuration: time.Minute}, nil, nil)
	ctx := context.Background()
	var w domain.RateWindow

	for i := 0; i < 2; i++ {
		ok, _, err := c.RecordMessage(ctx, &w, alice)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, ban, err := c.RecordMessage(ctx, &w, alice)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, ban)
	assert.WithinDuration(t, ban.IssuedAt.Add(time.Minute), ban.ExpiresAt, 0)
}

// interleavedStore runs during once, right after the first registry read,
// so a concurrent writer lands between that read and the swap.
type interleavedStore struct {
	*store.MemoryStore
	during func()
	fired  bool
}

func (s *interleavedStore) Get(key string) ([]byte, bool, error) {
	v, ok, err := s.MemoryStore.Get(key)
	if !s.fired && s.during != nil {
		s.fired = true
		s.during()
	}
	return v, ok, err
}

// lostSwapStore refuses every swap.
type lostSwapStore struct{ *store.MemoryStore }

func (lostSwapStore) CompareAndSwap(string, []byte, []byte) (bool, error) { return false, nil }

func TestBan_ConcurrentWriterIsKept(t *testing.T) {
	ctx := context.Background()
	kv := &interleavedStore{MemoryStore: store.NewMemoryStore()}
	first := abuse.New(kv, abuse.Config{}, nil, nil)
	second := abuse.New(kv.MemoryStore, abuse.Config{}, nil, nil)
	bob := domain.Identity{IdentityHash: "b2", DeviceToken: "tok-b"}

	kv.during = func() {
		_, err := second.Ban(ctx, bob, "manual")
		require.NoError(t, err)
	}

	_, err := first.Ban(ctx, alice, "manual")
	require.NoError(t, err)

	assert.Len(t, first.Bans(), 2)
	for _, id := range []domain.Identity{alice, bob} {
		ban, err := first.CheckBan(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, ban, "ban for %s lost", id.IdentityHash)
	}
}

func TestBan_GivesUpAfterRepeatedConflicts(t *testing.T) {
	kv := lostSwapStore{store.NewMemoryStore()}
	m := metrics.New()
	c := abuse.New(kv, abuse.Config{}, nil, m)

	rec, err := c.Ban(context.Background(), alice, "manual")
	require.ErrorIs(t, err, abuse.ErrContention)
	require.NotNil(t, rec)
	assert.Empty(t, c.Bans())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BansIssued))
}

// setOnlyStore hides CompareAndSwap.
type setOnlyStore struct{ domain.KVStore }

func TestBan_StoreWithoutSwap(t *testing.T) {
	c := abuse.New(setOnlyStore{store.NewMemoryStore()}, abuse.Config{}, nil, nil)
	_, err := c.Ban(context.Background(), alice, "manual")
	require.NoError(t, err)
	assert.Len(t, c.Bans(), 1)
}
