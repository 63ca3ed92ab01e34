package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/app"
	"cipherlog/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := app.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 24*time.Hour, cfg.BanDuration)
	assert.Equal(t, 500, cfg.Retention)
	assert.Equal(t, "group", cfg.Partition)
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "cipherlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store: badger
partition: shared
poll_interval: 250ms
rate_limit: 10
cipher: chacha20poly1305
`), 0o600))

	t.Setenv("CIPHERLOG_RATE_LIMIT", "12")
	t.Setenv("CIPHERLOG_BAN_DURATION", "1h")

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Store)
	assert.Equal(t, "shared", cfg.Partition)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "chacha20poly1305", cfg.Cipher)
	assert.Equal(t, 12, cfg.RateLimit)
	assert.Equal(t, time.Hour, cfg.BanDuration)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CIPHERLOG_ORIGIN=lab-7\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CIPHERLOG_ORIGIN") })

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "lab-7", cfg.Origin)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := app.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0o600))
	_, err = app.LoadConfig(path)
	assert.Error(t, err)

	t.Setenv("CIPHERLOG_POLL_INTERVAL", "soon")
	_, err = app.LoadConfig("")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*app.Config){
		"store":     func(c *app.Config) { c.Store = "s3" },
		"scheme":    func(c *app.Config) { c.Scheme = "rot13" },
		"cipher":    func(c *app.Config) { c.Cipher = "des" },
		"salt":      func(c *app.Config) { c.SaltMode = "random" },
		"partition": func(c *app.Config) { c.Partition = "per-user" },
		"poll":      func(c *app.Config) { c.PollInterval = 0 },
		"limit":     func(c *app.Config) { c.RateLimit = 0 },
		"retention": func(c *app.Config) { c.Retention = 0 },
	}
	for name, mutate := range cases {
		cfg := app.DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestNew_WiresServices(t *testing.T) {
	for _, backend := range []string{app.StoreFile, app.StoreBadger, app.StoreMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := app.DefaultConfig()
			cfg.Home = t.TempDir()
			cfg.Store = backend
			cfg.Origin = "test-host"

			a, err := app.New(cfg)
			require.NoError(t, err)
			defer a.Close()

			id, err := a.Identity.Resolve(t.Context())
			require.NoError(t, err)
			assert.NotEmpty(t, id.DeviceToken)

			s := a.NewSession(nil)
			km := domain.KeyMaterial{Scheme: domain.SchemePassphrase, Passphrase: "pw"}
			require.NoError(t, s.Connect(t.Context(), km, "alice"))
			require.NoError(t, s.Send(t.Context(), "wired"))
			lines, err := s.Lines(t.Context())
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, "wired", lines[0].Text)
			s.Disconnect()
		})
	}
}
