package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/services/abuse"
	"cipherlog/internal/services/chatlog"
	"cipherlog/internal/services/session"
)

const envPrefix = "CIPHERLOG_"

// Store backends.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreMemory = "memory"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home          string        `yaml:"home"`   // state directory, e.g. $HOME/.cipherlog
	Store         string        `yaml:"store"`  // file, badger or memory
	Scheme        string        `yaml:"scheme"` // default key scheme for the CLI
	Cipher        string        `yaml:"cipher"` // passphrase-scheme AEAD
	SaltMode      string        `yaml:"salt_mode"`
	Partition     string        `yaml:"partition"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Retention     int           `yaml:"retention"`
	RateLimit     int           `yaml:"rate_limit"`
	RateWindow    time.Duration `yaml:"rate_window"`
	BanDuration   time.Duration `yaml:"ban_duration"`
	CryptoTimeout time.Duration `yaml:"crypto_timeout"`
	Origin        string        `yaml:"origin"` // fixed origin; empty uses host and address
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	LogFile       string        `yaml:"log_file"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	home := ".cipherlog"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".cipherlog")
	}
	return Config{
		Home:          home,
		Store:         StoreFile,
		Scheme:        string(domain.SchemeRSAOAEP),
		Cipher:        crypto.CipherAESGCM,
		SaltMode:      string(session.SaltStatic),
		Partition:     string(chatlog.PartitionGroup),
		PollInterval:  session.DefaultPollInterval,
		Retention:     chatlog.DefaultRetention,
		RateLimit:     abuse.DefaultLimit,
		RateWindow:    abuse.DefaultWindow,
		BanDuration:   abuse.DefaultBanDuration,
		CryptoTimeout: crypto.DefaultTimeout,
		LogLevel:      "warn",
		LogFormat:     "text",
	}
}

// LoadConfig layers the YAML file at path (if any) and the environment
// over the defaults. A .env file in the working directory is loaded
// first when present.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Home = getEnv("HOME", c.Home)
	c.Store = getEnv("STORE", c.Store)
	c.Scheme = getEnv("SCHEME", c.Scheme)
	c.Cipher = getEnv("CIPHER", c.Cipher)
	c.SaltMode = getEnv("SALT_MODE", c.SaltMode)
	c.Partition = getEnv("PARTITION", c.Partition)
	c.Origin = getEnv("ORIGIN", c.Origin)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	var err error
	if c.Retention, err = getEnvAsInt("RETENTION", c.Retention); err != nil {
		return err
	}
	if c.RateLimit, err = getEnvAsInt("RATE_LIMIT", c.RateLimit); err != nil {
		return err
	}
	if c.PollInterval, err = getEnvAsDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.RateWindow, err = getEnvAsDuration("RATE_WINDOW", c.RateWindow); err != nil {
		return err
	}
	if c.BanDuration, err = getEnvAsDuration("BAN_DURATION", c.BanDuration); err != nil {
		return err
	}
	if c.CryptoTimeout, err = getEnvAsDuration("CRYPTO_TIMEOUT", c.CryptoTimeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects unknown modes and non-positive limits.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreBadger, StoreMemory:
	default:
		return fmt.Errorf("store %q: want file, badger or memory", c.Store)
	}
	if c.Home == "" && c.Store != StoreMemory {
		return fmt.Errorf("home directory required for %s store", c.Store)
	}
	if !domain.Scheme(c.Scheme).Valid() {
		return fmt.Errorf("scheme %q: want rsa-oaep or passphrase", c.Scheme)
	}
	if !crypto.ValidCipher(c.Cipher) {
		return fmt.Errorf("cipher %q: want aes-gcm or chacha20poly1305", c.Cipher)
	}
	if !session.SaltMode(c.SaltMode).Valid() {
		return fmt.Errorf("salt_mode %q: want static or persisted", c.SaltMode)
	}
	if !chatlog.Partition(c.Partition).Valid() {
		return fmt.Errorf("partition %q: want group or shared", c.Partition)
	}
	for name, d := range map[string]time.Duration{
		"poll_interval":  c.PollInterval,
		"rate_window":    c.RateWindow,
		"ban_duration":   c.BanDuration,
		"crypto_timeout": c.CryptoTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	if c.Retention == 0 {
		return fmt.Errorf("retention must be non-zero (negative disables the cap)")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
