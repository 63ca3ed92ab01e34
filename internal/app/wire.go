package app

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/metrics"
	"cipherlog/internal/services/abuse"
	"cipherlog/internal/services/identity"
	"cipherlog/internal/services/session"
	"cipherlog/internal/store"
)

// New validates cfg and constructs the dependency graph from it.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	a.closers = append(a.closers, closeLog)

	kv, closeStore, err := openStore(cfg, logging.Component(logger, "store"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = kv
	a.closers = append(a.closers, closeStore)

	var origin identity.OriginSource = identity.HostOrigin{}
	if cfg.Origin != "" {
		origin = identity.StaticOrigin(cfg.Origin)
	}

	a.Engine = crypto.NewEngine(crypto.Options{Cipher: cfg.Cipher, Timeout: cfg.CryptoTimeout})
	a.Identity = identity.New(kv, origin, logging.Component(logger, "identity"))
	a.Abuse = abuse.New(kv, abuse.Config{
		Limit:       cfg.RateLimit,
		Window:      cfg.RateWindow,
		BanDuration: cfg.BanDuration,
	}, logging.Component(logger, "abuse"), a.Metrics)
	a.Credentials = session.NewCredentialCache(kv, logging.Component(logger, "credentials"))

	logger.WithFields(logrus.Fields{"store": cfg.Store, "home": cfg.Home}).Debug("app wired")
	return a, nil
}

func openStore(cfg Config, log *logrus.Entry) (domain.KVStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case StoreFile:
		fs, err := store.NewFileStore(filepath.Join(cfg.Home, "store"))
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case StoreBadger:
		bs, err := store.OpenBadgerStore(store.BadgerConfig{
			Dir:    filepath.Join(cfg.Home, "badger"),
			Logger: log,
		})
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	case StoreMemory:
		return store.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
