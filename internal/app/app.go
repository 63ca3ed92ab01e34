package app

import (
	"errors"

	"github.com/sirupsen/logrus"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/metrics"
	"cipherlog/internal/services/abuse"
	"cipherlog/internal/services/chatlog"
	"cipherlog/internal/services/identity"
	"cipherlog/internal/services/session"
)

// App bundles the store, services and ambient plumbing for the CLI.
type App struct {
	Config      Config
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
	Store       domain.KVStore
	Engine      *crypto.Engine
	Identity    *identity.Service
	Abuse       *abuse.Controller
	Credentials *session.CredentialCache

	closers []func() error
}

// NewSession returns a disconnected session wired to the app's services.
func (a *App) NewSession(p domain.Presenter) *session.Session {
	logCfg := chatlog.Config{
		Retention:     a.Config.Retention,
		Partition:     chatlog.Partition(a.Config.Partition),
		CryptoTimeout: a.Config.CryptoTimeout,
	}
	chatLog := logging.Component(a.Logger, "chatlog")

	return session.New(session.Deps{
		Engine:   a.Engine,
		Resolver: a.Identity,
		Abuse:    a.Abuse,
		OpenLog: func(c domain.Cipher) domain.MessageLog {
			return chatlog.New(a.Store, c, logCfg, chatLog, a.Metrics)
		},
		Store:   a.Store,
		Metrics: a.Metrics,
		Log:     logging.Component(a.Logger, "session"),
	}, session.Config{
		PollInterval: a.Config.PollInterval,
		SaltMode:     session.SaltMode(a.Config.SaltMode),
	}, p)
}

// Close releases the store and log file, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
