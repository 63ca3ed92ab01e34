package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
	"cipherlog/internal/services/session"
)

var (
	username    string
	publicPath  string
	privatePath string
	passphrase  string
	remember    bool
	recall      bool
	lock        string
)

// addKeyFlags registers the flags every connecting command accepts.
func addKeyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&username, "username", "u", "", "display name (max 20 characters)")
	f.StringVar(&publicPath, "public", "", "group public key PEM file")
	f.StringVar(&privatePath, "private", "", "group private key PEM file")
	f.StringVarP(&passphrase, "passphrase", "p", "", "group passphrase (instead of a key pair)")
	f.BoolVar(&remember, "remember", false, "cache these credentials for --recall (stores key material on disk)")
	f.BoolVar(&recall, "recall", false, "use credentials cached with --remember")
	f.StringVar(&lock, "lock", "", "passphrase sealing cached credentials")
}

// keyMaterial assembles credentials from flags or the cache. Missing
// fields are left for Connect to report.
func keyMaterial() (string, domain.KeyMaterial, error) {
	if recall {
		user, km, ok, err := appCtx.Credentials.Recall(lock)
		if err != nil {
			return "", domain.KeyMaterial{}, err
		}
		if !ok {
			return "", domain.KeyMaterial{}, fmt.Errorf("no cached credentials; connect once with --remember")
		}
		if username != "" {
			user = username
		}
		return user, km, nil
	}

	km := domain.KeyMaterial{Scheme: domain.Scheme(appCtx.Config.Scheme)}
	switch {
	case passphrase != "":
		km.Scheme = domain.SchemePassphrase
		km.Passphrase = passphrase
	case publicPath != "" || privatePath != "":
		km.Scheme = domain.SchemeRSAOAEP
	}
	if km.Scheme == domain.SchemeRSAOAEP {
		var err error
		if km.PublicKeyPEM, err = readOptional(publicPath); err != nil {
			return "", domain.KeyMaterial{}, err
		}
		if km.PrivateKeyPEM, err = readOptional(privatePath); err != nil {
			return "", domain.KeyMaterial{}, err
		}
	}
	return username, km, nil
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// connect opens a session from the key flags and, with --remember, caches
// the credentials once they have been proven.
func connect(ctx context.Context, p domain.Presenter) (*session.Session, error) {
	user, km, err := keyMaterial()
	if err != nil {
		return nil, err
	}
	s := appCtx.NewSession(p)
	if err := s.Connect(ctx, km, user); err != nil {
		return nil, err
	}
	if remember {
		if err := appCtx.Credentials.Remember(string(s.Username()), km, lock); err != nil {
			s.Disconnect()
			return nil, err
		}
	}
	return s, nil
}
