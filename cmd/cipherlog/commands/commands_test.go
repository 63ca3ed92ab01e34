package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/domain"
	"cipherlog/internal/services/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestKeygenSendRead(t *testing.T) {
	home := t.TempDir()
	keys := filepath.Join(home, "keys")
	common := []string{"--home", home, "--origin", "198.51.100.7"}

	out, err := run(t, append(common, "keygen", "--out", keys)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Group: ")

	_, err = run(t, append(common, "keygen", "--out", keys)...)
	require.Error(t, err, "keygen must refuse to overwrite")

	pub := filepath.Join(keys, publicKeyFile)
	priv := filepath.Join(keys, privateKeyFile)
	_, err = run(t, append(common, "send", "-u", "alice", "--public", pub, "--private", priv, "hello", "group")...)
	require.NoError(t, err)

	out, err = run(t, append(common, "read", "-u", "bob", "--public", pub, "--private", priv)...)
	require.NoError(t, err)
	assert.Contains(t, out, "alice: hello group")
	assert.NotContains(t, out, "(you)")

	out, err = run(t, append(common, "read", "-u", "carol", "-p", "other secret")...)
	require.NoError(t, err)
	assert.NotContains(t, out, "hello group")
}

func TestRememberRecallForget(t *testing.T) {
	home := t.TempDir()
	common := []string{"--home", home, "--origin", "198.51.100.8"}

	_, err := run(t, append(common, "fingerprint", "-u", "alice", "-p", "pw", "--remember", "--lock", "tin")...)
	require.NoError(t, err)

	out, err := run(t, append(common, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials:   sealed")
	assert.Contains(t, out, "Access:        allowed")

	_, err = run(t, append(common, "send", "--recall", "hi")...)
	require.ErrorIs(t, err, session.ErrLocked)

	_, err = run(t, append(common, "send", "--recall", "--lock", "tin", "hi")...)
	require.NoError(t, err)

	out, err = run(t, append(common, "read", "--recall", "--lock", "tin")...)
	require.NoError(t, err)
	assert.Contains(t, out, "alice (you): hi")

	_, err = run(t, append(common, "forget")...)
	require.NoError(t, err)
	out, err = run(t, append(common, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials:   none")
}

func TestConnectRequiresFields(t *testing.T) {
	_, err := run(t, "--home", t.TempDir(), "--store", "memory", "read", "-u", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTerminal_PrintsEachLineOnce(t *testing.T) {
	var out, errs bytes.Buffer
	term := newTerminal(&out, &errs)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := domain.Line{ID: "1", Author: "alice", Timestamp: ts, Text: "hi", IsSelf: true}
	b := domain.Line{ID: "2", Author: "bob", Timestamp: ts, Text: "yo"}

	term.Render([]domain.Line{a})
	term.Render([]domain.Line{a, b})
	term.Notify(&domain.BanError{
		Record: domain.BanRecord{Reason: "rate limit", ExpiresAt: ts.Add(time.Hour)},
		Cause:  domain.ErrBannedAccess,
	})

	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(got[0], "alice (you): hi"))
	assert.True(t, strings.HasSuffix(got[1], "bob: yo"))
	assert.Contains(t, errs.String(), "access denied until")
	assert.Contains(t, errs.String(), "rate limit")
}

func TestTerminal_ReprintsOnLateArrival(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(&out, &out)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	early := domain.Line{ID: "e", Author: "bob", Timestamp: ts, Text: "first"}
	late := domain.Line{ID: "l", Author: "alice", Timestamp: ts.Add(time.Minute), Text: "second"}

	term.Render([]domain.Line{late})
	term.Render([]domain.Line{early, late})

	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, got, 4)
	assert.True(t, strings.HasSuffix(got[0], "alice: second"))
	assert.Equal(t, reprintBanner, got[1])
	assert.True(t, strings.HasSuffix(got[2], "bob: first"))
	assert.True(t, strings.HasSuffix(got[3], "alice: second"))

	out.Reset()
	term.Render([]domain.Line{early, late})
	assert.Empty(t, out.String())
}
