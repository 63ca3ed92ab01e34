// Package commands implements the cipherlog command-line interface.
//
// Commands share the root's persistent flags (--home, --config, --store,
// --log-level) and an *app.App built once in PersistentPreRunE. The chat
// command is the interactive client; send, read, status, forget,
// fingerprint and keygen are one-shot helpers for scripting.
package commands
