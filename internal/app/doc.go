// Package app loads configuration and wires cipherlog's dependencies for
// the CLI.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then .env and CIPHERLOG_* environment variables, then command-line
// flags (applied by the caller before Validate). New builds the store,
// logger, metrics and services from the result and exposes them on App.
package app
