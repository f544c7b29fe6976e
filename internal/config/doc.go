// Package config defines the OTA client settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills defaults for timeouts, the staging path and the daemon
// schedule, so callers can rely on every duration being positive.
package config
