// Package trigger wakes the daemon for an immediate update check, either
// from a firmware-pull message on MQTT or from a process signal.
package trigger
