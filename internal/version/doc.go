// Package version exposes build metadata of the OTA client.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Note that this is the version of the client binary itself,
// not of the device firmware it manages.
package version
