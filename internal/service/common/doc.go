// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client wrapper with timeouts used to probe
// the daemon's health service.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
