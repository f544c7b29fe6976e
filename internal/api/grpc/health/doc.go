// Package health serves the standard gRPC health service for the daemon.
//
// The "ota" service reports SERVING while the last update run did not fail
// and NOT_SERVING after a failed or mismatched run.
package health
