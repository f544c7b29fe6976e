// Package daemon runs the update pipeline periodically.
//
// After an initial delay it checks for updates, then sleeps for the
// configured interval with random jitter so a fleet does not hit the
// service at once. SIGUSR1 or an MQTT firmware-pull message triggers an
// immediate check. The last report is persisted, exported as Prometheus
// metrics and reflected in the gRPC health service.
package daemon
