//go:build windows

package trigger

import "context"

// WatchSignal is a no-op: Windows has no SIGUSR1.
func WatchSignal(context.Context, chan<- Event) {}
