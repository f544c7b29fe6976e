//go:build !windows

package trigger

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oshokin/ota-client/internal/logger"
)

// WatchSignal turns SIGUSR1 into check events until ctx is done.
func WatchSignal(ctx context.Context, events chan<- Event) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				logger.InfoKV(ctx, "Update check requested by signal", "signal", sig.String())
				notify(events, Event{Source: SourceSignal})
			}
		}
	}()
}
