package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/ota-client/internal/api/grpc/health"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/metrics"
	"github.com/oshokin/ota-client/internal/repository/state"
	"github.com/oshokin/ota-client/internal/service/updater"
	"github.com/oshokin/ota-client/internal/trigger"
)

// Options controls the daemon process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// SkipInitialDelay starts the first check immediately.
	SkipInitialDelay bool
}

// Runner runs one pipeline attempt.
type Runner interface {
	Run(ctx context.Context, req updater.Request) (*updater.Report, error)
}

// Daemon owns the periodic loop and the outward-facing status surfaces.
type Daemon struct {
	// cfg is the validated configuration.
	cfg *config.Config
	// runner performs each check.
	runner Runner
	// repo persists the last report.
	repo state.Repository
	// metrics records run outcomes.
	metrics *metrics.Collector
	// health reports the last outcome over gRPC.
	health *health.Server
	// events carries immediate check requests.
	events chan trigger.Event
	// random feeds interval jitter.
	random func() float64
}

// Run loads the configuration and blocks until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "daemon")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.SkipInitialDelay {
		cfg.Daemon.InitialDelay = 0
	}

	return New(cfg, updater.FromConfig(cfg)).Run(ctx)
}

// New creates a daemon for a validated configuration.
func New(cfg *config.Config, runner Runner) *Daemon {
	return &Daemon{
		cfg:     cfg,
		runner:  runner,
		repo:    state.NewFileRepository(cfg.Daemon.StateFile),
		metrics: metrics.New(),
		health:  health.NewServer(),
		events:  make(chan trigger.Event, 1),
	}
}

// Run serves metrics and health when configured and runs checks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.restore(ctx)

	trigger.WatchSignal(ctx, d.events)

	if len(d.cfg.MQTT.Brokers) > 0 {
		trigger.NewSubscriber(d.cfg.MQTT, d.cfg.Identity(), d.events).Start(ctx)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if address := d.cfg.Daemon.MetricsAddress; address != "" {
		group.Go(func() error { return d.metrics.Serve(groupCtx, address) })
	}

	if address := d.cfg.Daemon.HealthAddress; address != "" {
		group.Go(func() error { return d.health.Serve(groupCtx, address) })
	}

	group.Go(func() error { return d.loop(groupCtx) })

	return group.Wait()
}

// loop waits for the timer or a trigger and runs a check, until ctx is done.
func (d *Daemon) loop(ctx context.Context) error {
	wait := d.cfg.Daemon.InitialDelay

	logger.InfoKV(ctx, "Update daemon started",
		"initial_delay", wait.String(),
		"interval", d.cfg.Daemon.Interval.String(),
		"jitter_percent", d.cfg.Daemon.JitterPercent)

	for {
		timer := time.NewTimer(wait)

		var source trigger.Source

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-timer.C:
			source = trigger.SourceTimer
		case event := <-d.events:
			timer.Stop()

			source = event.Source
		}

		d.check(ctx, source)

		wait = NextInterval(d.cfg.Daemon.Interval, d.cfg.Daemon.JitterPercent, d.random)
		logger.DebugKV(ctx, "Next update check scheduled", "in", wait.String())
	}
}

// check runs one attempt and publishes its report. Failures are logged and
// the loop carries on; the next check is the retry.
func (d *Daemon) check(ctx context.Context, source trigger.Source) {
	ctx = logger.WithKV(ctx, "trigger", string(source))

	request, err := updater.RequestFromConfig(d.cfg)
	if err != nil {
		logger.ErrorKV(ctx, "Unable to prepare update check", "error", err)
		return
	}

	report, err := d.runner.Run(ctx, request)
	if errors.Is(err, updater.ErrRunInProgress) {
		logger.WarnKV(ctx, "Skipping update check", "reason", err)
		return
	}

	if report == nil {
		logger.ErrorKV(ctx, "Update check produced no report", "error", err)
		return
	}

	d.metrics.Observe(report)
	d.health.Update(report)

	if saveErr := d.repo.Save(ctx, report); saveErr != nil {
		logger.ErrorKV(ctx, "Failed to persist update report", "error", saveErr)
	}
}

// restore publishes the report persisted by a previous process.
func (d *Daemon) restore(ctx context.Context) {
	report, err := d.repo.Load(ctx)

	switch {
	case err == nil:
		d.health.Update(report)
		logger.InfoKV(ctx, "Restored last update report",
			"state", report.State.String(), "finished_at", report.FinishedAt)
	case errors.Is(err, state.ErrNotFound):
		// First start.
	default:
		logger.WarnKV(ctx, "Unable to read last update report", "error", err)
	}
}
