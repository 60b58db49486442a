// Package daemon keeps a site continuously deployed: it triggers runs from
// filesystem changes and/or a fixed schedule, retries failed runs with
// backoff, and optionally serves Prometheus metrics.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
	"git.home.luguber.info/inful/nekodeploy/internal/deploy"
	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/metrics"
	"git.home.luguber.info/inful/nekodeploy/internal/retry"
)

// Runner executes one deployment.
type Runner interface {
	Run(ctx context.Context) (*deploy.DeployReport, error)
}

// Daemon coordinates triggered deployments. Triggers arriving while a
// deployment is in flight coalesce into at most one follow-up run.
type Daemon struct {
	cfg    *config.Config
	runner Runner
	policy retry.Policy

	registry *prom.Registry // nil disables the metrics endpoint
}

// New creates a Daemon around an existing runner.
func New(cfg *config.Config, runner Runner) *Daemon {
	return &Daemon{
		cfg:    cfg,
		runner: runner,
		policy: retry.DefaultPolicy(),
	}
}

// SetPolicy overrides the retry policy for failed runs.
func (d *Daemon) SetPolicy(p retry.Policy) { d.policy = p }

// SetMetricsRegistry enables the /metrics endpoint backed by reg.
func (d *Daemon) SetMetricsRegistry(reg *prom.Registry) { d.registry = reg }

// Run blocks until ctx is canceled. At least one of watch mode or a
// scheduled interval must be enabled.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.cfg.Daemon.IntervalDuration()
	if !d.cfg.Daemon.Watch && interval == 0 {
		return deployerrors.ConfigError("daemon mode needs watch enabled or a deploy interval")
	}

	triggers := make(chan struct{}, 1)
	fire := func() {
		select {
		case triggers <- struct{}{}:
		default:
		}
	}

	if d.cfg.Daemon.Watch {
		watcher, err := NewWatcher(d.cfg.Output.Directory, d.cfg.Daemon.DebounceDuration())
		if err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryRuntime, deployerrors.SeverityFatal, "starting file watcher failed")
		}
		if err := watcher.Start(ctx); err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryRuntime, deployerrors.SeverityFatal, "starting file watcher failed")
		}
		defer watcher.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-watcher.Triggers():
					if !ok {
						return
					}
					fire()
				}
			}
		}()
	}

	if interval > 0 {
		scheduler, err := NewScheduler(fire)
		if err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryRuntime, deployerrors.SeverityFatal, "starting scheduler failed")
		}
		if _, err := scheduler.SchedulePeriodicDeploy(interval); err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryRuntime, deployerrors.SeverityFatal, "scheduling periodic deploy failed")
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				slog.Error("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if d.cfg.Daemon.MetricsAddr != "" && d.registry != nil {
		stop := d.serveMetrics(ctx)
		defer stop()
	}

	slog.Info("Daemon started",
		logfields.Path(d.cfg.Output.Directory),
		slog.Bool("watch", d.cfg.Daemon.Watch),
		slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Daemon stopping")
			return nil
		case <-triggers:
			d.deployWithRetry(ctx)
		}
	}
}

// deployWithRetry runs one deployment and re-attempts whole failed runs per
// the backoff policy. Warnings never trigger a retry.
func (d *Daemon) deployWithRetry(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		report, err := d.runner.Run(ctx)
		if err == nil {
			if report != nil && report.Outcome != deploy.OutcomeSuccess {
				slog.Warn("Deployment finished with warnings", logfields.DeployID(report.DeployID))
			}
			return
		}

		if attempt >= d.policy.MaxRetries {
			slog.Error("Deployment failed, retries exhausted",
				slog.Int("attempts", attempt+1),
				logfields.Error(err))
			return
		}

		delay := d.policy.Delay(attempt + 1)
		slog.Warn("Deployment failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			logfields.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// serveMetrics runs the Prometheus endpoint until the returned stop function
// is called.
func (d *Daemon) serveMetrics(ctx context.Context) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	srv := &http.Server{
		Addr:              d.cfg.Daemon.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", logfields.URL("http://"+srv.Addr+"/metrics"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown failed", logfields.Error(err))
		}
	}
}
