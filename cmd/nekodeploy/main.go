package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
	"git.home.luguber.info/inful/nekodeploy/internal/daemon"
	"git.home.luguber.info/inful/nekodeploy/internal/deploy"
	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/history"
	"git.home.luguber.info/inful/nekodeploy/internal/metrics"
	"git.home.luguber.info/inful/nekodeploy/internal/notify"
	"git.home.luguber.info/inful/nekodeploy/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"nekodeploy.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Deploy struct {
		DryRun bool   `help:"Stage and archive locally without uploading"`
		Folder string `help:"Override the target folder"`
	} `cmd:"" help:"Deploy the build output to the configured site"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int `short:"n" help:"Number of deployments to show" default:"20"`
	} `cmd:"" help:"Show recent deployments from the local journal"`

	Daemon struct{} `cmd:"" help:"Watch the build output and keep the site deployed"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	errHandler := deployerrors.NewCLIErrorAdapter(CLI.Verbose, logger)

	switch kctx.Command() {
	case "deploy":
		errHandler.HandleError(runDeploy())
	case "init":
		errHandler.HandleError(runInit())
	case "history":
		errHandler.HandleError(runHistory())
	case "daemon":
		errHandler.HandleError(runDaemon())
	case "version":
		fmt.Printf("nekodeploy %s (built %s, commit %s)\n", version.Version, version.BuildTime, version.GitCommit)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.Deploy.Folder != "" {
		cfg.Site.Folder = CLI.Deploy.Folder
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDeploy() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, cleanup, err := assembleDeployer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	d.SetDryRun(CLI.Deploy.DryRun)

	report, err := d.Run(ctx)
	if err != nil {
		return err
	}

	switch report.Outcome {
	case deploy.OutcomeWarning:
		fmt.Printf("Deployed %s with warnings (%d bytes uploaded)\n", report.Folder, report.UploadedBytes)
	default:
		if CLI.Deploy.DryRun {
			fmt.Printf("Dry run complete: %d files staged for %s\n", report.ArchiveEntries, report.Folder)
		} else {
			fmt.Printf("Deployed %s (%d bytes uploaded)\n", report.Folder, report.UploadedBytes)
		}
	}
	return nil
}

func runInit() error {
	if err := config.WriteStarter(CLI.Config, CLI.Init.Force); err != nil {
		return err
	}
	fmt.Printf("Wrote starter configuration to %s\n", CLI.Config)
	return nil
}

func runHistory() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return deployerrors.ConfigError("history.path is not configured")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), CLI.History.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No deployments recorded yet")
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-7s  %s  %d bytes  %s",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Outcome,
			rec.Folder,
			rec.Bytes,
			rec.Duration.Round(time.Millisecond))
		if rec.Error != "" {
			line += "  " + rec.Error
		}
		fmt.Println(line)
	}
	return nil
}

func runDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, cleanup, err := assembleDeployer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prom.NewRegistry()
	d.SetRecorder(metrics.NewPrometheusRecorder(registry))

	daemonized := daemon.New(cfg, d)
	daemonized.SetMetricsRegistry(registry)

	slog.Info("Daemon started, waiting for shutdown signal...")
	return daemonized.Run(ctx)
}

// assembleDeployer wires the optional journal and notifier into a Deployer.
// The returned cleanup closes whatever was opened.
func assembleDeployer(cfg *config.Config) (*deploy.Deployer, func(), error) {
	d := deploy.New(cfg)

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, err
		}
		d.SetJournal(store)
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close history journal", "error", err)
			}
		})
	}

	if cfg.Notify.Enabled {
		publisher, err := notify.NewPublisher(&cfg.Notify)
		if err != nil {
			// Notifications never block a deployment.
			slog.Warn("Deploy notifications unavailable", "error", err)
		} else {
			d.SetNotifier(publisher)
			closers = append(closers, publisher.Close)
		}
	}

	return d, cleanup, nil
}
