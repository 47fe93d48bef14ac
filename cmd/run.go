package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olimci/snapraid-runner/pkg/logging"
	"github.com/olimci/snapraid-runner/pkg/notify"
	"github.com/olimci/snapraid-runner/pkg/pipeline"
	"github.com/olimci/snapraid-runner/pkg/runner"
	"github.com/olimci/snapraid-runner/pkg/version"
	"github.com/urfave/cli/v3"
)

const notifyTimeout = 2 * time.Minute

var banner = strings.Repeat("=", 60)

func runAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Present() {
		return cli.Exit(fmt.Sprintf("unexpected argument %q", cmd.Args().First()), ExitSetup)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := logging.OptionsFromConfig(cfg, cmd.Root().Writer)
	opts.Verbose = isVerbose(cmd)
	logger, err := logging.New(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("setup logging: %v", err), ExitSetup)
	}
	defer logger.Close()

	runID := uuid.NewString()
	logger.Info(banner)
	logger.Info("Run started")
	logger.Info(banner)
	logger.Debug("run", "id", runID, "config", cfg.Path, "version", version.Version)
	for _, fp := range fingerprints(cfg) {
		if fp.Err == nil {
			logger.Debug("fingerprint", "file", fp.Name, "path", fp.Path, "digest", fp.Digest.String())
		}
	}

	dryRun := cmd.Bool("dry-run")
	if dryRun {
		logger.Info("Dry run: touch, sync and scrub will only be logged")
	}

	dispatcher := notify.FromConfig(cfg, logger.Logger)

	r := &runner.Runner{
		Executable: cfg.Snapraid.Executable,
		ConfigPath: cfg.Snapraid.Config,
		DryRun:     dryRun,
		Logger:     logger.Logger,
	}
	p := pipeline.New(cfg, r, logger.Logger, pipeline.Options{
		SkipScrub:             cmd.Bool("no-scrub"),
		IgnoreDeleteThreshold: cmd.Bool("ignore-deletethreshold"),
	})

	outcome := runPipeline(ctx, p, logger.Logger)
	if outcome.Success {
		logger.Info("Run finished successfully")
	} else {
		logger.Error("Run failed")
	}

	// An interrupted run still reports; only the notify timeout bounds delivery.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	// delivery errors are already logged by the dispatcher
	_ = dispatcher.Notify(notifyCtx, notify.Report{
		Success: outcome.Success,
		Log:     logger.Report(),
		RunID:   runID,
	})

	if !outcome.Success {
		return cli.Exit("", ExitFailure)
	}
	return nil
}

// runPipeline turns a panic anywhere in the run into a failed outcome so
// the report still goes out.
func runPipeline(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) (out pipeline.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(fmt.Sprintf("Run failed due to unexpected exception: %v\n%s", rec, debug.Stack()))
			out = pipeline.Outcome{Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return p.Run(ctx)
}
