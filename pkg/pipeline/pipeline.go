// Package pipeline sequences the snapraid steps of a single run:
// touch (optional), diff, delete-threshold check, sync, scrub (optional).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/diff"
	"github.com/olimci/snapraid-runner/pkg/runner"
	"github.com/olimci/snapraid-runner/pkg/utils/fileutils"
)

const separator = "************************************************************"

// Invoker runs one snapraid command. *runner.Runner implements it.
type Invoker interface {
	Invoke(ctx context.Context, inv runner.Invocation) (runner.Result, error)
}

// Options are the per-run overrides taken from the command line.
type Options struct {
	SkipScrub             bool
	IgnoreDeleteThreshold bool
}

// Outcome is the single terminal result of a run.
type Outcome struct {
	Success bool
	Reached State // last state entered before Done
	Tally   diff.Tally
	Err     error
	Ran     []string // snapraid commands invoked, in order
}

func (o Outcome) Status() string {
	if o.Success {
		return config.StatusSuccess
	}
	return config.StatusError
}

type Pipeline struct {
	cfg     *config.Config
	invoker Invoker
	logger  *slog.Logger
	opts    Options
}

func New(cfg *config.Config, invoker Invoker, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, invoker: invoker, logger: logger, opts: opts}
}

// Run drives the state machine to Done and returns the outcome. Failures
// are reported through the outcome, never by panicking or exiting.
func (p *Pipeline) Run(ctx context.Context) Outcome {
	o := Outcome{Reached: StateInit}

	if err := p.preflight(); err != nil {
		p.logger.Error(err.Error())
		return failed(o, err)
	}
	o.Reached = StatePreflightChecked

	if p.cfg.Snapraid.Touch {
		if _, err := p.step(ctx, &o, "touch", runner.Invocation{Command: "touch"}); err != nil {
			return failed(o, err)
		}
		o.Reached = StateTouched
	}

	res, err := p.step(ctx, &o, "diff", runner.Invocation{
		Command:          "diff",
		AllowedExitCodes: []int{runner.DiffChangesFound},
		ReadOnly:         true,
	})
	if err != nil {
		return failed(o, err)
	}
	o.Tally = diff.Analyze(res.Lines)
	o.Reached = StateDiffed
	p.logger.Info("Diff results: " + o.Tally.String())

	threshold := p.cfg.Snapraid.DeleteThreshold
	if err := diff.CheckDeleteThreshold(o.Tally, threshold, p.opts.IgnoreDeleteThreshold); err != nil {
		p.logger.Error(fmt.Sprintf("Deleted files exceed delete threshold of %d, aborting", threshold))
		p.logger.Error("Run again with --ignore-deletethreshold to sync anyway")
		return failed(o, err)
	}

	if o.Tally.Total() == 0 {
		p.logger.Info("No changes detected, no sync required")
		o.Success = true
		return o
	}

	if _, err := p.step(ctx, &o, "sync", runner.Invocation{Command: "sync"}); err != nil {
		return failed(o, err)
	}
	o.Reached = StateSynced

	if p.cfg.Scrub.Enabled && !p.opts.SkipScrub {
		inv := runner.Invocation{Command: "scrub", Args: ScrubArgs(p.cfg.Scrub)}
		if _, err := p.step(ctx, &o, "scrub", inv); err != nil {
			return failed(o, err)
		}
		o.Reached = StateScrubbed
	} else if p.cfg.Scrub.Enabled {
		p.logger.Info("Scrub disabled for this run (--no-scrub)")
	}

	p.logger.Info("All done")
	o.Success = true
	return o
}

func (p *Pipeline) preflight() error {
	if err := fileutils.RegularFile(p.cfg.Snapraid.Executable); err != nil {
		return fmt.Errorf("snapraid executable does not exist at %s: %w", p.cfg.Snapraid.Executable, err)
	}
	if err := fileutils.RegularFile(p.cfg.Snapraid.Config); err != nil {
		return fmt.Errorf("snapraid config does not exist at %s: %w", p.cfg.Snapraid.Config, err)
	}
	return nil
}

func (p *Pipeline) step(ctx context.Context, o *Outcome, name string, inv runner.Invocation) (runner.Result, error) {
	p.logger.Info("Running " + name + "...")
	o.Ran = append(o.Ran, inv.Command)

	res, err := p.invoker.Invoke(ctx, inv)
	if err != nil {
		p.logger.Error(err.Error())
		return res, err
	}
	p.logger.Info(separator)
	return res, nil
}

func failed(o Outcome, err error) Outcome {
	o.Success = false
	o.Err = err
	return o
}

// ScrubArgs builds the scrub flags. An integer plan is a percentage and is
// paired with --older-than; anything else is passed through as a named plan.
func ScrubArgs(s config.Scrub) []runner.Arg {
	if pct, ok := s.PercentagePlan(); ok {
		return []runner.Arg{
			{Flag: "plan", Value: strconv.Itoa(pct)},
			{Flag: "older-than", Value: strconv.Itoa(s.OlderThan)},
		}
	}
	return []runner.Arg{{Flag: "plan", Value: strings.TrimSpace(s.Plan)}}
}
