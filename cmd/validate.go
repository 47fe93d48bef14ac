package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/logging"
	"github.com/olimci/snapraid-runner/pkg/notify"
	"github.com/olimci/snapraid-runner/pkg/pipeline"
	"github.com/olimci/snapraid-runner/pkg/runner"
	"github.com/olimci/snapraid-runner/pkg/utils/fileutils"
	"github.com/urfave/cli/v3"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "check the configuration and print the commands a run would execute",
		Action: validateAction,
	}
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Present() {
		return cli.Exit("validate does not accept arguments", ExitSetup)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer

	var missing []string
	for _, path := range []string{cfg.Snapraid.Executable, cfg.Snapraid.Config} {
		if err := fileutils.RegularFile(path); err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", path, err))
		}
	}
	if len(missing) > 0 {
		return cli.Exit("missing files:\n  "+strings.Join(missing, "\n  "), ExitSetup)
	}

	fmt.Fprintf(out, "validated %s\n", cfg.Path)
	if cfg.Snapraid.DeleteThreshold < 0 {
		fmt.Fprintln(out, "delete threshold: disabled")
	} else {
		fmt.Fprintf(out, "delete threshold: %d\n", cfg.Snapraid.DeleteThreshold)
	}

	fmt.Fprintln(out, "commands:")
	r := &runner.Runner{Executable: cfg.Snapraid.Executable, ConfigPath: cfg.Snapraid.Config}
	for _, inv := range plannedInvocations(cfg) {
		fmt.Fprintf(out, "  %s\n", strings.Join(r.Argv(inv), " "))
	}

	fmt.Fprintln(out, "fingerprints:")
	for _, fp := range fingerprints(cfg) {
		if fp.Err != nil {
			fmt.Fprintf(out, "  %-12s unreadable: %v\n", fp.Name, fp.Err)
			continue
		}
		fmt.Fprintf(out, "  %-12s %s\n", fp.Name, fp.Digest.Short())
	}

	warnings := slog.New(logging.NewHandler(logging.Sink{Writer: cmd.Root().ErrWriter, Level: slog.LevelWarn}))
	printChannels(out, notify.FromConfig(cfg, warnings))
	return nil
}

func plannedInvocations(cfg *config.Config) []runner.Invocation {
	var invs []runner.Invocation
	if cfg.Snapraid.Touch {
		invs = append(invs, runner.Invocation{Command: "touch"})
	}
	invs = append(invs, runner.Invocation{Command: "diff"}, runner.Invocation{Command: "sync"})
	if cfg.Scrub.Enabled {
		invs = append(invs, runner.Invocation{Command: "scrub", Args: pipeline.ScrubArgs(cfg.Scrub)})
	}
	return invs
}

func printChannels(w io.Writer, d *notify.Dispatcher) {
	fmt.Fprintln(w, "notifications:")
	if len(d.Channels()) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, ch := range d.Channels() {
		fmt.Fprintf(w, "  %s on %s\n", ch.Name(), ch.SendOn())
	}
}
