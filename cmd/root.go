package cmd

import (
	"context"
	"io"
	"os"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/version"
	"github.com/urfave/cli/v3"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // a pipeline step failed or the gate tripped
	ExitSetup   = 2 // config or logging could not be set up
)

// Running with no subcommand performs one full run:
//   touch (when snapraid.touch is set)
//   diff, then the delete threshold check
//   sync, unless diff found nothing
//   scrub (when scrub.enabled is set and --no-scrub is not given)
// and finally sends the report on the configured channels.
//
// validate
//   loads the config and prints what a run would execute
//
// version
//   prints the runner version

func Execute(ctx context.Context, args []string) error {
	return newApp(os.Stdout, os.Stderr).Run(ctx, args)
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "snapraid-runner",
		Usage:     "run snapraid diff, sync and scrub and report the result",
		Version:   version.Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "conf",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "configuration file",
				Sources: cli.EnvVars("SNAPRAID_RUNNER_CONF"),
			},
			&cli.BoolFlag{
				Name:  "no-scrub",
				Usage: "do not scrub, overriding scrub.enabled",
			},
			&cli.BoolFlag{
				Name:  "ignore-deletethreshold",
				Usage: "sync even if the delete threshold is exceeded",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "log touch, sync and scrub instead of running them",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "show debug output on the console",
			},
		},
		Commands: []*cli.Command{
			validateCommand(),
			versionCommand(),
		},
		Action: runAction,
		// main owns the exit; errors are returned as cli.ExitCoder.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}
