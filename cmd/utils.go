package cmd

import (
	"fmt"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/digest"
	"github.com/urfave/cli/v3"
)

// loadConfig reads the file named by --conf. Failures carry ExitSetup.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := config.DefaultPath
	if root := cmd.Root(); root != nil && root.String("conf") != "" {
		path = root.String("conf")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("load config: %v", err), ExitSetup)
	}
	return cfg, nil
}

func isVerbose(cmd *cli.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Bool("verbose") {
		return true
	}
	root := cmd.Root()
	return root != nil && root.Bool("verbose")
}

// fingerprints hashes the files a run reads.
func fingerprints(cfg *config.Config) []digest.Named {
	return digest.Files(map[string]string{
		"config":      cfg.Path,
		"executable":  cfg.Snapraid.Executable,
		"tool config": cfg.Snapraid.Config,
	}, "config", "executable", "tool config")
}
