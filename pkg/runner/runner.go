// Package runner invokes the snapraid executable and captures its output.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/olimci/snapraid-runner/pkg/logging"
)

// DiffChangesFound is the exit code snapraid diff uses to report that the
// array differs from the last sync.
const DiffChangesFound = 2

const maxLineSize = 1 << 20

// Arg is a single "--flag value" pair.
type Arg struct {
	Flag  string
	Value string
}

// Invocation describes one snapraid command.
type Invocation struct {
	Command          string
	Args             []Arg
	AllowedExitCodes []int // exit codes besides 0 that mean success

	// ReadOnly commands still run in dry-run mode.
	ReadOnly bool
}

// Result is the captured stdout of a finished command.
type Result struct {
	Lines    []string
	ExitCode int
}

// CommandFailedError is returned when snapraid exits with a code the
// invocation does not allow.
type CommandFailedError struct {
	Command  string
	ExitCode int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command 'snapraid %s' returned non-zero exit status %d", e.Command, e.ExitCode)
}

// Runner runs snapraid commands against a single tool config.
type Runner struct {
	Executable string
	ConfigPath string
	DryRun     bool
	Logger     *slog.Logger
}

// Argv returns the full command line for inv, executable first.
func (r *Runner) Argv(inv Invocation) []string {
	argv := []string{r.Executable, inv.Command, "--conf", r.ConfigPath, "--quiet"}
	for _, a := range inv.Args {
		argv = append(argv, "--"+a.Flag, a.Value)
	}
	return argv
}

// Invoke runs inv to completion. stdout and stderr are drained concurrently
// and both drains finish before the process is reaped, so the returned
// result always holds the complete output.
func (r *Runner) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	logger := r.logger()
	argv := r.Argv(inv)

	if r.DryRun && !inv.ReadOnly {
		logger.Info("dry run, not executing: " + strings.Join(argv, " "))
		return Result{}, nil
	}
	logger.Debug("executing", "argv", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start snapraid %s: %w", inv.Command, err)
	}

	var (
		lines      []string
		outErr     error
		errErr     error
		drainGroup sync.WaitGroup
	)
	drainGroup.Add(2)
	go func() {
		defer drainGroup.Done()
		outErr = drain(stdout, func(line string) {
			logger.Log(ctx, logging.LevelOutput, line)
			lines = append(lines, line)
		})
	}()
	go func() {
		defer drainGroup.Done()
		errErr = drain(stderr, func(line string) {
			logger.Log(ctx, logging.LevelOutErr, line)
		})
	}()
	drainGroup.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("wait for snapraid %s: %w", inv.Command, err)
		}
		exitCode = exitErr.ExitCode()
	}

	res := Result{Lines: lines, ExitCode: exitCode}
	if exitCode != 0 && !slices.Contains(inv.AllowedExitCodes, exitCode) {
		return res, &CommandFailedError{Command: inv.Command, ExitCode: exitCode}
	}
	if err := errors.Join(outErr, errErr); err != nil {
		return res, fmt.Errorf("read snapraid %s output: %w", inv.Command, err)
	}
	return res, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// drain calls fn for every line of rd. If a line overflows the scanner the
// rest of the stream is discarded so the child never blocks on a full pipe.
func drain(rd io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(strings.TrimRight(scanner.Text(), " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, rd)
		return err
	}
	return nil
}
