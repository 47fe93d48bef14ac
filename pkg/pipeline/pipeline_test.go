package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/diff"
	"github.com/olimci/snapraid-runner/pkg/logging"
	"github.com/olimci/snapraid-runner/pkg/runner"
)

type fakeInvoker struct {
	results map[string]runner.Result
	errs    map[string]error
	calls   []runner.Invocation
}

func (f *fakeInvoker) Invoke(_ context.Context, inv runner.Invocation) (runner.Result, error) {
	f.calls = append(f.calls, inv)
	return f.results[inv.Command], f.errs[inv.Command]
}

func (f *fakeInvoker) commands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Command)
	}
	return out
}

func diffLines(lines ...string) map[string]runner.Result {
	return map[string]runner.Result{"diff": {Lines: lines, ExitCode: runner.DiffChangesFound}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Snapraid.Executable = filepath.Join(dir, "snapraid")
	cfg.Snapraid.Config = filepath.Join(dir, "snapraid.conf")
	for _, path := range []string{cfg.Snapraid.Executable, cfg.Snapraid.Config} {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return &cfg
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(logging.NewHandler(logging.Sink{Writer: &buf, Level: logging.LevelOutput})), &buf
}

func TestRunNoChangesSkipsSyncAndScrub(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scrub.Enabled = true
	inv := &fakeInvoker{results: map[string]runner.Result{"diff": {}}}
	logger, logs := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if !out.Success || out.Err != nil {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"diff"}) {
		t.Fatalf("commands = %v, want [diff]", got)
	}
	if out.Reached != StateDiffed {
		t.Fatalf("Reached = %s, want %s", out.Reached, StateDiffed)
	}
	if !strings.Contains(logs.String(), "No changes detected, no sync required") {
		t.Fatalf("missing no-changes line: %q", logs.String())
	}
}

func TestRunDiffInvocation(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	logger, _ := testLogger()
	New(testConfig(t), inv, logger, Options{}).Run(context.Background())

	if len(inv.calls) == 0 {
		t.Fatal("diff was not invoked")
	}
	d := inv.calls[0]
	if d.Command != "diff" || !d.ReadOnly || !slices.Contains(d.AllowedExitCodes, runner.DiffChangesFound) {
		t.Fatalf("diff invocation = %+v", d)
	}
}

func TestRunSyncsAndScrubs(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scrub.Enabled = true
	inv := &fakeInvoker{results: diffLines("add a", "update b")}
	logger, logs := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"diff", "sync", "scrub"}) {
		t.Fatalf("commands = %v", got)
	}
	if !slices.Equal(out.Ran, inv.commands()) {
		t.Fatalf("Ran = %v, want %v", out.Ran, inv.commands())
	}
	if out.Reached != StateScrubbed {
		t.Fatalf("Reached = %s, want %s", out.Reached, StateScrubbed)
	}
	if want := (diff.Tally{Add: 1, Update: 1}); out.Tally != want {
		t.Fatalf("Tally = %+v, want %+v", out.Tally, want)
	}
	text := logs.String()
	for _, want := range []string{"Diff results: 1 added, 0 removed, 0 moved, 1 modified", "Running sync...", "Running scrub...", "All done"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestRunScrubDisabled(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		enabled bool
		opts    Options
	}{
		{"config", false, Options{}},
		{"flag", true, Options{SkipScrub: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Scrub.Enabled = tc.enabled
			inv := &fakeInvoker{results: diffLines("add a")}
			logger, _ := testLogger()

			out := New(cfg, inv, logger, tc.opts).Run(context.Background())
			if !out.Success || out.Reached != StateSynced {
				t.Fatalf("outcome = %+v", out)
			}
			if got := inv.commands(); !slices.Equal(got, []string{"diff", "sync"}) {
				t.Fatalf("commands = %v", got)
			}
		})
	}
}

func TestRunDeleteThresholdGate(t *testing.T) {
	t.Parallel()

	removes := diffLines("remove 1", "remove 2", "remove 3", "remove 4", "remove 5")

	cfg := testConfig(t)
	cfg.Snapraid.DeleteThreshold = 2
	inv := &fakeInvoker{results: removes}
	logger, logs := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if out.Success {
		t.Fatal("gate should fail the run")
	}
	var thr *diff.ThresholdError
	if !errors.As(out.Err, &thr) || thr.Removed != 5 || thr.Threshold != 2 {
		t.Fatalf("Err = %v, want ThresholdError{5, 2}", out.Err)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"diff"}) {
		t.Fatalf("commands = %v, sync must not run", got)
	}
	if !strings.Contains(logs.String(), "Deleted files exceed delete threshold of 2, aborting") {
		t.Fatalf("missing gate message: %q", logs.String())
	}

	inv = &fakeInvoker{results: removes}
	out = New(cfg, inv, logger, Options{IgnoreDeleteThreshold: true}).Run(context.Background())
	if !out.Success {
		t.Fatalf("override should pass the gate: %+v", out)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"diff", "sync"}) {
		t.Fatalf("commands = %v", got)
	}
}

func TestRunSyncFailurePreventsScrub(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scrub.Enabled = true
	syncErr := &runner.CommandFailedError{Command: "sync", ExitCode: 1}
	inv := &fakeInvoker{results: diffLines("add a"), errs: map[string]error{"sync": syncErr}}
	logger, logs := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if out.Success || !errors.Is(out.Err, syncErr) {
		t.Fatalf("outcome = %+v, want sync failure", out)
	}
	if out.Reached != StateDiffed {
		t.Fatalf("Reached = %s, want %s", out.Reached, StateDiffed)
	}
	if slices.Contains(inv.commands(), "scrub") {
		t.Fatal("scrub must not run after a failed sync")
	}
	if !strings.Contains(logs.String(), "command 'snapraid sync' returned non-zero exit status 1") {
		t.Fatalf("failure not logged: %q", logs.String())
	}
}

func TestRunTouch(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Snapraid.Touch = true
	inv := &fakeInvoker{}
	logger, _ := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"touch", "diff"}) {
		t.Fatalf("commands = %v", got)
	}

	inv = &fakeInvoker{errs: map[string]error{"touch": errors.New("touch broke")}}
	out = New(cfg, inv, logger, Options{}).Run(context.Background())
	if out.Success || out.Reached != StatePreflightChecked {
		t.Fatalf("outcome = %+v, want failure at preflight-checked", out)
	}
	if got := inv.commands(); !slices.Equal(got, []string{"touch"}) {
		t.Fatalf("commands = %v, diff must not run", got)
	}
}

func TestRunPreflight(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Snapraid.Config = filepath.Join(t.TempDir(), "missing.conf")
	inv := &fakeInvoker{}
	logger, logs := testLogger()

	out := New(cfg, inv, logger, Options{}).Run(context.Background())
	if out.Success || out.Reached != StateInit {
		t.Fatalf("outcome = %+v, want preflight failure", out)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("no command should run, got %v", inv.commands())
	}
	if !strings.Contains(logs.String(), "snapraid config does not exist at") {
		t.Fatalf("missing preflight message: %q", logs.String())
	}
}

func TestScrubArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scrub config.Scrub
		want  []runner.Arg
	}{
		{config.Scrub{Plan: "12", OlderThan: 10}, []runner.Arg{{Flag: "plan", Value: "12"}, {Flag: "older-than", Value: "10"}}},
		{config.Scrub{Plan: " 5 ", OlderThan: 0}, []runner.Arg{{Flag: "plan", Value: "5"}, {Flag: "older-than", Value: "0"}}},
		{config.Scrub{Plan: "new", OlderThan: 10}, []runner.Arg{{Flag: "plan", Value: "new"}}},
		{config.Scrub{Plan: "bad"}, []runner.Arg{{Flag: "plan", Value: "bad"}}},
	}
	for _, tc := range cases {
		if got := ScrubArgs(tc.scrub); !slices.Equal(got, tc.want) {
			t.Errorf("ScrubArgs(%+v) = %v, want %v", tc.scrub, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if StatePreflightChecked.String() != "preflight-checked" || State(99).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
