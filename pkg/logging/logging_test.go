package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

var lineRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} \[[A-Z ]{6}\] `)

func TestLevelName(t *testing.T) {
	t.Parallel()

	cases := map[slog.Level]string{
		slog.LevelDebug: "DEBUG",
		LevelOutput:     "OUTPUT",
		slog.LevelInfo:  "INFO",
		LevelOutErr:     "OUTERR",
		slog.LevelWarn:  "WARNING",
		slog.LevelError: "ERROR",
	}
	for level, want := range cases {
		if got := LevelName(level); got != want {
			t.Errorf("LevelName(%d) = %q, want %q", level, got, want)
		}
	}
}

func TestHandlerFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(Sink{Writer: &buf, Level: LevelOutput}))

	logger.Log(context.Background(), LevelOutput, "Loading state")
	logger.Warn("careful", "path", "/mnt/disk 1", "count", 3)
	logger.With("step", "sync").Info("Running sync...")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if !lineRE.MatchString(line) {
			t.Fatalf("line %q does not match the log format", line)
		}
	}
	if !strings.HasSuffix(lines[0], "[OUTPUT] Loading state") {
		t.Errorf("unexpected output line: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `[WARNIN] careful path="/mnt/disk 1" count=3`) {
		t.Errorf("unexpected warning line: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "[INFO  ] Running sync... step=sync") {
		t.Errorf("unexpected info line: %q", lines[2])
	}
}

func TestHandlerFiltersPerSink(t *testing.T) {
	t.Parallel()

	var all, infoOnly bytes.Buffer
	logger := slog.New(NewHandler(
		Sink{Writer: &all, Level: LevelOutput},
		Sink{Writer: &infoOnly, Level: slog.LevelInfo},
	))

	logger.Log(context.Background(), LevelOutput, "stdout line")
	logger.Log(context.Background(), LevelOutErr, "stderr line")
	logger.Debug("hidden everywhere")

	if !strings.Contains(all.String(), "stdout line") || !strings.Contains(all.String(), "stderr line") {
		t.Fatalf("verbose sink missing lines: %q", all.String())
	}
	if strings.Contains(infoOnly.String(), "stdout line") {
		t.Fatalf("info sink should not contain OUTPUT lines: %q", infoOnly.String())
	}
	if !strings.Contains(infoOnly.String(), "stderr line") {
		t.Fatalf("info sink should contain OUTERR lines: %q", infoOnly.String())
	}
	if strings.Contains(all.String(), "hidden") {
		t.Fatalf("debug line should be dropped: %q", all.String())
	}
}

func TestHandlerSerializesConcurrentWriters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(Sink{Writer: &buf, Level: LevelOutput}))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				logger.Log(context.Background(), LevelOutput, fmt.Sprintf("writer %d line %d", g, i))
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	for _, line := range lines {
		if !lineRE.MatchString(line) {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}

func TestNewShortReportDropsChildStdout(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{ShortReport: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer logger.Close()

	logger.Log(context.Background(), LevelOutput, "add a.txt")
	logger.Log(context.Background(), LevelOutErr, "WARNING! disk almost full")
	logger.Info("Diff results")

	report := logger.Report()
	if strings.Contains(report, "add a.txt") {
		t.Fatalf("short report should not contain child stdout: %q", report)
	}
	if !strings.Contains(report, "disk almost full") || !strings.Contains(report, "Diff results") {
		t.Fatalf("short report missing lines: %q", report)
	}
}

func TestNewFullReportKeepsChildStdout(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer logger.Close()

	logger.Log(context.Background(), LevelOutput, "add a.txt")
	if !strings.Contains(logger.Report(), "add a.txt") {
		t.Fatalf("report should contain child stdout: %q", logger.Report())
	}
}

func TestNewWritesLogFile(t *testing.T) {
	t.Parallel()

	for _, maxSize := range []int{0, 64} {
		path := filepath.Join(t.TempDir(), "nested", "runner.log")

		logger, err := New(Options{File: path, MaxSizeKB: maxSize, Backups: 2})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Info("Run started")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close returned error: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if !strings.Contains(string(data), "[INFO  ] Run started") {
			t.Fatalf("maxsize=%d: log file missing line: %q", maxSize, data)
		}
	}
}
