package logging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/olimci/snapraid-runner/pkg/config"
	"github.com/olimci/snapraid-runner/pkg/utils/fileutils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the sinks built by New.
type Options struct {
	Console io.Writer // nil disables console output
	Verbose bool      // debug lines on the console

	File      string // empty disables the log file
	MaxSizeKB int    // rotate after this many KiB, 0 appends forever
	Backups   int

	// ShortReport leaves child stdout out of the notification report.
	ShortReport bool
}

// OptionsFromConfig maps the logging and email sections onto Options.
func OptionsFromConfig(cfg *config.Config, console io.Writer) Options {
	return Options{
		Console:     console,
		File:        cfg.Logging.File,
		MaxSizeKB:   cfg.Logging.MaxSize,
		Backups:     cfg.Logging.Backups,
		ShortReport: cfg.Email.Short,
	}
}

// Logger is the run's logger together with the report buffer that later
// becomes the notification body.
type Logger struct {
	*slog.Logger

	report  *syncBuffer
	closers []io.Closer
}

// New builds the console, file and report sinks.
func New(opts Options) (*Logger, error) {
	l := &Logger{report: &syncBuffer{}}

	var sinks []Sink
	if opts.Console != nil {
		level := LevelOutput
		if opts.Verbose {
			level = slog.LevelDebug
		}
		sinks = append(sinks, Sink{Writer: opts.Console, Level: level, Styled: true})
	}

	if opts.File != "" {
		w, err := openLogFile(opts)
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, w)
		sinks = append(sinks, Sink{Writer: w, Level: LevelOutput})
	}

	reportLevel := LevelOutput
	if opts.ShortReport {
		reportLevel = slog.LevelInfo
	}
	sinks = append(sinks, Sink{Writer: l.report, Level: reportLevel})

	l.Logger = slog.New(NewHandler(sinks...))
	return l, nil
}

func openLogFile(opts Options) (io.WriteCloser, error) {
	if err := fileutils.EnsureParentDir(opts.File); err != nil {
		return nil, err
	}

	if opts.MaxSizeKB > 0 {
		return &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    (opts.MaxSizeKB + 1023) / 1024,
			MaxBackups: opts.Backups,
			LocalTime:  true,
		}, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	return f, nil
}

// Report returns everything logged at or above the report level so far.
func (l *Logger) Report() string {
	return l.report.String()
}

func (l *Logger) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
