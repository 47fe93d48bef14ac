package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Levels for child process output. OUTPUT sits below INFO so a report that
// starts at INFO leaves snapraid's stdout out; OUTERR sits above INFO so
// stderr chatter is always kept.
const (
	LevelOutput = slog.Level(-2)
	LevelOutErr = slog.Level(2)
)

const timeLayout = "2006-01-02 15:04:05,000"

// LevelName returns the label printed for level.
func LevelName(level slog.Level) string {
	switch {
	case level < LevelOutput:
		return "DEBUG"
	case level < slog.LevelInfo:
		return "OUTPUT"
	case level < LevelOutErr:
		return "INFO"
	case level < slog.LevelWarn:
		return "OUTERR"
	case level < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// Sink is one destination of the handler.
type Sink struct {
	Writer io.Writer
	Level  slog.Leveler
	Styled bool // colour the level label when Writer is a terminal
}

type sink struct {
	Sink
	styles map[string]lipgloss.Style
}

// Handler writes "time [LEVEL ] message key=value" lines to every sink
// whose level admits the record. All sinks share one mutex, so lines from
// concurrent goroutines never interleave.
type Handler struct {
	mu     *sync.Mutex
	sinks  []*sink
	prefix string // preformatted attrs from WithAttrs
	group  string
}

func NewHandler(sinks ...Sink) *Handler {
	h := &Handler{mu: &sync.Mutex{}}
	for _, s := range sinks {
		if s.Level == nil {
			s.Level = slog.LevelInfo
		}
		hs := &sink{Sink: s}
		if s.Styled {
			hs.styles = levelStyles(lipgloss.NewRenderer(s.Writer))
		}
		h.sinks = append(h.sinks, hs)
	}
	return h
}

func levelStyles(r *lipgloss.Renderer) map[string]lipgloss.Style {
	return map[string]lipgloss.Style{
		"DEBUG":   r.NewStyle().Faint(true),
		"OUTPUT":  r.NewStyle().Foreground(lipgloss.Color("245")),
		"INFO":    r.NewStyle().Foreground(lipgloss.Color("12")),
		"OUTERR":  r.NewStyle().Foreground(lipgloss.Color("214")),
		"WARNING": r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		"ERROR":   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if level >= s.Level.Level() {
			return true
		}
	}
	return false
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	name := LevelName(r.Level)
	label := fmt.Sprintf("%-6.6s", name)

	var body strings.Builder
	body.WriteString(r.Message)
	body.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&body, h.group, a)
		return true
	})
	body.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, s := range h.sinks {
		if r.Level < s.Level.Level() {
			continue
		}
		shown := label
		if style, ok := s.styles[name]; ok {
			shown = style.Render(label)
		}
		line := ts.Format(timeLayout) + " [" + shown + "] " + body.String()
		if _, err := io.WriteString(s.Writer, line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	clone := *h
	clone.prefix = b.String()
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}

	value := a.Value.String()
	if value == "" || strings.ContainsAny(value, " \t\n\"=") {
		value = strconv.Quote(value)
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
}
