// Package notify delivers the run report over email and webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/olimci/snapraid-runner/pkg/config"
)

const (
	successPreamble = "SnapRAID job completed successfully:\n\n\n"
	errorPreamble   = "Error during SnapRAID job:\n\n\n"

	truncatedMarker = "--- LOG WAS TOO BIG - %d LINES REMOVED ---"
)

// Report is what a channel sends once the pipeline is done.
type Report struct {
	Success bool
	Log     string
	RunID   string
}

func (r Report) Status() string {
	if r.Success {
		return config.StatusSuccess
	}
	return config.StatusError
}

// Body is the preamble for the report status followed by log.
func (r Report) Body(log string) string {
	if r.Success {
		return successPreamble + log
	}
	return errorPreamble + log
}

type Channel interface {
	Name() string
	SendOn() config.Triggers
	Send(ctx context.Context, r Report) error
}

// Dispatcher fans a report out to every channel that wants it.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

func (d *Dispatcher) Channels() []Channel {
	return d.channels
}

// Notify sends r on every matching channel. A failing channel does not stop
// the others; the returned error joins every delivery failure and is only
// meant for logging.
func (d *Dispatcher) Notify(ctx context.Context, r Report) error {
	var errs []error
	for _, ch := range d.channels {
		if !ch.SendOn().Has(r.Status()) {
			continue
		}
		if err := ch.Send(ctx, r); err != nil {
			d.logger.Error(fmt.Sprintf("Failed to send %s notification: %v", ch.Name(), err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		d.logger.Debug("notification sent", "channel", ch.Name())
	}
	return errors.Join(errs...)
}

// Marker is the line that replaces the middle of a truncated log.
func Marker(removedLines int) string {
	return "\n" + fmt.Sprintf(truncatedMarker, removedLines) + "\n"
}

// Truncate caps text at max bytes by keeping the first and last halves and
// replacing the rest with Marker. Cuts land on rune boundaries, so the
// result is at most max+len(Marker(n)) bytes. max <= 0 means no limit.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	head := runeFloor(text, max/2)
	tail := runeCeil(text, len(text)-(max-max/2))
	removed := strings.Count(text[head:tail], "\n")

	return text[:head] + Marker(removed) + text[tail:]
}

func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// FromConfig builds the channels enabled in cfg. Channels that are missing
// required settings are skipped with a warning.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	var channels []Channel

	if len(cfg.Email.SendOn) > 0 {
		if missing := missingMailSettings(cfg); len(missing) > 0 {
			logger.Warn("Email notifications disabled, missing settings: " + strings.Join(missing, ", "))
		} else {
			channels = append(channels, NewMail(cfg.Email, cfg.SMTP))
		}
	}

	if cfg.Webhook.Enabled {
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			logger.Warn("Webhook notifications disabled, webhook.url is not set")
		} else {
			channels = append(channels, NewWebhook(cfg.Webhook, nil))
		}
	}

	return NewDispatcher(logger, channels...)
}

func missingMailSettings(cfg *config.Config) []string {
	var missing []string
	if strings.TrimSpace(cfg.SMTP.Host) == "" {
		missing = append(missing, "smtp.host")
	}
	if strings.TrimSpace(cfg.Email.From) == "" {
		missing = append(missing, "email.from")
	}
	if strings.TrimSpace(cfg.Email.To) == "" {
		missing = append(missing, "email.to")
	}
	return missing
}
