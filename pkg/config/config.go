package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/olimci/snapraid-runner/pkg/version"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	ErrNoExecutable = errors.New("snapraid.executable is not set")
	ErrNoToolConfig = errors.New("snapraid.config is not set")
)

// Config is the settings snapshot for a single run. It is built once by
// Load and must not be modified afterwards.
type Config struct {
	Path string // absolute path of the file the config was read from

	Runner   Runner
	Snapraid Snapraid
	Logging  Logging
	Email    Email
	SMTP     SMTP
	Scrub    Scrub
	Webhook  Webhook
}

type Runner struct {
	Version string // minimum runner version the file was written for
}

type Snapraid struct {
	Executable      string
	Config          string // snapraid's own config file
	DeleteThreshold int    // negative disables the check
	Touch           bool
}

type Logging struct {
	File    string
	MaxSize int // KiB, 0 disables rotation
	Backups int
}

type Email struct {
	SendOn  Triggers
	Short   bool // leave child stdout out of the report
	Subject string
	From    string
	To      string
	MaxSize int // KiB, 0 means unlimited
}

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	SSL      bool // implicit TLS
	TLS      bool // STARTTLS
}

type Scrub struct {
	Enabled   bool
	Plan      string // integer percentage or a named plan (bad, new, full, ...)
	OlderThan int
}

type Webhook struct {
	Enabled  bool
	URL      string
	Username string
	SendOn   Triggers
	MaxSize  int // characters
}

// Triggers is the set of run statuses a channel reports on.
type Triggers []string

func (t Triggers) Has(status string) bool {
	for _, s := range t {
		if s == status {
			return true
		}
	}
	return false
}

func (t Triggers) String() string {
	return strings.Join(t, ",")
}

// PercentagePlan reports whether the scrub plan is an integer percentage.
// snapraid accepts either a number or a plan name for --plan and only takes
// --older-than alongside a number.
func (s Scrub) PercentagePlan() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s.Plan))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Default returns the settings used for keys absent from the config file.
func Default() Config {
	return Config{
		Snapraid: Snapraid{
			DeleteThreshold: 40,
		},
		Logging: Logging{
			MaxSize: 5000,
			Backups: 9,
		},
		Email: Email{
			Subject: "[SnapRAID] Status Report:",
			MaxSize: 500,
		},
		Scrub: Scrub{
			Plan:      "12",
			OlderThan: 10,
		},
		Webhook: Webhook{
			Username: "snapraid-runner",
			SendOn:   Triggers{StatusSuccess, StatusError},
			MaxSize:  2000,
		},
	}
}

// Validate checks settings that would make a run meaningless. Missing
// notification settings are not errors: the affected channel is skipped at
// notification time.
func (c *Config) Validate() error {
	var errs []error

	if err := version.EnsureCompatible(c.Runner.Version); err != nil {
		errs = append(errs, fmt.Errorf("unsupported config version %q: %w", c.Runner.Version, err))
	}
	if c.Snapraid.Executable == "" {
		errs = append(errs, ErrNoExecutable)
	}
	if c.Snapraid.Config == "" {
		errs = append(errs, ErrNoToolConfig)
	}
	if c.Logging.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("logging.maxsize must not be negative, got %d", c.Logging.MaxSize))
	}
	if c.Logging.Backups < 0 {
		errs = append(errs, fmt.Errorf("logging.backups must not be negative, got %d", c.Logging.Backups))
	}
	if c.Email.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("email.maxsize must not be negative, got %d", c.Email.MaxSize))
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port out of range: %d", c.SMTP.Port))
	}
	if c.Scrub.OlderThan < 0 {
		errs = append(errs, fmt.Errorf("scrub.older-than must not be negative, got %d", c.Scrub.OlderThan))
	}
	if strings.TrimSpace(c.Scrub.Plan) == "" {
		errs = append(errs, fmt.Errorf("scrub.plan is empty"))
	}
	if c.Webhook.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("webhook.maxsize must not be negative, got %d", c.Webhook.MaxSize))
	}
	for _, triggers := range []struct {
		key string
		set Triggers
	}{
		{"email.sendon", c.Email.SendOn},
		{"webhook.sendon", c.Webhook.SendOn},
	} {
		for _, s := range triggers.set {
			if s != StatusSuccess && s != StatusError {
				errs = append(errs, fmt.Errorf("%s: unknown status %q (want success or error)", triggers.key, s))
			}
		}
	}

	return errors.Join(errs...)
}
