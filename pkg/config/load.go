package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-ini/ini"
	"github.com/olimci/snapraid-runner/pkg/utils/fileutils"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "snapraid-runner.conf"

// sections holds raw values keyed by lower-cased section and key name.
type sections map[string]map[string]string

// Load reads the config file at path, applies environment overrides and
// validates the result. The file format follows the extension: .toml,
// .yaml/.yml, anything else is read as INI.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Environ())
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, environ []string) (*Config, error) {
	absPath, err := fileutils.AbsPath(path, "")
	if err != nil {
		return nil, err
	}
	if err := fileutils.RegularFile(absPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	raw, err := decodeFile(absPath)
	if err != nil {
		return nil, err
	}
	applyEnv(raw, environ)

	cfg, err := fromSections(raw, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	cfg.Path = absPath

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}
	return cfg, nil
}

func decodeFile(path string) (sections, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var doc map[string]any
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return fromTree(doc)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return fromTree(doc)
	default:
		return decodeINI(path)
	}
}

func decodeINI(path string) (sections, error) {
	// Only whole-line comments: passwords and URLs may contain '#' or ';'.
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	out := sections{}
	for _, sec := range f.Sections() {
		if strings.EqualFold(sec.Name(), ini.DefaultSection) {
			continue
		}
		values := make(map[string]string, len(sec.Keys()))
		for _, key := range sec.Keys() {
			values[strings.ToLower(key.Name())] = strings.TrimSpace(key.Value())
		}
		out[strings.ToLower(sec.Name())] = values
	}
	return out, nil
}

// fromTree flattens a decoded TOML or YAML document into sections.
func fromTree(doc map[string]any) (sections, error) {
	out := sections{}
	for name, body := range doc {
		table, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("top-level key %q must be a table", name)
		}
		values := make(map[string]string, len(table))
		for key, value := range table {
			s, err := scalarString(value)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, key, err)
			}
			values[strings.ToLower(key)] = s
		}
		out[strings.ToLower(name)] = values
	}
	return out, nil
}

func scalarString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

// reader converts raw strings to typed values and collects every conversion
// error so they can be reported together.
type reader struct {
	raw  sections
	errs []error
}

func (r *reader) lookup(section, key string) (string, bool) {
	v, ok := r.raw[section][key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *reader) str(section, key, def string) string {
	if v, ok := r.lookup(section, key); ok {
		return v
	}
	return def
}

func (r *reader) boolean(section, key string, def bool) bool {
	if v, ok := r.lookup(section, key); ok {
		return strings.EqualFold(v, "true")
	}
	return def
}

func (r *reader) integer(section, key string, def int) int {
	v, ok := r.lookup(section, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s.%s: %q is not an integer", section, key, v))
		return def
	}
	return n
}

func (r *reader) triggers(section, key string, def Triggers) Triggers {
	v, ok := r.lookup(section, key)
	if !ok {
		return def
	}
	var out Triggers
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) path(section, key, baseDir string) string {
	v, ok := r.lookup(section, key)
	if !ok {
		return ""
	}
	abs, err := fileutils.AbsPath(v, baseDir)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s.%s: %w", section, key, err))
		return ""
	}
	return abs
}

func fromSections(raw sections, baseDir string) (*Config, error) {
	def := Default()
	r := &reader{raw: raw}

	cfg := &Config{
		Runner: Runner{
			Version: r.str("runner", "version", ""),
		},
		Snapraid: Snapraid{
			Executable:      executablePath(r, baseDir),
			Config:          r.path("snapraid", "config", baseDir),
			DeleteThreshold: r.integer("snapraid", "deletethreshold", def.Snapraid.DeleteThreshold),
			Touch:           r.boolean("snapraid", "touch", false),
		},
		Logging: Logging{
			File:    r.path("logging", "file", baseDir),
			MaxSize: r.integer("logging", "maxsize", def.Logging.MaxSize),
			Backups: r.integer("logging", "backups", def.Logging.Backups),
		},
		Email: Email{
			SendOn:  r.triggers("email", "sendon", nil),
			Short:   r.boolean("email", "short", false),
			Subject: r.str("email", "subject", def.Email.Subject),
			From:    r.str("email", "from", ""),
			To:      r.str("email", "to", ""),
			MaxSize: r.integer("email", "maxsize", def.Email.MaxSize),
		},
		SMTP: SMTP{
			Host:     r.str("smtp", "host", ""),
			Port:     r.integer("smtp", "port", 0),
			User:     r.str("smtp", "user", ""),
			Password: r.str("smtp", "password", ""),
			SSL:      r.boolean("smtp", "ssl", false),
			TLS:      r.boolean("smtp", "tls", false),
		},
		Scrub: Scrub{
			Enabled:   r.boolean("scrub", "enabled", false),
			Plan:      scrubPlan(r, def.Scrub.Plan),
			OlderThan: r.integer("scrub", "older-than", def.Scrub.OlderThan),
		},
		Webhook: Webhook{
			Enabled:  r.boolean("webhook", "enabled", false),
			URL:      r.str("webhook", "url", ""),
			Username: r.str("webhook", "username", def.Webhook.Username),
			SendOn:   r.triggers("webhook", "sendon", def.Webhook.SendOn),
			MaxSize:  r.integer("webhook", "maxsize", def.Webhook.MaxSize),
		},
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// executablePath resolves a bare command name through PATH, anything else
// relative to the config file.
func executablePath(r *reader, baseDir string) string {
	if v, ok := r.lookup("snapraid", "executable"); ok && !strings.ContainsRune(v, filepath.Separator) {
		if found, err := exec.LookPath(v); err == nil {
			return found
		}
	}
	return r.path("snapraid", "executable", baseDir)
}

// scrubPlan prefers scrub.plan and falls back to the older scrub.percentage
// key so existing config files keep their meaning.
func scrubPlan(r *reader, def string) string {
	if plan, ok := r.lookup("scrub", "plan"); ok {
		return plan
	}
	if pct, ok := r.lookup("scrub", "percentage"); ok {
		return pct
	}
	return def
}
