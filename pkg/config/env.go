package config

import "strings"

// EnvPrefix starts every environment override, e.g. SNAPRAID_RUNNER_SMTP_PASSWORD.
const EnvPrefix = "SNAPRAID_RUNNER_"

var knownSections = []string{"runner", "snapraid", "logging", "email", "smtp", "scrub", "webhook"}

// applyEnv overlays SNAPRAID_RUNNER_<SECTION>_<KEY> variables onto raw.
// Underscores in the key part map to dashes (SCRUB_OLDER_THAN -> scrub.older-than).
// Variables naming an unknown section are ignored.
func applyEnv(raw sections, environ []string) {
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := splitEnvName(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)))
		if !ok {
			continue
		}
		if raw[section] == nil {
			raw[section] = map[string]string{}
		}
		raw[section][key] = strings.TrimSpace(value)
	}
}

func splitEnvName(name string) (string, string, bool) {
	for _, section := range knownSections {
		rest, found := strings.CutPrefix(name, section+"_")
		if found && rest != "" {
			return section, strings.ReplaceAll(rest, "_", "-"), true
		}
	}
	return "", "", false
}
