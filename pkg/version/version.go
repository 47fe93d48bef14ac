package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the runner version. Overridden at build time with
// -ldflags "-X github.com/olimci/snapraid-runner/pkg/version.Version=...".
var Version = "0.5.0"

// SemVer is a MAJOR.MINOR.PATCH triple.
type SemVer struct {
	Major int
	Minor int
	Patch int
}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 depending on whether v is older than, equal to
// or newer than other.
func (v SemVer) Compare(other SemVer) int {
	for _, pair := range [][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

// Parse accepts "MAJOR.MINOR.PATCH" with an optional leading "v".
func Parse(raw string) (SemVer, error) {
	value := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if value == "" {
		return SemVer{}, fmt.Errorf("version is empty")
	}

	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return SemVer{}, fmt.Errorf("invalid version %q (expected MAJOR.MINOR.PATCH)", raw)
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return SemVer{}, fmt.Errorf("invalid version component %q in %q", part, raw)
		}
		nums[i] = n
	}

	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// EnsureCompatible checks a version declared by a config file against the
// running binary. An empty declaration is always accepted so that config
// files from older runner releases keep working.
func EnsureCompatible(declared string) error {
	if strings.TrimSpace(declared) == "" {
		return nil
	}

	current, err := Parse(Version)
	if err != nil {
		return fmt.Errorf("parse runner version %q: %w", Version, err)
	}
	required, err := Parse(declared)
	if err != nil {
		return err
	}

	if required.Major != current.Major {
		return fmt.Errorf("config targets major version %d, runner is %s", required.Major, current)
	}
	if current.Compare(required) < 0 {
		return fmt.Errorf("config requires snapraid-runner >= %s (running %s)", required, current)
	}
	return nil
}
