package diff

import "fmt"

// ThresholdError reports a diff that removes more files than allowed.
type ThresholdError struct {
	Removed   int
	Threshold int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("deleted files (%d) exceed delete threshold of %d", e.Removed, e.Threshold)
}

// CheckDeleteThreshold guards against committing a mass deletion (an
// unmounted disk, say) to parity. A negative threshold or override disables
// the check.
func CheckDeleteThreshold(t Tally, threshold int, override bool) error {
	if override || threshold < 0 {
		return nil
	}
	if t.Remove > threshold {
		return &ThresholdError{Removed: t.Remove, Threshold: threshold}
	}
	return nil
}
