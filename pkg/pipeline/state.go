package pipeline

// State is a point in the run. Touched, Synced and Scrubbed are only
// entered when the corresponding step runs.
type State int

const (
	StateInit State = iota
	StatePreflightChecked
	StateTouched
	StateDiffed
	StateSynced
	StateScrubbed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePreflightChecked:
		return "preflight-checked"
	case StateTouched:
		return "touched"
	case StateDiffed:
		return "diffed"
	case StateSynced:
		return "synced"
	case StateScrubbed:
		return "scrubbed"
	default:
		return "unknown"
	}
}
