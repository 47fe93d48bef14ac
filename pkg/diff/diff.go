package diff

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind is the leading token snapraid diff prints for a changed file.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindMove   Kind = "move"
	KindUpdate Kind = "update"
)

// Kinds lists the change kinds in report order.
var Kinds = []Kind{KindAdd, KindRemove, KindMove, KindUpdate}

// Tally counts diff lines per change kind.
type Tally struct {
	Add    int
	Remove int
	Move   int
	Update int
}

// Total is the number of changed files.
func (t Tally) Total() int {
	return t.Add + t.Remove + t.Move + t.Update
}

// Count returns the count for kind, 0 for anything unrecognized.
func (t Tally) Count(kind Kind) int {
	switch kind {
	case KindAdd:
		return t.Add
	case KindRemove:
		return t.Remove
	case KindMove:
		return t.Move
	case KindUpdate:
		return t.Update
	default:
		return 0
	}
}

func (t Tally) String() string {
	return fmt.Sprintf("%d added, %d removed, %d moved, %d modified", t.Add, t.Remove, t.Move, t.Update)
}

// Analyze tallies diff output. The token is everything before the first
// whitespace character, so indented lines and blank lines never count.
func Analyze(lines []string) Tally {
	var t Tally
	for _, line := range lines {
		switch Kind(leadingToken(line)) {
		case KindAdd:
			t.Add++
		case KindRemove:
			t.Remove++
		case KindMove:
			t.Move++
		case KindUpdate:
			t.Update++
		}
	}
	return t
}

func leadingToken(line string) string {
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		return line[:i]
	}
	return line
}
