// Package lane defines the seven canonical work-package lanes and the
// alias-resolution policy ("doing" -> "in_progress") applied to all input
// before it is ever persisted.
package lane

// Lane is one of the seven canonical lane values a work package can
// occupy. It is a closed set: there is no way to construct a Lane value
// outside this package's consts other than through Canonicalize, which
// always returns one of them.
type Lane string

const (
	Planned    Lane = "planned"
	Claimed    Lane = "claimed"
	InProgress Lane = "in_progress"
	ForReview  Lane = "for_review"
	Done       Lane = "done"
	Blocked    Lane = "blocked"
	Canceled   Lane = "canceled"
)

// All lists the seven canonical lanes in a stable, documented order.
var All = []Lane{Planned, Claimed, InProgress, ForReview, Done, Blocked, Canceled}

// aliases maps non-canonical input spellings to their canonical lane.
// "doing" is the only alias defined by the spec; it is resolved
// symmetrically on both from_lane and to_lane.
var aliases = map[string]Lane{
	"doing": InProgress,
}

// Canonicalize resolves aliases and validates that the result is one of
// the seven canonical lanes. Aliases never reach storage — only the
// return value of this function should ever be persisted.
func Canonicalize(raw string) (Lane, bool) {
	if canon, ok := aliases[raw]; ok {
		return canon, true
	}
	for _, l := range All {
		if string(l) == raw {
			return l, true
		}
	}
	return "", false
}

// IsTerminal reports whether l is one of the two terminal lanes.
func IsTerminal(l Lane) bool {
	return l == Done || l == Canceled
}

// Valid reports whether l is one of the seven canonical lanes (i.e. was
// never constructed by means other than Canonicalize/the exported
// consts).
func (l Lane) Valid() bool {
	for _, c := range All {
		if c == l {
			return true
		}
	}
	return false
}
