package opt

import "fmt"

// TieBreak names a criterion applied when schedules tie on total priority.
type TieBreak string

const (
	TieFewerUnscheduled TieBreak = "fewer_unscheduled"
	TieLessIdle         TieBreak = "less_idle"
	TieMakespan         TieBreak = "makespan"
	TieTaskID           TieBreak = "task_id"
)

// DefaultTieBreakOrder is used when the config leaves the order empty.
var DefaultTieBreakOrder = []TieBreak{TieFewerUnscheduled, TieLessIdle, TieTaskID}

// normalizeTieBreaks drops duplicates and appends the default criteria that
// are missing, so the resulting order is always total.
func normalizeTieBreaks(in []TieBreak) ([]TieBreak, error) {
	seen := map[TieBreak]bool{}
	out := make([]TieBreak, 0, len(in)+len(DefaultTieBreakOrder))
	for _, tb := range in {
		switch tb {
		case TieFewerUnscheduled, TieLessIdle, TieMakespan, TieTaskID:
		default:
			return nil, fmt.Errorf("unknown tie-break %q", tb)
		}
		if !seen[tb] {
			seen[tb] = true
			out = append(out, tb)
		}
	}
	for _, tb := range DefaultTieBreakOrder {
		if !seen[tb] {
			out = append(out, tb)
		}
	}
	return out, nil
}

// score is the comparable objective value of a laid-out schedule.
type score struct {
	priority int
	count    int
	duration int
	makespan int
	ids      []string // task IDs in schedule order
	starts   []int
}

// better reports whether a is strictly preferable to b.
func better(a, b score, order []TieBreak) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	for _, tb := range order {
		switch tb {
		case TieFewerUnscheduled:
			if a.count != b.count {
				return a.count > b.count
			}
		case TieLessIdle:
			if a.duration != b.duration {
				return a.duration > b.duration
			}
		case TieMakespan:
			if a.makespan != b.makespan {
				return a.makespan < b.makespan
			}
		case TieTaskID:
			if c := compareStrings(a.ids, b.ids); c != 0 {
				return c < 0
			}
		}
	}
	return compareInts(a.starts, b.starts) < 0
}

// bound is an optimistic estimate for every completion of a search node.
type bound struct {
	priority int
	count    int
	duration int
}

// boundWorse reports whether no completion covered by bd can beat inc. Only
// criteria with a valid upper bound are consulted; the first criterion that
// cannot be bounded ends the comparison.
func boundWorse(bd bound, inc score, order []TieBreak) bool {
	if bd.priority != inc.priority {
		return bd.priority < inc.priority
	}
	for _, tb := range order {
		switch tb {
		case TieFewerUnscheduled:
			if bd.count != inc.count {
				return bd.count < inc.count
			}
		case TieLessIdle:
			if bd.duration != inc.duration {
				return bd.duration < inc.duration
			}
		default:
			return false
		}
	}
	return false
}

func compareStrings(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func compareInts(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return len(a) - len(b)
}
