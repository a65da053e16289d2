package opt

import "sort"

// Span is the range of feasible start minutes for a task inside one window.
type Span struct {
	Window   int // index into Horizon.Windows
	Earliest int
	Latest   int
}

// Model is the constraint system derived from an Instance. It is read-only
// during a solve and safe to share between search workers.
type Model struct {
	Instance Instance
	Capacity int
	// Spans holds, per task index, the windows the task can be placed in.
	Spans [][]Span
	// Infeasible lists tasks with no placement at all.
	Infeasible        []Unscheduled
	MandatoryDuration int

	// span[t][w] mirrors Spans for O(1) lookup; ok=false when w is unusable.
	span     [][]spanAt
	feasible []int // task indices that have at least one span
}

type spanAt struct {
	lo, hi int
	ok     bool
}

// BuildModel translates an instance into placement domains and runs the
// over-commitment and infeasibility pre-checks.
func BuildModel(inst Instance) (*Model, error) {
	h := inst.Horizon
	m := &Model{
		Instance: inst,
		Capacity: h.Capacity(),
		Spans:    make([][]Span, len(inst.Tasks)),
		span:     make([][]spanAt, len(inst.Tasks)),
	}
	var mandatoryIDs, stranded []string
	for ti, t := range inst.Tasks {
		m.span[ti] = make([]spanAt, len(h.Windows))
		for wi, w := range h.Windows {
			lo, end := w.Start, w.End
			if t.EarliestStart != nil && *t.EarliestStart > lo {
				lo = *t.EarliestStart
			}
			if t.Deadline != nil && *t.Deadline < end {
				end = *t.Deadline
			}
			hi := end - t.Duration
			if lo > hi {
				continue
			}
			m.span[ti][wi] = spanAt{lo: lo, hi: hi, ok: true}
			m.Spans[ti] = append(m.Spans[ti], Span{Window: wi, Earliest: lo, Latest: hi})
		}
		if t.Mandatory {
			m.MandatoryDuration += t.Duration
			mandatoryIDs = append(mandatoryIDs, t.ID)
		}
		if len(m.Spans[ti]) == 0 {
			m.Infeasible = append(m.Infeasible, Unscheduled{TaskID: t.ID, Reason: infeasibleReason(t, h)})
			if t.Mandatory {
				stranded = append(stranded, t.ID)
			}
			continue
		}
		m.feasible = append(m.feasible, ti)
	}
	sort.Slice(m.Infeasible, func(i, j int) bool { return m.Infeasible[i].TaskID < m.Infeasible[j].TaskID })

	if m.MandatoryDuration > m.Capacity {
		sort.Strings(mandatoryIDs)
		return nil, &OverCommittedError{Required: m.MandatoryDuration, Capacity: m.Capacity, TaskIDs: mandatoryIDs,
			Reason: "mandatory duration exceeds capacity"}
	}
	if len(stranded) > 0 {
		sort.Strings(stranded)
		return nil, &OverCommittedError{Required: m.MandatoryDuration, Capacity: m.Capacity, TaskIDs: stranded,
			Reason: "mandatory task fits no window"}
	}
	if len(inst.Tasks) > 0 && len(m.feasible) == 0 {
		return nil, &InfeasibleError{Tasks: len(inst.Tasks), Capacity: m.Capacity, Reasons: m.Infeasible}
	}
	return m, nil
}

func infeasibleReason(t Task, h Horizon) string {
	longest := 0
	for _, w := range h.Windows {
		if w.Len() > longest {
			longest = w.Len()
		}
	}
	if t.Duration > longest {
		return "duration exceeds every window"
	}
	return "no window satisfies earliest-start/deadline"
}

// CanPlace reports whether task ti may start at minute start in window wi.
func (m *Model) CanPlace(ti, wi, start int) bool {
	s := m.span[ti][wi]
	return s.ok && start >= s.lo && start <= s.hi
}

// pack left-packs seq in window wi and returns the start of each task, or
// ok=false when some task would miss its latest start.
func (m *Model) pack(wi int, seq []int, starts []int) ([]int, bool) {
	starts = starts[:0]
	cur := m.Instance.Horizon.Windows[wi].Start
	for _, ti := range seq {
		s := m.span[ti][wi]
		if !s.ok {
			return starts, false
		}
		st := cur
		if s.lo > st {
			st = s.lo
		}
		if st > s.hi {
			return starts, false
		}
		starts = append(starts, st)
		cur = st + m.Instance.Tasks[ti].Duration
	}
	return starts, true
}

// denser compares tasks by priority per minute, descending; ties go to the
// higher priority, then the smaller ID.
func (m *Model) denser(a, b int) bool {
	ta, tb := m.Instance.Tasks[a], m.Instance.Tasks[b]
	l, r := ta.Priority*tb.Duration, tb.Priority*ta.Duration
	if l != r {
		return l > r
	}
	if ta.Priority != tb.Priority {
		return ta.Priority > tb.Priority
	}
	return ta.ID < tb.ID
}
