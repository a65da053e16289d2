package opt

import "sort"

// placement is a task index with its start minute in a window.
type placement struct {
	task, window, start int
}

// layout turns per-window task sequences into concrete placements. Windows
// holding only unconstrained tasks are ordered by task ID, since any order
// fits there; other windows keep their sequence. Tasks are left-packed.
func (m *Model) layout(plan [][]int) ([]placement, bool) {
	var out []placement
	var starts []int
	for wi, seq := range plan {
		if len(seq) == 0 {
			continue
		}
		ordered := seq
		if !m.anyConstrained(seq) {
			ordered = append([]int(nil), seq...)
			sort.Slice(ordered, func(i, j int) bool {
				return m.Instance.Tasks[ordered[i]].ID < m.Instance.Tasks[ordered[j]].ID
			})
		}
		var ok bool
		starts, ok = m.pack(wi, ordered, starts)
		if !ok {
			return nil, false
		}
		for i, ti := range ordered {
			out = append(out, placement{task: ti, window: wi, start: starts[i]})
		}
	}
	return out, true
}

func (m *Model) anyConstrained(seq []int) bool {
	for _, ti := range seq {
		if m.Instance.Tasks[ti].Constrained() {
			return true
		}
	}
	return false
}

// scoreOf computes the objective of placements already in schedule order.
func (m *Model) scoreOf(ps []placement) score {
	sc := score{count: len(ps), ids: make([]string, len(ps)), starts: make([]int, len(ps))}
	for i, p := range ps {
		t := m.Instance.Tasks[p.task]
		sc.priority += t.Priority
		sc.duration += t.Duration
		sc.ids[i] = t.ID
		sc.starts[i] = p.start
		if end := p.start + t.Duration - m.Instance.Horizon.Start(); end > sc.makespan {
			sc.makespan = end
		}
	}
	return sc
}

// assemble builds the public Schedule from placements in schedule order.
// extra carries tasks dropped by the solver beyond the model's infeasible set.
func (m *Model) assemble(ps []placement, extra []Unscheduled, optimal bool, mode Mode) Schedule {
	h := m.Instance.Horizon
	s := Schedule{
		Assignments: make([]Assignment, 0, len(ps)),
		Windows:     make([]WindowUsage, len(h.Windows)),
		Optimal:     optimal,
		Mode:        mode,
	}
	for wi, w := range h.Windows {
		s.Windows[wi] = WindowUsage{WindowID: w.ID, Length: w.Len()}
	}
	placed := make([]bool, len(m.Instance.Tasks))
	prevEnd := -1
	prevWin := -1
	for _, p := range ps {
		t := m.Instance.Tasks[p.task]
		w := h.Windows[p.window]
		if p.window != prevWin {
			prevEnd = w.Start
			prevWin = p.window
		}
		a := Assignment{
			TaskID:    t.ID,
			TaskName:  t.Name,
			WindowID:  w.ID,
			Start:     p.start,
			End:       p.start + t.Duration,
			Priority:  t.Priority,
			GapBefore: p.start - prevEnd,
		}
		prevEnd = a.End
		s.Assignments = append(s.Assignments, a)
		s.Windows[p.window].Used += t.Duration
		s.TotalPriority += t.Priority
		s.ScheduledDuration += t.Duration
		if end := a.End - h.Start(); end > s.Makespan {
			s.Makespan = end
		}
		placed[p.task] = true
	}
	for wi := range s.Windows {
		s.Windows[wi].Idle = s.Windows[wi].Length - s.Windows[wi].Used
	}
	s.TotalIdle = m.Capacity - s.ScheduledDuration
	if m.Capacity > 0 {
		s.Utilization = float64(s.ScheduledDuration) / float64(m.Capacity)
	}

	reasons := map[string]string{}
	for _, u := range m.Infeasible {
		reasons[u.TaskID] = u.Reason
	}
	for _, u := range extra {
		reasons[u.TaskID] = u.Reason
	}
	s.Unscheduled = []Unscheduled{}
	for ti, t := range m.Instance.Tasks {
		if placed[ti] {
			continue
		}
		r, ok := reasons[t.ID]
		if !ok {
			r = "not selected: lower value than the scheduled set"
		}
		s.Unscheduled = append(s.Unscheduled, Unscheduled{TaskID: t.ID, Reason: r})
	}
	sort.Slice(s.Unscheduled, func(i, j int) bool { return s.Unscheduled[i].TaskID < s.Unscheduled[j].TaskID })
	return s
}
