package opt

import "sort"

// interval is a free stretch [start, end) inside a window.
type interval struct{ start, end int }

// freeMap tracks remaining contiguous capacity per window.
type freeMap [][]interval

func newFreeMap(h Horizon) freeMap {
	f := make(freeMap, len(h.Windows))
	for wi, w := range h.Windows {
		f[wi] = []interval{{w.Start, w.End}}
	}
	return f
}

// fit finds the earliest start for task ti in window wi, or -1.
func (f freeMap) fit(m *Model, ti, wi int) (slot, start int) {
	s := m.span[ti][wi]
	if !s.ok {
		return -1, -1
	}
	dur := m.Instance.Tasks[ti].Duration
	for k, iv := range f[wi] {
		st := iv.start
		if s.lo > st {
			st = s.lo
		}
		if st <= s.hi && st+dur <= iv.end {
			return k, st
		}
	}
	return -1, -1
}

// take carves [start, start+dur) out of free slot k of window wi.
func (f freeMap) take(wi, k, start, dur int) {
	iv := f[wi][k]
	var repl []interval
	if start > iv.start {
		repl = append(repl, interval{iv.start, start})
	}
	if start+dur < iv.end {
		repl = append(repl, interval{start + dur, iv.end})
	}
	rest := append(repl, f[wi][k+1:]...)
	f[wi] = append(f[wi][:k], rest...)
}

// release returns [start, start+dur) to window wi, merging neighbours.
func (f freeMap) release(wi, start, dur int) {
	ivs := append(f[wi], interval{start, start + dur})
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	merged := ivs[:0]
	for _, iv := range ivs {
		if n := len(merged); n > 0 && merged[n-1].end == iv.start {
			merged[n-1].end = iv.end
			continue
		}
		merged = append(merged, iv)
	}
	f[wi] = merged
}

// greedyState is the placement table of one greedy pass.
type greedyState struct {
	m      *Model
	free   freeMap
	at     []placement // per task; window -1 when not placed
	placed int
}

func (g *greedyState) place(ti int) bool {
	for wi := range g.m.Instance.Horizon.Windows {
		if k, st := g.free.fit(g.m, ti, wi); k >= 0 {
			g.free.take(wi, k, st, g.m.Instance.Tasks[ti].Duration)
			g.at[ti] = placement{task: ti, window: wi, start: st}
			g.placed++
			return true
		}
	}
	return false
}

func (g *greedyState) unplace(ti int) {
	p := g.at[ti]
	g.free.release(p.window, p.start, g.m.Instance.Tasks[ti].Duration)
	g.at[ti] = placement{task: ti, window: -1}
	g.placed--
}

// greedyOrder returns feasible tasks, mandatory first, then by density.
func (m *Model) greedyOrder() []int {
	order := append([]int(nil), m.feasible...)
	sort.Slice(order, func(i, j int) bool {
		a, b := m.Instance.Tasks[order[i]], m.Instance.Tasks[order[j]]
		if a.Mandatory != b.Mandatory {
			return a.Mandatory
		}
		return m.denser(order[i], order[j])
	})
	return order
}

// greedy places tasks in priority-density order into the earliest window
// with enough contiguous room, then runs the swap/fill improvement pass.
// It returns per-window sequences and the mandatory tasks it could not place.
func (m *Model) greedy() (plan [][]int, missing []string) {
	g := &greedyState{m: m, free: newFreeMap(m.Instance.Horizon), at: make([]placement, len(m.Instance.Tasks))}
	for i := range g.at {
		g.at[i] = placement{task: i, window: -1}
	}
	order := m.greedyOrder()
	for _, ti := range order {
		g.place(ti)
	}
	improveSwaps(g, order)

	for _, ti := range order {
		if g.at[ti].window < 0 && m.Instance.Tasks[ti].Mandatory {
			missing = append(missing, m.Instance.Tasks[ti].ID)
		}
	}
	return g.plan(), missing
}

// plan converts the placement table into per-window sequences by start.
func (g *greedyState) plan() [][]int {
	plan := make([][]int, len(g.m.Instance.Horizon.Windows))
	for ti, p := range g.at {
		if p.window >= 0 {
			plan[p.window] = append(plan[p.window], ti)
		}
	}
	for wi := range plan {
		seq := plan[wi]
		sort.Slice(seq, func(i, j int) bool { return g.at[seq[i]].start < g.at[seq[j]].start })
	}
	return plan
}
