package opt

import "sort"

// improveSwaps is the local improvement pass run after the greedy
// placement. Each accepted move replaces a cheaper optional task with a
// strictly higher-priority unscheduled one, so total priority only grows and
// the loop terminates. A fill pass after every change retries the remaining
// unscheduled tasks in the space that opened up.
func improveSwaps(g *greedyState, order []int) {
	limit := len(order) * len(order)
	for it := 0; it <= limit; it++ {
		if !swapOnce(g, order) {
			break
		}
		fill(g, order)
	}
}

// swapOnce tries the first improving (unscheduled u, scheduled s) exchange.
func swapOnce(g *greedyState, order []int) bool {
	m := g.m
	victims := make([]int, 0, g.placed)
	for _, ti := range order {
		if g.at[ti].window >= 0 && !m.Instance.Tasks[ti].Mandatory {
			victims = append(victims, ti)
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		a, b := m.Instance.Tasks[victims[i]], m.Instance.Tasks[victims[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	for _, u := range order {
		if g.at[u].window >= 0 {
			continue
		}
		pu := m.Instance.Tasks[u].Priority
		for _, s := range victims {
			if m.Instance.Tasks[s].Priority >= pu {
				break
			}
			prev := g.at[s]
			g.unplace(s)
			if g.place(u) {
				// s may still fit somewhere else.
				g.place(s)
				return true
			}
			restore(g, prev)
		}
	}
	return false
}

func fill(g *greedyState, order []int) {
	for _, ti := range order {
		if g.at[ti].window < 0 {
			g.place(ti)
		}
	}
}

// restore puts a task back at an exact earlier placement.
func restore(g *greedyState, p placement) {
	dur := g.m.Instance.Tasks[p.task].Duration
	for k, iv := range g.free[p.window] {
		if p.start >= iv.start && p.start+dur <= iv.end {
			g.free.take(p.window, k, p.start, dur)
			g.at[p.task] = p
			g.placed++
			return
		}
	}
}
