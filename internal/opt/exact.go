package opt

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Exact search is a depth-first branch-and-bound. Tasks are decided one at a
// time in branch order; each decision either skips the task or inserts it
// into a window's sequence. Tasks with their own earliest-start/deadline go
// first, so by the time an unconstrained task is decided every window knows
// whether its order matters. Windows without constrained tasks only ever
// append, because any order of unconstrained tasks fits the same capacity.

type node struct {
	k           int     // index into search.branch of the next task to decide
	plan        [][]int // task sequence per window
	used        []int   // minutes taken per window
	constrained []int   // constrained tasks per window
	priority    int
	count       int
	duration    int
}

func (n *node) clone() *node {
	c := &node{
		k:           n.k,
		plan:        make([][]int, len(n.plan)),
		used:        append([]int(nil), n.used...),
		constrained: append([]int(nil), n.constrained...),
		priority:    n.priority,
		count:       n.count,
		duration:    n.duration,
	}
	for i, seq := range n.plan {
		c.plan[i] = append([]int(nil), seq...)
	}
	return c
}

type move struct {
	skip     bool
	win, pos int
}

type search struct {
	m          *Model
	cfg        SolverConfig
	ctx        context.Context
	deadline   time.Time
	branch     []int
	pos        []int // position of each task in branch, -1 when not branched
	byDensity  []int
	byDuration []int

	nodes  atomic.Int64
	pruned atomic.Int64
	halted atomic.Bool
	once   sync.Once
	reason StopReason

	inc incumbent
}

// incumbent is the single shared best-solution slot.
type incumbent struct {
	mu       sync.Mutex
	ok       bool
	sc       score
	ps       []placement
	updates  int
	priority atomic.Int64 // mirrors sc.priority for lock-free pruning
}

func (m *Model) newSearch(ctx context.Context, cfg SolverConfig) *search {
	s := &search{m: m, cfg: cfg, ctx: ctx, deadline: time.Now().Add(cfg.TimeBudget)}
	s.inc.priority.Store(-1)
	var cons, free []int
	for _, ti := range m.feasible {
		if m.Instance.Tasks[ti].Constrained() {
			cons = append(cons, ti)
		} else {
			free = append(free, ti)
		}
	}
	sort.Slice(cons, func(i, j int) bool { return m.denser(cons[i], cons[j]) })
	sort.Slice(free, func(i, j int) bool { return m.denser(free[i], free[j]) })
	s.branch = append(cons, free...)

	s.pos = make([]int, len(m.Instance.Tasks))
	for i := range s.pos {
		s.pos[i] = -1
	}
	for i, ti := range s.branch {
		s.pos[ti] = i
	}
	s.byDensity = append([]int(nil), m.feasible...)
	sort.Slice(s.byDensity, func(i, j int) bool { return m.denser(s.byDensity[i], s.byDensity[j]) })
	s.byDuration = append([]int(nil), m.feasible...)
	sort.Slice(s.byDuration, func(i, j int) bool {
		a, b := m.Instance.Tasks[s.byDuration[i]], m.Instance.Tasks[s.byDuration[j]]
		if a.Duration != b.Duration {
			return a.Duration < b.Duration
		}
		return a.ID < b.ID
	})
	return s
}

func (m *Model) solveExact(ctx context.Context, cfg SolverConfig, met *Metrics) (Schedule, error) {
	s := m.newSearch(ctx, cfg)

	seedPlan, missing := m.greedy()
	seed, _ := m.layout(seedPlan)
	met.GreedyPriority = m.scoreOf(seed).priority
	if len(missing) == 0 {
		s.offer(seed)
	}

	root := &node{
		plan:        make([][]int, len(m.Instance.Horizon.Windows)),
		used:        make([]int, len(m.Instance.Horizon.Windows)),
		constrained: make([]int, len(m.Instance.Horizon.Windows)),
	}
	met.Workers = cfg.Workers
	if cfg.Workers <= 1 {
		met.Workers = 1
		met.Subproblems = 1
		s.dfs(root)
	} else {
		frontier := s.frontier(root, cfg.Workers*4)
		met.Subproblems = len(frontier)
		var g errgroup.Group
		g.SetLimit(cfg.Workers)
		for _, n := range frontier {
			g.Go(func() error {
				s.dfs(n)
				return nil
			})
		}
		_ = g.Wait()
	}

	reason := StopCompleted
	if s.halted.Load() {
		reason = s.reason
	}
	met.StopReason = reason
	met.Nodes = s.nodes.Load()
	met.Pruned = s.pruned.Load()
	met.Incumbents = s.inc.updates

	if !s.inc.ok {
		if reason == StopCompleted {
			ids := []string{}
			for _, t := range m.Instance.Tasks {
				if t.Mandatory {
					ids = append(ids, t.ID)
				}
			}
			sort.Strings(ids)
			return Schedule{}, &OverCommittedError{Required: m.MandatoryDuration, Capacity: m.Capacity, TaskIDs: ids,
				Reason: "mandatory tasks cannot all be placed together"}
		}
		return m.assemble(seed, missingReasons(missing, "mandatory task not placed before the search budget ran out"), false, ModeExact), nil
	}
	return m.assemble(s.inc.ps, nil, reason == StopCompleted, ModeExact), nil
}

// frontier expands the tree breadth-first until it holds at least target
// open nodes, giving the workers independent subtrees.
func (s *search) frontier(root *node, target int) []*node {
	level := []*node{root}
	for len(level) < target {
		var next []*node
		grew := false
		for _, n := range level {
			if n.k == len(s.branch) {
				next = append(next, n)
				continue
			}
			for _, mv := range s.moves(n) {
				c := n.clone()
				s.apply(c, mv)
				next = append(next, c)
				grew = true
			}
		}
		if !grew {
			return next
		}
		level = next
	}
	return level
}

// step counts a node and reports whether the search must stop.
func (s *search) step() bool {
	if s.halted.Load() {
		return true
	}
	n := s.nodes.Add(1)
	if s.cfg.MaxNodes > 0 && n > s.cfg.MaxNodes {
		s.halt(StopNodeBudget)
		return true
	}
	select {
	case <-s.ctx.Done():
		s.halt(StopCanceled)
		return true
	default:
	}
	if time.Now().After(s.deadline) {
		s.halt(StopTimeBudget)
		return true
	}
	return false
}

func (s *search) halt(r StopReason) {
	s.once.Do(func() {
		s.reason = r
		s.halted.Store(true)
	})
}

func (s *search) dfs(n *node) {
	if s.step() {
		return
	}
	if n.k == len(s.branch) {
		if ps, ok := s.m.layout(n.plan); ok {
			s.offer(ps)
		}
		return
	}
	if s.prune(n) {
		s.pruned.Add(1)
		return
	}
	for _, mv := range s.moves(n) {
		s.apply(n, mv)
		s.dfs(n)
		s.undo(n, mv)
		if s.halted.Load() {
			return
		}
	}
}

// moves lists the children of n: placements first, skip last.
func (s *search) moves(n *node) []move {
	m := s.m
	ti := s.branch[n.k]
	t := m.Instance.Tasks[ti]
	var out []move
	var starts []int
	for wi, w := range m.Instance.Horizon.Windows {
		if !m.span[ti][wi].ok || n.used[wi]+t.Duration > w.Len() {
			continue
		}
		seq := n.plan[wi]
		if !t.Constrained() && n.constrained[wi] == 0 {
			out = append(out, move{win: wi, pos: len(seq)})
			continue
		}
		trial := make([]int, len(seq)+1)
		for p := 0; p <= len(seq); p++ {
			copy(trial, seq[:p])
			trial[p] = ti
			copy(trial[p+1:], seq[p:])
			var ok bool
			if starts, ok = m.pack(wi, trial, starts); ok {
				out = append(out, move{win: wi, pos: p})
			}
		}
	}
	if !t.Mandatory {
		out = append(out, move{skip: true})
	}
	return out
}

func (s *search) apply(n *node, mv move) {
	ti := s.branch[n.k]
	n.k++
	if mv.skip {
		return
	}
	t := s.m.Instance.Tasks[ti]
	seq := append(n.plan[mv.win], 0)
	copy(seq[mv.pos+1:], seq[mv.pos:])
	seq[mv.pos] = ti
	n.plan[mv.win] = seq
	n.used[mv.win] += t.Duration
	if t.Constrained() {
		n.constrained[mv.win]++
	}
	n.priority += t.Priority
	n.count++
	n.duration += t.Duration
}

func (s *search) undo(n *node, mv move) {
	n.k--
	if mv.skip {
		return
	}
	ti := s.branch[n.k]
	t := s.m.Instance.Tasks[ti]
	seq := n.plan[mv.win]
	copy(seq[mv.pos:], seq[mv.pos+1:])
	n.plan[mv.win] = seq[:len(seq)-1]
	n.used[mv.win] -= t.Duration
	if t.Constrained() {
		n.constrained[mv.win]--
	}
	n.priority -= t.Priority
	n.count--
	n.duration -= t.Duration
}

// fits reports whether task ti still has a window with enough free minutes.
func (s *search) fits(n *node, ti int) bool {
	dur := s.m.Instance.Tasks[ti].Duration
	for wi, w := range s.m.Instance.Horizon.Windows {
		if s.m.span[ti][wi].ok && n.used[wi]+dur <= w.Len() {
			return true
		}
	}
	return false
}

// prune reports whether n can be discarded: either a mandatory task no
// longer fits, or the optimistic bound cannot beat the incumbent.
func (s *search) prune(n *node) bool {
	m := s.m
	remCap := 0
	for wi, w := range m.Instance.Horizon.Windows {
		remCap += w.Len() - n.used[wi]
	}
	bd := bound{priority: n.priority, count: n.count, duration: n.duration}
	capLeft, fitDur := remCap, 0
	for _, ti := range s.byDensity {
		if s.pos[ti] < n.k {
			continue
		}
		t := m.Instance.Tasks[ti]
		if !s.fits(n, ti) {
			if t.Mandatory {
				return true
			}
			continue
		}
		fitDur += t.Duration
		switch {
		case capLeft <= 0:
		case t.Duration <= capLeft:
			bd.priority += t.Priority
			capLeft -= t.Duration
		default:
			bd.priority += t.Priority * capLeft / t.Duration
			capLeft = 0
		}
	}
	best := s.inc.priority.Load()
	if best < 0 || int64(bd.priority) > best {
		return false
	}
	if int64(bd.priority) < best {
		return true
	}

	capLeft = remCap
	for _, ti := range s.byDuration {
		if s.pos[ti] < n.k || !s.fits(n, ti) {
			continue
		}
		d := m.Instance.Tasks[ti].Duration
		if d > capLeft {
			break
		}
		bd.count++
		capLeft -= d
	}
	bd.duration += min(remCap, fitDur)

	s.inc.mu.Lock()
	defer s.inc.mu.Unlock()
	return boundWorse(bd, s.inc.sc, s.cfg.TieBreakOrder)
}

// offer installs ps as the incumbent when it beats the current one.
func (s *search) offer(ps []placement) {
	sc := s.m.scoreOf(ps)
	s.inc.mu.Lock()
	defer s.inc.mu.Unlock()
	if s.inc.ok && !better(sc, s.inc.sc, s.cfg.TieBreakOrder) {
		return
	}
	s.inc.ok = true
	s.inc.sc = sc
	s.inc.ps = ps
	s.inc.updates++
	s.inc.priority.Store(int64(sc.priority))
	if s.cfg.OnIncumbent != nil {
		s.cfg.OnIncumbent(Progress{Priority: sc.priority, Scheduled: sc.count, Duration: sc.duration, Nodes: s.nodes.Load()})
	}
}
