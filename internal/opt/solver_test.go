package opt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func clock(h, m int) int { return h*60 + m }

// checkSchedule asserts the hard constraints on a returned schedule.
func checkSchedule(t *testing.T, inst Instance, s Schedule) {
	t.Helper()
	byID := map[string]Task{}
	for _, tk := range inst.Tasks {
		byID[tk.ID] = tk
	}
	win := map[string]Window{}
	for _, w := range inst.Horizon.Windows {
		win[w.ID] = w
	}
	used := map[string]int{}
	seen := map[string]bool{}
	var prev *Assignment
	for i := range s.Assignments {
		a := s.Assignments[i]
		tk, ok := byID[a.TaskID]
		if !ok {
			t.Fatalf("unknown task %q", a.TaskID)
		}
		if seen[a.TaskID] {
			t.Fatalf("task %q scheduled twice", a.TaskID)
		}
		seen[a.TaskID] = true
		if a.End-a.Start != tk.Duration {
			t.Fatalf("%s: end-start=%d want %d", a.TaskID, a.End-a.Start, tk.Duration)
		}
		w := win[a.WindowID]
		if a.Start < w.Start || a.End > w.End {
			t.Fatalf("%s: [%d,%d) outside window %s [%d,%d)", a.TaskID, a.Start, a.End, w.ID, w.Start, w.End)
		}
		if tk.EarliestStart != nil && a.Start < *tk.EarliestStart {
			t.Fatalf("%s starts before earliest", a.TaskID)
		}
		if tk.Deadline != nil && a.End > *tk.Deadline {
			t.Fatalf("%s ends after deadline", a.TaskID)
		}
		if prev != nil && prev.WindowID == a.WindowID && a.Start < prev.End {
			t.Fatalf("%s overlaps %s", a.TaskID, prev.TaskID)
		}
		used[a.WindowID] += tk.Duration
		prev = &s.Assignments[i]
	}
	for id, u := range used {
		if u > win[id].Len() {
			t.Fatalf("window %s over capacity: %d > %d", id, u, win[id].Len())
		}
	}
	for _, u := range s.Unscheduled {
		if seen[u.TaskID] {
			t.Fatalf("task %q both scheduled and unscheduled", u.TaskID)
		}
		seen[u.TaskID] = true
	}
	if len(seen) != len(inst.Tasks) {
		t.Fatalf("tasks accounted: %d of %d", len(seen), len(inst.Tasks))
	}
}

func abcTasks(t *testing.T) []Task {
	return []Task{task(t, "A", 60, 5), task(t, "B", 30, 3), task(t, "C", 90, 8)}
}

func TestScenarioExactBeatsGreedy(t *testing.T) {
	inst := mustInstance(t, abcTasks(t), Window{Start: clock(9, 0), End: clock(11, 30)})

	s, met, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, Workers: 1})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.TotalPriority != 13 || !s.Optimal || met.StopReason != StopCompleted {
		t.Fatalf("exact: priority=%d optimal=%v stop=%s", s.TotalPriority, s.Optimal, met.StopReason)
	}
	if len(s.Assignments) != 2 || s.Assignments[0].TaskID != "A" || s.Assignments[1].TaskID != "C" {
		t.Fatalf("assignments: %+v", s.Assignments)
	}
	if s.Assignments[0].Start != clock(9, 0) || s.Assignments[1].Start != clock(10, 0) {
		t.Fatalf("starts: %+v", s.Assignments)
	}
	if got := s.UnscheduledIDs(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unscheduled: %v", got)
	}
	if s.TotalIdle != 0 || s.Utilization != 1 {
		t.Fatalf("idle=%d util=%v", s.TotalIdle, s.Utilization)
	}

	g, _, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeGreedy})
	if err != nil {
		t.Fatalf("greedy: %v", err)
	}
	checkSchedule(t, inst, g)
	if g.TotalPriority != 11 || g.Optimal || g.Mode != ModeGreedy {
		t.Fatalf("greedy: priority=%d optimal=%v mode=%s", g.TotalPriority, g.Optimal, g.Mode)
	}
}

func TestScenarioAllFitInThreeHours(t *testing.T) {
	inst := mustInstance(t, abcTasks(t), Window{Start: clock(9, 0), End: clock(12, 0)})
	s, _, err := Solve(context.Background(), inst, SolverConfig{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.TotalPriority != 16 || len(s.Unscheduled) != 0 || s.TotalIdle != 0 || s.Mode != ModeExact {
		t.Fatalf("got priority=%d unscheduled=%v idle=%d mode=%s", s.TotalPriority, s.Unscheduled, s.TotalIdle, s.Mode)
	}
	if s.Makespan != 180 {
		t.Fatalf("makespan: %d", s.Makespan)
	}
}

func TestOversizeTaskReportedNotRaised(t *testing.T) {
	tasks := append(abcTasks(t), task(t, "D", 200, 10))
	inst := mustInstance(t, tasks, Window{Start: clock(9, 0), End: clock(12, 0)})
	s, _, err := Solve(context.Background(), inst, SolverConfig{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	found := false
	for _, u := range s.Unscheduled {
		if u.TaskID == "D" {
			found = true
			if u.Reason != "duration exceeds every window" {
				t.Fatalf("reason: %q", u.Reason)
			}
		}
	}
	if !found {
		t.Fatalf("D not reported unscheduled: %+v", s.Unscheduled)
	}
}

func TestNothingFitsIsInfeasible(t *testing.T) {
	inst := mustInstance(t, []Task{task(t, "D", 200, 10), task(t, "E", 190, 1)}, Window{Start: clock(9, 0), End: clock(12, 0)})
	_, _, err := Solve(context.Background(), inst, SolverConfig{})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("want ErrInfeasible, got %v", err)
	}
}

func TestPriorityAtCapStaysExact(t *testing.T) {
	inst := mustInstance(t, []Task{
		task(t, "A", 50, MaxPriority),
		task(t, "B", 50, MaxPriority),
		task(t, "C", 100, 1),
	}, Window{Start: clock(9, 0), End: clock(10, 40)})
	for _, mode := range []Mode{ModeExact, ModeGreedy} {
		s, _, err := Solve(context.Background(), inst, SolverConfig{Mode: mode, Workers: 1})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if s.TotalPriority != 2*MaxPriority || len(s.Assignments) != 2 || s.UnscheduledIDs()[0] != "C" {
			t.Fatalf("%s: total=%d assigned=%+v", mode, s.TotalPriority, s.Assignments)
		}
		if mode == ModeExact && !s.Optimal {
			t.Fatalf("exact not optimal")
		}
	}

	// Solve revalidates instances assembled without the constructors
	raw := Instance{
		Tasks:   []Task{{ID: "A", Duration: 50, Priority: 1 << 62}, {ID: "C", Duration: 100, Priority: 1}},
		Horizon: Horizon{Windows: []Window{{ID: "w1", Start: 540, End: 640}}},
	}
	_, _, err := Solve(context.Background(), raw, SolverConfig{Mode: ModeExact})
	var ite *InvalidTaskError
	if !errors.As(err, &ite) || ite.Field != "priority" || ite.TaskID != "A" {
		t.Fatalf("want InvalidTaskError on priority, got %v", err)
	}
}

func TestEmptyTaskListIsEmptySchedule(t *testing.T) {
	inst := mustInstance(t, nil, Window{Start: 0, End: 60})
	s, _, err := Solve(context.Background(), inst, SolverConfig{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(s.Assignments) != 0 || !s.Optimal || s.TotalIdle != 60 {
		t.Fatalf("got %+v", s)
	}
}

func TestTieBreaks(t *testing.T) {
	ctx := context.Background()

	// equal priority: two short tasks beat one long one
	inst := mustInstance(t, []Task{task(t, "x", 60, 4), task(t, "y", 30, 2), task(t, "z", 30, 2)}, Window{Start: 0, End: 60})
	s, _, err := Solve(ctx, inst, SolverConfig{Mode: ModeExact})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(s.Assignments) != 2 || s.Assignments[0].TaskID != "y" || s.Assignments[1].TaskID != "z" {
		t.Fatalf("fewer_unscheduled: %+v", s.Assignments)
	}

	// equal priority and count: less idle wins, unless task_id is ranked first
	inst = mustInstance(t, []Task{task(t, "P", 50, 5), task(t, "Q", 80, 5)}, Window{Start: 0, End: 100})
	s, _, _ = Solve(ctx, inst, SolverConfig{Mode: ModeExact})
	if len(s.Assignments) != 1 || s.Assignments[0].TaskID != "Q" {
		t.Fatalf("less_idle: %+v", s.Assignments)
	}
	s, _, _ = Solve(ctx, inst, SolverConfig{Mode: ModeExact, TieBreakOrder: []TieBreak{TieTaskID}})
	if len(s.Assignments) != 1 || s.Assignments[0].TaskID != "P" {
		t.Fatalf("task_id first: %+v", s.Assignments)
	}

	// full tie: smallest id sequence
	inst = mustInstance(t, []Task{task(t, "O", 30, 3), task(t, "N", 30, 3), task(t, "M", 30, 3)}, Window{Start: 0, End: 60})
	s, _, _ = Solve(ctx, inst, SolverConfig{Mode: ModeExact, Workers: 3})
	if len(s.Assignments) != 2 || s.Assignments[0].TaskID != "M" || s.Assignments[1].TaskID != "N" {
		t.Fatalf("task_id: %+v", s.Assignments)
	}

	if _, _, err := Solve(ctx, inst, SolverConfig{TieBreakOrder: []TieBreak{"shortest"}}); err == nil {
		t.Fatalf("unknown tie-break accepted")
	}
}

func TestTemporalConstraints(t *testing.T) {
	ctx := context.Background()
	inst := mustInstance(t, []Task{
		task(t, "T1", 30, 2, WithEarliestStart(clock(10, 0)), WithDeadline(clock(10, 30))),
		task(t, "T2", 60, 1),
		task(t, "T3", 60, 1),
	}, Window{Start: clock(9, 0), End: clock(12, 0)})
	s, _, err := Solve(ctx, inst, SolverConfig{Mode: ModeExact})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	want := []struct {
		id    string
		start int
	}{{"T2", clock(9, 0)}, {"T1", clock(10, 0)}, {"T3", clock(10, 30)}}
	if len(s.Assignments) != 3 {
		t.Fatalf("assignments: %+v", s.Assignments)
	}
	for i, w := range want {
		if s.Assignments[i].TaskID != w.id || s.Assignments[i].Start != w.start {
			t.Fatalf("assignment %d: got %+v want %+v", i, s.Assignments[i], w)
		}
	}
	if s.Assignments[1].GapBefore != 0 || s.Assignments[2].GapBefore != 0 {
		t.Fatalf("gaps: %+v", s.Assignments)
	}

	// the unconstrained tasks must be reordered around the fixed one
	inst = mustInstance(t, []Task{
		task(t, "U1", 30, 1),
		task(t, "U2", 50, 1),
		task(t, "C", 20, 1, WithEarliestStart(30), WithDeadline(50)),
	}, Window{Start: 0, End: 100})
	s, _, err = Solve(ctx, inst, SolverConfig{Mode: ModeExact})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.TotalPriority != 3 || !s.Optimal {
		t.Fatalf("got priority=%d optimal=%v: %+v", s.TotalPriority, s.Optimal, s.Assignments)
	}
}

func TestGapAnnotation(t *testing.T) {
	inst := mustInstance(t, []Task{
		task(t, "late", 30, 1, WithEarliestStart(clock(10, 0))),
	}, Window{Start: clock(9, 0), End: clock(12, 0)}, Window{ID: "pm", Start: clock(13, 0), End: clock(14, 0)})
	s, _, err := Solve(context.Background(), inst, SolverConfig{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	a := s.Assignments[0]
	if a.Start != clock(10, 0) || a.GapBefore != 60 || a.WindowID != "w1" {
		t.Fatalf("assignment: %+v", a)
	}
	if s.Windows[0].Idle != 150 || s.Windows[1].Idle != 60 || s.TotalIdle != 210 {
		t.Fatalf("usage: %+v idle=%d", s.Windows, s.TotalIdle)
	}
}

func TestMandatory(t *testing.T) {
	ctx := context.Background()
	inst := mustInstance(t, []Task{task(t, "L", 80, 1, Mandatory()), task(t, "H", 50, 10)}, Window{Start: 0, End: 100})
	for _, mode := range []Mode{ModeExact, ModeGreedy} {
		s, _, err := Solve(ctx, inst, SolverConfig{Mode: mode})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if len(s.Assignments) != 1 || s.Assignments[0].TaskID != "L" {
			t.Fatalf("%s: mandatory dropped: %+v", mode, s.Assignments)
		}
	}

	// capacity suffices in total but the pieces do not pack
	inst = mustInstance(t, []Task{
		task(t, "m1", 40, 1, Mandatory()),
		task(t, "m2", 40, 1, Mandatory()),
		task(t, "m3", 20, 1, Mandatory()),
	}, Window{Start: 0, End: 50}, Window{Start: 60, End: 110})
	_, _, err := Solve(ctx, inst, SolverConfig{Mode: ModeExact})
	var oce *OverCommittedError
	if !errors.As(err, &oce) || len(oce.TaskIDs) != 3 {
		t.Fatalf("want OverCommittedError, got %v", err)
	}
}

func TestBudgetExhaustionReturnsIncumbent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var tasks []Task
	for i := 0; i < 300; i++ {
		tasks = append(tasks, task(t, fmt.Sprintf("t%03d", i), 5+5*rng.Intn(24), 1+rng.Intn(9)))
	}
	inst := mustInstance(t, tasks, Window{Start: clock(8, 0), End: clock(12, 0)}, Window{Start: clock(13, 0), End: clock(18, 0)})

	s, met, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, TimeBudget: time.Nanosecond})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.Optimal || met.StopReason != StopTimeBudget {
		t.Fatalf("optimal=%v stop=%s", s.Optimal, met.StopReason)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, met, err = Solve(ctx, inst, SolverConfig{Mode: ModeExact, Workers: 4})
	if err != nil {
		t.Fatalf("canceled Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.Optimal || met.StopReason != StopCanceled {
		t.Fatalf("canceled: optimal=%v stop=%s", s.Optimal, met.StopReason)
	}

	s, met, err = Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, MaxNodes: 50})
	if err != nil {
		t.Fatalf("node budget Solve: %v", err)
	}
	if s.Optimal || met.StopReason != StopNodeBudget {
		t.Fatalf("node budget: optimal=%v stop=%s", s.Optimal, met.StopReason)
	}

	// auto mode falls back to the heuristic above the threshold
	s, met, err = Solve(context.Background(), inst, SolverConfig{})
	if err != nil {
		t.Fatalf("auto Solve: %v", err)
	}
	checkSchedule(t, inst, s)
	if s.Mode != ModeGreedy || s.Optimal || met.StopReason != StopHeuristic {
		t.Fatalf("auto: mode=%s optimal=%v stop=%s", s.Mode, s.Optimal, met.StopReason)
	}
}

// randomInstance builds unconstrained instances small enough to brute force.
func randomInstance(t *testing.T, rng *rand.Rand, maxTasks int, twoWindows bool) Instance {
	n := 1 + rng.Intn(maxTasks)
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = task(t, fmt.Sprintf("t%d", i), 5*(1+rng.Intn(24)), 1+rng.Intn(10))
	}
	ws := []Window{{Start: 540, End: 540 + 30 + 5*rng.Intn(31)}}
	if twoWindows {
		start := ws[0].End + 30
		ws = append(ws, Window{Start: start, End: start + 30 + 5*rng.Intn(31)})
	}
	return mustInstance(t, tasks, ws...)
}

// bruteForce tries every window-or-skip choice per task.
func bruteForce(inst Instance) int {
	ws := inst.Horizon.Windows
	used := make([]int, len(ws))
	best := 0
	var rec func(i, pri int)
	rec = func(i, pri int) {
		if i == len(inst.Tasks) {
			if pri > best {
				best = pri
			}
			return
		}
		t := inst.Tasks[i]
		rec(i+1, pri)
		for wi, w := range ws {
			if used[wi]+t.Duration <= w.Len() {
				used[wi] += t.Duration
				rec(i+1, pri+t.Priority)
				used[wi] -= t.Duration
			}
		}
	}
	rec(0, 0)
	return best
}

func TestExactMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 60; iter++ {
		inst := randomInstance(t, rng, 8, iter%2 == 1)
		want := bruteForce(inst)
		for _, workers := range []int{1, 4} {
			s, _, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, Workers: workers, TimeBudget: 10 * time.Second})
			if errors.Is(err, ErrInfeasible) {
				if want != 0 {
					t.Fatalf("iter %d: infeasible but brute force found %d", iter, want)
				}
				continue
			}
			if err != nil {
				t.Fatalf("iter %d: %v", iter, err)
			}
			checkSchedule(t, inst, s)
			if !s.Optimal || s.TotalPriority != want {
				t.Fatalf("iter %d workers %d: got %d (optimal=%v) want %d", iter, workers, s.TotalPriority, s.Optimal, want)
			}
		}
		// the heuristic never beats the optimum and never breaks constraints
		if g, _, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeGreedy}); err == nil {
			checkSchedule(t, inst, g)
			if g.TotalPriority > want {
				t.Fatalf("iter %d: greedy %d above optimum %d", iter, g.TotalPriority, want)
			}
		}
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 10; iter++ {
		inst := randomInstance(t, rng, 12, true)
		var outs [][]byte
		for _, workers := range []int{1, 1, 4} {
			s, _, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, Workers: workers, TimeBudget: 10 * time.Second})
			if errors.Is(err, ErrInfeasible) {
				break
			}
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			b, _ := json.Marshal(s)
			outs = append(outs, b)
		}
		for i := 1; i < len(outs); i++ {
			if string(outs[i]) != string(outs[0]) {
				t.Fatalf("iter %d: run %d differs:\n%s\n%s", iter, i, outs[0], outs[i])
			}
		}
	}
}

func TestAddingWindowNeverLowersPriority(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 25; iter++ {
		inst := randomInstance(t, rng, 8, true)
		one := Instance{Tasks: inst.Tasks, Horizon: Horizon{Windows: inst.Horizon.Windows[:1]}}
		cfg := SolverConfig{Mode: ModeExact, TimeBudget: 10 * time.Second}
		s1, _, err1 := Solve(context.Background(), one, cfg)
		s2, _, err2 := Solve(context.Background(), inst, cfg)
		if err2 != nil {
			if errors.Is(err2, ErrInfeasible) && errors.Is(err1, ErrInfeasible) {
				continue
			}
			t.Fatalf("iter %d: %v", iter, err2)
		}
		if err1 == nil && s2.TotalPriority < s1.TotalPriority {
			t.Fatalf("iter %d: priority dropped %d -> %d", iter, s1.TotalPriority, s2.TotalPriority)
		}
	}
}

func TestOnIncumbentReportsImprovements(t *testing.T) {
	inst := mustInstance(t, abcTasks(t), Window{Start: clock(9, 0), End: clock(11, 30)})
	var seen []Progress
	cfg := SolverConfig{Mode: ModeExact, Workers: 1, OnIncumbent: func(p Progress) { seen = append(seen, p) }}
	s, met, err := Solve(context.Background(), inst, cfg)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(seen) == 0 || len(seen) != met.Incumbents {
		t.Fatalf("progress calls %d, incumbents %d", len(seen), met.Incumbents)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Priority < seen[i-1].Priority {
			t.Fatalf("priority went down: %+v", seen)
		}
	}
	if seen[len(seen)-1].Priority != s.TotalPriority || met.GreedyPriority != 11 {
		t.Fatalf("last progress %+v, greedy %d", seen[len(seen)-1], met.GreedyPriority)
	}
}

func TestSolverConfigNormalize(t *testing.T) {
	c, err := SolverConfig{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if c.Mode != ModeAuto || c.ExactThreshold != DefaultExactThreshold || c.TimeBudget != DefaultTimeBudget || c.Workers < 1 {
		t.Fatalf("defaults: %+v", c)
	}
	if len(c.TieBreakOrder) != len(DefaultTieBreakOrder) {
		t.Fatalf("tie order: %v", c.TieBreakOrder)
	}
	c, _ = SolverConfig{TieBreakOrder: []TieBreak{TieMakespan, TieMakespan}}.Normalize()
	if len(c.TieBreakOrder) != 4 || c.TieBreakOrder[0] != TieMakespan {
		t.Fatalf("tie order: %v", c.TieBreakOrder)
	}
	for _, bad := range []SolverConfig{{Mode: "fast"}, {TimeBudget: -1}, {Workers: -1}, {ExactThreshold: -3}, {MaxNodes: -1}} {
		if _, err := bad.Normalize(); err == nil {
			t.Fatalf("accepted %+v", bad)
		}
	}
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("t1", "2024-05-01", Metrics{Mode: ModeExact, Nodes: 10})
	RecordMetrics("t1", "2024-05-01", Metrics{Mode: ModeGreedy})
	RecordMetrics("t2", "2024-05-01", Metrics{Mode: ModeExact})
	got := GetMetrics("t1", "2024-05-01")
	if len(got) != 2 || got[ModeExact].Nodes != 10 {
		t.Fatalf("got %+v", got)
	}
	if modes := MetricsModes("t1", "2024-05-01"); len(modes) != 2 || modes[0] != ModeExact {
		t.Fatalf("modes: %v", modes)
	}
}

// randomConstrainedInstance mixes unconstrained tasks with tasks carrying an
// earliest start, a deadline or both, over one or two windows.
func randomConstrainedInstance(t *testing.T, rng *rand.Rand, maxTasks int) Instance {
	ws := []Window{{Start: 540, End: 540 + 60 + 5*rng.Intn(25)}}
	if rng.Intn(2) == 1 {
		start := ws[0].End + 5*rng.Intn(7)
		ws = append(ws, Window{Start: start, End: start + 30 + 5*rng.Intn(25)})
	}
	lo, hi := ws[0].Start, ws[len(ws)-1].End
	n := 1 + rng.Intn(maxTasks)
	tasks := make([]Task, n)
	for i := range tasks {
		var opts []TaskOption
		earliest := lo
		if rng.Intn(3) == 0 {
			earliest = lo + 5*rng.Intn((hi-lo)/5)
			opts = append(opts, WithEarliestStart(earliest))
		}
		if rng.Intn(3) == 0 {
			deadline := earliest + 5*(1+rng.Intn((hi-earliest)/5))
			opts = append(opts, WithDeadline(deadline))
		}
		tasks[i] = task(t, fmt.Sprintf("t%d", i), 5*(1+rng.Intn(12)), 1+rng.Intn(6), opts...)
	}
	return mustInstance(t, tasks, ws...)
}

// bruteOutcome is the best (priority, count, duration) reachable.
type bruteOutcome struct{ priority, count, duration int }

func (a bruteOutcome) beats(b bruteOutcome) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if a.count != b.count {
		return a.count > b.count
	}
	return a.duration > b.duration
}

// bruteForceConstrained assigns every task to a window or skips it, and
// accepts a window's set when some ordering of it left-packs within each
// task's earliest start and deadline.
func bruteForceConstrained(inst Instance) bruteOutcome {
	ws := inst.Horizon.Windows
	memo := map[[2]int]bool{}
	fits := func(wi, mask int) bool {
		key := [2]int{wi, mask}
		if v, ok := memo[key]; ok {
			return v
		}
		var idx []int
		for i := range inst.Tasks {
			if mask&(1<<i) != 0 {
				idx = append(idx, i)
			}
		}
		ok := false
		var perm func(k int)
		perm = func(k int) {
			if ok {
				return
			}
			if k == len(idx) {
				cur := ws[wi].Start
				for _, ti := range idx {
					tk := inst.Tasks[ti]
					st, end := cur, ws[wi].End
					if tk.EarliestStart != nil && *tk.EarliestStart > st {
						st = *tk.EarliestStart
					}
					if tk.Deadline != nil && *tk.Deadline < end {
						end = *tk.Deadline
					}
					if st+tk.Duration > end {
						return
					}
					cur = st + tk.Duration
				}
				ok = true
				return
			}
			for j := k; j < len(idx); j++ {
				idx[k], idx[j] = idx[j], idx[k]
				perm(k + 1)
				idx[k], idx[j] = idx[j], idx[k]
			}
		}
		perm(0)
		memo[key] = ok
		return ok
	}

	masks := make([]int, len(ws))
	var best bruteOutcome
	var rec func(i int, cur bruteOutcome)
	rec = func(i int, cur bruteOutcome) {
		if i == len(inst.Tasks) {
			for wi := range ws {
				if !fits(wi, masks[wi]) {
					return
				}
			}
			if cur.beats(best) {
				best = cur
			}
			return
		}
		rec(i+1, cur)
		tk := inst.Tasks[i]
		for wi := range ws {
			masks[wi] |= 1 << i
			rec(i+1, bruteOutcome{cur.priority + tk.Priority, cur.count + 1, cur.duration + tk.Duration})
			masks[wi] &^= 1 << i
		}
	}
	rec(0, bruteOutcome{})
	return best
}

func TestExactMatchesBruteForceWithTemporalRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 80; iter++ {
		inst := randomConstrainedInstance(t, rng, 6)
		want := bruteForceConstrained(inst)
		for _, workers := range []int{1, 4} {
			s, _, err := Solve(context.Background(), inst, SolverConfig{Mode: ModeExact, Workers: workers, TimeBudget: 10 * time.Second})
			if errors.Is(err, ErrInfeasible) {
				if want.count != 0 {
					t.Fatalf("iter %d: infeasible but brute force found %+v", iter, want)
				}
				continue
			}
			if err != nil {
				t.Fatalf("iter %d: %v", iter, err)
			}
			checkSchedule(t, inst, s)
			got := bruteOutcome{s.TotalPriority, len(s.Assignments), s.ScheduledDuration}
			if !s.Optimal || got != want {
				t.Fatalf("iter %d workers %d: got %+v (optimal=%v) want %+v", iter, workers, got, s.Optimal, want)
			}
		}
	}
}
