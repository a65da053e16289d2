package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dayplan/internal/opt"
)

// Defaults for requests that carry no windows.
const (
	DefaultDayStart         = "09:00"
	DefaultAvailableMinutes = 240
)

// Priority accepts a positive number or one of the labels High, Medium, Low.
type Priority int

var priorityLabels = map[string]Priority{"high": 3, "medium": 2, "low": 1}

// ParsePriority parses a number or a label.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	if p, ok := priorityLabels[strings.ToLower(s)]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("priority %q is neither a number nor High/Medium/Low", s)
	}
	return Priority(n), nil
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("priority must be a number or a label")
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalYAML lets problem files use labels too.
func (p *Priority) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseClock converts "HH:MM" into minutes after midnight. "24:00" is
// accepted as the end of the day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || mm < 0 || mm > 59 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	return hh*60 + mm, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Horizon builds the solver horizon for the request.
func (r ScheduleRequest) Horizon() (opt.Horizon, error) {
	var ws []opt.Window
	if len(r.Windows) == 0 {
		start := DefaultDayStart
		if r.DayStart != "" {
			start = r.DayStart
		}
		s, err := ParseClock(start)
		if err != nil {
			return opt.Horizon{}, &opt.InvalidWindowError{WindowID: "w1", Field: "start", Reason: err.Error()}
		}
		avail := r.AvailableMinutes
		if avail == 0 {
			avail = DefaultAvailableMinutes
		}
		if s+avail > opt.DayMinutes {
			return opt.Horizon{}, &opt.InvalidWindowError{WindowID: "w1", Field: "end",
				Reason: fmt.Sprintf("dayStart %s plus %d min runs past 24:00", FormatClock(s), avail)}
		}
		ws = append(ws, opt.Window{ID: "w1", Start: s, End: s + avail})
	}
	for i, w := range r.Windows {
		id := w.ID
		if id == "" {
			id = fmt.Sprintf("w%d", i+1)
		}
		s, err := ParseClock(w.Start)
		if err != nil {
			return opt.Horizon{}, &opt.InvalidWindowError{WindowID: id, Field: "start", Reason: err.Error()}
		}
		e, err := ParseClock(w.End)
		if err != nil {
			return opt.Horizon{}, &opt.InvalidWindowError{WindowID: id, Field: "end", Reason: err.Error()}
		}
		ws = append(ws, opt.Window{ID: id, Start: s, End: e})
	}
	return opt.NewHorizon(ws...)
}

// ToTasks converts request tasks into solver tasks. Tasks without an ID get
// task-N by position.
func ToTasks(in []TaskIn) ([]opt.Task, error) {
	out := make([]opt.Task, 0, len(in))
	for i, t := range in {
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		var opts []opt.TaskOption
		if t.EarliestStart != "" {
			m, err := ParseClock(t.EarliestStart)
			if err != nil {
				return nil, &opt.InvalidTaskError{TaskID: id, Field: "earliestStart", Value: t.EarliestStart, Reason: err.Error()}
			}
			opts = append(opts, opt.WithEarliestStart(m))
		}
		if t.Deadline != "" {
			m, err := ParseClock(t.Deadline)
			if err != nil {
				return nil, &opt.InvalidTaskError{TaskID: id, Field: "deadline", Value: t.Deadline, Reason: err.Error()}
			}
			opts = append(opts, opt.WithDeadline(m))
		}
		if t.Mandatory {
			opts = append(opts, opt.Mandatory())
		}
		task, err := opt.NewTask(id, t.Name, t.DurationMin, int(t.Priority), opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// Instance converts the whole request into a validated solver instance.
func (r ScheduleRequest) Instance() (opt.Instance, error) {
	h, err := r.Horizon()
	if err != nil {
		return opt.Instance{}, err
	}
	tasks, err := ToTasks(r.Tasks)
	if err != nil {
		return opt.Instance{}, err
	}
	return opt.NewInstance(tasks, h)
}

// Apply overlays the non-zero options on base.
func (o *SolverOptions) Apply(base opt.SolverConfig) opt.SolverConfig {
	if o == nil {
		return base
	}
	if o.Mode != "" {
		base.Mode = opt.Mode(o.Mode)
	}
	if o.ExactThreshold > 0 {
		base.ExactThreshold = o.ExactThreshold
	}
	if o.TimeBudgetMs > 0 {
		base.TimeBudget = time.Duration(o.TimeBudgetMs) * time.Millisecond
	}
	if o.MaxNodes > 0 {
		base.MaxNodes = o.MaxNodes
	}
	if o.Workers > 0 {
		base.Workers = o.Workers
	}
	if len(o.TieBreakOrder) > 0 {
		base.TieBreakOrder = make([]opt.TieBreak, 0, len(o.TieBreakOrder))
		for _, tb := range o.TieBreakOrder {
			base.TieBreakOrder = append(base.TieBreakOrder, opt.TieBreak(tb))
		}
	}
	return base
}

// MetricsOut renders solver metrics.
func MetricsOut(m opt.Metrics) SolveMetrics {
	return SolveMetrics{
		Mode: string(m.Mode), Tasks: m.Tasks, Nodes: m.Nodes, Pruned: m.Pruned,
		Incumbents: m.Incumbents, Workers: m.Workers, Subproblems: m.Subproblems,
		GreedyPriority: m.GreedyPriority, BestPriority: m.BestPriority,
		ElapsedMs: m.Elapsed.Milliseconds(), StopReason: string(m.StopReason),
	}
}

// Render turns a solver schedule into its API shape. Task names come from
// inst; ID, tenant and timestamps are left to the caller.
func Render(inst opt.Instance, s opt.Schedule) ScheduleOut {
	names := make(map[string]string, len(inst.Tasks))
	for _, t := range inst.Tasks {
		names[t.ID] = t.Name
	}
	out := ScheduleOut{
		Assignments:   make([]AssignmentOut, 0, len(s.Assignments)),
		Unscheduled:   make([]UnscheduledOut, 0, len(s.Unscheduled)),
		Windows:       s.Windows,
		TotalPriority: s.TotalPriority,
		ScheduledMin:  s.ScheduledDuration,
		IdleMin:       s.TotalIdle,
		MakespanMin:   s.Makespan,
		Utilization:   s.Utilization,
		Optimal:       s.Optimal,
		Mode:          string(s.Mode),
	}
	for _, a := range s.Assignments {
		out.Assignments = append(out.Assignments, AssignmentOut{
			TaskID: a.TaskID, TaskName: a.TaskName, WindowID: a.WindowID,
			Start: FormatClock(a.Start), End: FormatClock(a.End),
			StartMin: a.Start, EndMin: a.End, Priority: a.Priority, GapBeforeMin: a.GapBefore,
		})
	}
	for _, u := range s.Unscheduled {
		out.Unscheduled = append(out.Unscheduled, UnscheduledOut{TaskID: u.TaskID, TaskName: names[u.TaskID], Reason: u.Reason})
	}
	return out
}

// Summary is the list view of a rendered schedule.
func (s ScheduleOut) Summary() ScheduleSummary {
	return ScheduleSummary{
		ID: s.ID, PlanDate: s.PlanDate, CreatedAt: s.CreatedAt, TotalPriority: s.TotalPriority,
		Scheduled: len(s.Assignments), Unscheduled: len(s.Unscheduled), Optimal: s.Optimal, Mode: s.Mode,
	}
}
