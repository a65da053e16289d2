package opt

import (
	"fmt"
	"sort"
)

// All offsets and durations are whole minutes on a single day axis.

// MaxPriority bounds Task.Priority so that sums and priority*duration
// products over a whole instance stay far inside int64.
const MaxPriority = 1_000_000

// DayMinutes is the length of the day axis; windows end by midnight.
const DayMinutes = 24 * 60

// Task is one unit of work to place on the horizon.
type Task struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Duration      int    `json:"duration"`
	Priority      int    `json:"priority"`
	EarliestStart *int   `json:"earliestStart,omitempty"`
	Deadline      *int   `json:"deadline,omitempty"`
	Mandatory     bool   `json:"mandatory,omitempty"`
}

// TaskOption customizes a Task built by NewTask.
type TaskOption func(*Task)

// WithEarliestStart sets the first minute the task may begin.
func WithEarliestStart(m int) TaskOption { return func(t *Task) { t.EarliestStart = &m } }

// WithDeadline sets the minute by which the task must be finished.
func WithDeadline(m int) TaskOption { return func(t *Task) { t.Deadline = &m } }

// Mandatory marks the task as must-schedule.
func Mandatory() TaskOption { return func(t *Task) { t.Mandatory = true } }

// NewTask validates and returns a Task.
func NewTask(id, name string, duration, priority int, opts ...TaskOption) (Task, error) {
	t := Task{ID: id, Name: name, Duration: duration, Priority: priority}
	for _, o := range opts {
		o(&t)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks the invariants that do not depend on the horizon.
func (t Task) Validate() error {
	if t.ID == "" {
		return &InvalidTaskError{Field: "id", Value: t.ID, Reason: "must not be empty"}
	}
	if t.Duration <= 0 {
		return &InvalidTaskError{TaskID: t.ID, Field: "duration", Value: t.Duration, Reason: "must be > 0"}
	}
	if t.Duration > DayMinutes {
		return &InvalidTaskError{TaskID: t.ID, Field: "duration", Value: t.Duration, Reason: fmt.Sprintf("must be <= %d", DayMinutes)}
	}
	if t.Priority <= 0 {
		return &InvalidTaskError{TaskID: t.ID, Field: "priority", Value: t.Priority, Reason: "must be > 0"}
	}
	if t.Priority > MaxPriority {
		return &InvalidTaskError{TaskID: t.ID, Field: "priority", Value: t.Priority, Reason: fmt.Sprintf("must be <= %d", MaxPriority)}
	}
	if t.EarliestStart != nil && *t.EarliestStart < 0 {
		return &InvalidTaskError{TaskID: t.ID, Field: "earliestStart", Value: *t.EarliestStart, Reason: "must be >= 0"}
	}
	if t.Deadline != nil && *t.Deadline <= 0 {
		return &InvalidTaskError{TaskID: t.ID, Field: "deadline", Value: *t.Deadline, Reason: "must be > 0"}
	}
	if t.EarliestStart != nil && t.Deadline != nil && *t.EarliestStart >= *t.Deadline {
		return &InvalidTaskError{TaskID: t.ID, Field: "deadline", Value: *t.Deadline, Reason: "must be after earliestStart"}
	}
	return nil
}

// Constrained reports whether the task carries a temporal range of its own.
func (t Task) Constrained() bool { return t.EarliestStart != nil || t.Deadline != nil }

// Window is a half-open interval [Start, End) of working time.
type Window struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Len returns the window length in minutes.
func (w Window) Len() int { return w.End - w.Start }

// Horizon is the ordered set of disjoint windows making up the day.
type Horizon struct {
	Windows []Window `json:"windows"`
}

// NewHorizon validates windows and fills in missing IDs as w1..wN.
func NewHorizon(windows ...Window) (Horizon, error) {
	if len(windows) == 0 {
		return Horizon{}, &InvalidWindowError{Field: "windows", Reason: "at least one window required"}
	}
	out := make([]Window, len(windows))
	copy(out, windows)
	seen := map[string]bool{}
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("w%d", i+1)
		}
		w := out[i]
		if seen[w.ID] {
			return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "id", Reason: "duplicate window id"}
		}
		seen[w.ID] = true
		if w.Start < 0 {
			return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "start", Reason: "must be >= 0"}
		}
		if w.Start >= w.End {
			return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "end", Reason: "must be after start"}
		}
		if w.End > DayMinutes {
			return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "end", Reason: fmt.Sprintf("must be <= %d (24:00)", DayMinutes)}
		}
		if i > 0 {
			prev := out[i-1]
			if w.Start < prev.Start {
				return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "start", Reason: "windows must be sorted by start"}
			}
			if w.Start < prev.End {
				return Horizon{}, &InvalidWindowError{WindowID: w.ID, Field: "start", Reason: fmt.Sprintf("overlaps window %q", prev.ID)}
			}
		}
	}
	return Horizon{Windows: out}, nil
}

// Capacity is the total working time across all windows.
func (h Horizon) Capacity() int {
	total := 0
	for _, w := range h.Windows {
		total += w.Len()
	}
	return total
}

// Start returns the beginning of the first window.
func (h Horizon) Start() int {
	if len(h.Windows) == 0 {
		return 0
	}
	return h.Windows[0].Start
}

// End returns the end of the last window.
func (h Horizon) End() int {
	if len(h.Windows) == 0 {
		return 0
	}
	return h.Windows[len(h.Windows)-1].End
}

// Instance is a validated problem: tasks plus the horizon they compete for.
// It owns copies of its inputs and must not be mutated after construction.
type Instance struct {
	Tasks   []Task
	Horizon Horizon
}

// NewInstance checks cross-field invariants (unique IDs, temporal ranges
// inside the horizon) and returns an Instance.
func NewInstance(tasks []Task, h Horizon) (Instance, error) {
	if len(h.Windows) == 0 {
		return Instance{}, &InvalidWindowError{Field: "windows", Reason: "at least one window required"}
	}
	ts := make([]Task, len(tasks))
	copy(ts, tasks)
	ids := map[string]bool{}
	for _, t := range ts {
		if err := t.Validate(); err != nil {
			return Instance{}, err
		}
		if ids[t.ID] {
			return Instance{}, &InvalidTaskError{TaskID: t.ID, Field: "id", Value: t.ID, Reason: "duplicate task id"}
		}
		ids[t.ID] = true
		if t.EarliestStart != nil && (*t.EarliestStart < h.Start() || *t.EarliestStart >= h.End()) {
			return Instance{}, &InvalidTaskError{TaskID: t.ID, Field: "earliestStart", Value: *t.EarliestStart,
				Reason: fmt.Sprintf("outside horizon [%d,%d)", h.Start(), h.End())}
		}
		if t.Deadline != nil && (*t.Deadline <= h.Start() || *t.Deadline > h.End()) {
			return Instance{}, &InvalidTaskError{TaskID: t.ID, Field: "deadline", Value: *t.Deadline,
				Reason: fmt.Sprintf("outside horizon (%d,%d]", h.Start(), h.End())}
		}
	}
	ws := make([]Window, len(h.Windows))
	copy(ws, h.Windows)
	return Instance{Tasks: ts, Horizon: Horizon{Windows: ws}}, nil
}

// Assignment is one placed task.
type Assignment struct {
	TaskID    string `json:"taskId"`
	TaskName  string `json:"taskName,omitempty"`
	WindowID  string `json:"windowId"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Priority  int    `json:"priority"`
	GapBefore int    `json:"gapBefore"` // idle minutes since window start or previous assignment
}

// Unscheduled names a task left out of the schedule and why.
type Unscheduled struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

// WindowUsage summarizes one window of the result.
type WindowUsage struct {
	WindowID string `json:"windowId"`
	Length   int    `json:"length"`
	Used     int    `json:"used"`
	Idle     int    `json:"idle"`
}

// Mode selects the solving strategy.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeExact  Mode = "exact"
	ModeGreedy Mode = "greedy"
)

// Schedule is the result of one solve. It is read-only once returned.
type Schedule struct {
	Assignments       []Assignment  `json:"assignments"`
	Unscheduled       []Unscheduled `json:"unscheduled"`
	Windows           []WindowUsage `json:"windows"`
	TotalPriority     int           `json:"totalPriority"`
	ScheduledDuration int           `json:"scheduledDuration"`
	TotalIdle         int           `json:"totalIdle"`
	Makespan          int           `json:"makespan"`
	Utilization       float64       `json:"utilization"`
	Optimal           bool          `json:"optimal"`
	Mode              Mode          `json:"mode"`
}

// UnscheduledIDs returns the IDs of tasks left out, sorted.
func (s Schedule) UnscheduledIDs() []string {
	out := make([]string, 0, len(s.Unscheduled))
	for _, u := range s.Unscheduled {
		out = append(out, u.TaskID)
	}
	sort.Strings(out)
	return out
}
