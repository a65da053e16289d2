package opt

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched with errors.Is; the structured types below wrap them.
var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrInvalidWindow = errors.New("invalid window")
	ErrOverCommitted = errors.New("mandatory tasks exceed available time")
	ErrInfeasible    = errors.New("no task fits any window")
)

// InvalidTaskError reports a task that failed validation.
type InvalidTaskError struct {
	TaskID string
	Field  string
	Value  any
	Reason string
}

func (e *InvalidTaskError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task: %s=%v: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid task %q: %s=%v: %s", e.TaskID, e.Field, e.Value, e.Reason)
}

func (e *InvalidTaskError) Unwrap() error { return ErrInvalidTask }

// InvalidWindowError reports a malformed horizon.
type InvalidWindowError struct {
	WindowID string
	Field    string
	Reason   string
}

func (e *InvalidWindowError) Error() string {
	if e.WindowID == "" {
		return fmt.Sprintf("invalid window: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid window %q: %s: %s", e.WindowID, e.Field, e.Reason)
}

func (e *InvalidWindowError) Unwrap() error { return ErrInvalidWindow }

// OverCommittedError is returned before searching when mandatory tasks cannot
// all be placed.
type OverCommittedError struct {
	Required int // minutes of mandatory work
	Capacity int // minutes available across the horizon
	TaskIDs  []string
	Reason   string
}

func (e *OverCommittedError) Error() string {
	return fmt.Sprintf("over-committed: %s (mandatory %d min, capacity %d min, tasks %s)",
		e.Reason, e.Required, e.Capacity, strings.Join(e.TaskIDs, ","))
}

func (e *OverCommittedError) Unwrap() error { return ErrOverCommitted }

// InfeasibleError means not a single task can be placed anywhere.
type InfeasibleError struct {
	Tasks    int
	Capacity int
	Reasons  []Unscheduled
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("infeasible: none of %d tasks fits the %d min horizon", e.Tasks, e.Capacity)
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }
