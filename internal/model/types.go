package model

import "dayplan/internal/opt"

// Request and response shapes for the HTTP API and the CLI.

type TaskIn struct {
	ID            string   `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=64"`
	Name          string   `json:"name" yaml:"name" validate:"required,max=200"`
	DurationMin   int      `json:"durationMin" yaml:"durationMin" validate:"gt=0,lte=1440"`
	Priority      Priority `json:"priority" yaml:"priority" validate:"gt=0,lte=1000000"`
	EarliestStart string   `json:"earliestStart,omitempty" yaml:"earliestStart,omitempty" validate:"omitempty,clock"`
	Deadline      string   `json:"deadline,omitempty" yaml:"deadline,omitempty" validate:"omitempty,clock"`
	Mandatory     bool     `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
}

type WindowIn struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=64"`
	Start string `json:"start" yaml:"start" validate:"required,clock"`
	End   string `json:"end" yaml:"end" validate:"required,clock"`
}

// SolverOptions overrides the tenant's solver configuration for one request.
type SolverOptions struct {
	Mode           string   `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=auto exact greedy"`
	ExactThreshold int      `json:"exactThreshold,omitempty" yaml:"exactThreshold,omitempty" validate:"gte=0"`
	TimeBudgetMs   int      `json:"timeBudgetMs,omitempty" yaml:"timeBudgetMs,omitempty" validate:"gte=0,lte=60000"`
	MaxNodes       int64    `json:"maxNodes,omitempty" yaml:"maxNodes,omitempty" validate:"gte=0"`
	Workers        int      `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0,lte=256"`
	TieBreakOrder  []string `json:"tieBreakOrder,omitempty" yaml:"tieBreakOrder,omitempty" validate:"dive,oneof=fewer_unscheduled less_idle makespan task_id"`
}

// ScheduleRequest is a day to plan. When Windows is empty the horizon is a
// single window of AvailableMinutes starting at DayStart.
type ScheduleRequest struct {
	TenantID         string         `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	PlanDate         string         `json:"planDate,omitempty" yaml:"planDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Tasks            []TaskIn       `json:"tasks" yaml:"tasks" validate:"lte=5000,dive"`
	Windows          []WindowIn     `json:"windows,omitempty" yaml:"windows,omitempty" validate:"lte=48,dive"`
	DayStart         string         `json:"dayStart,omitempty" yaml:"dayStart,omitempty" validate:"omitempty,clock"`
	AvailableMinutes int            `json:"availableMinutes,omitempty" yaml:"availableMinutes,omitempty" validate:"gte=0,lte=1440"`
	Solver           *SolverOptions `json:"solver,omitempty" yaml:"solver,omitempty"`
}

type AssignmentOut struct {
	TaskID       string `json:"taskId"`
	TaskName     string `json:"taskName,omitempty"`
	WindowID     string `json:"windowId"`
	Start        string `json:"start"`
	End          string `json:"end"`
	StartMin     int    `json:"startMin"`
	EndMin       int    `json:"endMin"`
	Priority     int    `json:"priority"`
	GapBeforeMin int    `json:"gapBeforeMin"`
}

type UnscheduledOut struct {
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName,omitempty"`
	Reason   string `json:"reason"`
}

// ScheduleOut is a stored, rendered solve result.
type ScheduleOut struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	PlanDate      string            `json:"planDate,omitempty"`
	CreatedAt     string            `json:"createdAt"`
	Assignments   []AssignmentOut   `json:"assignments"`
	Unscheduled   []UnscheduledOut  `json:"unscheduled"`
	Windows       []opt.WindowUsage `json:"windows"`
	TotalPriority int               `json:"totalPriority"`
	ScheduledMin  int               `json:"scheduledMin"`
	IdleMin       int               `json:"idleMin"`
	MakespanMin   int               `json:"makespanMin"`
	Utilization   float64           `json:"utilization"`
	Optimal       bool              `json:"optimal"`
	Mode          string            `json:"mode"`
	Metrics       *SolveMetrics     `json:"metrics,omitempty"`
}

// ScheduleSummary is the list view of a stored schedule.
type ScheduleSummary struct {
	ID            string `json:"id"`
	PlanDate      string `json:"planDate,omitempty"`
	CreatedAt     string `json:"createdAt"`
	TotalPriority int    `json:"totalPriority"`
	Scheduled     int    `json:"scheduled"`
	Unscheduled   int    `json:"unscheduled"`
	Optimal       bool   `json:"optimal"`
	Mode          string `json:"mode"`
}

// SolveMetrics is opt.Metrics as reported over the wire.
type SolveMetrics struct {
	Mode           string `json:"mode"`
	Tasks          int    `json:"tasks"`
	Nodes          int64  `json:"nodes"`
	Pruned         int64  `json:"pruned"`
	Incumbents     int    `json:"incumbents"`
	Workers        int    `json:"workers"`
	Subproblems    int    `json:"subproblems"`
	GreedyPriority int    `json:"greedyPriority"`
	BestPriority   int    `json:"bestPriority"`
	ElapsedMs      int64  `json:"elapsedMs"`
	StopReason     string `json:"stopReason"`
}

// SolveEvent is published on the event brokers while a solve runs and once
// it is stored.
type SolveEvent struct {
	Type       string           `json:"type"` // solve.started, solve.incumbent, solve.failed, schedule.created
	TenantID   string           `json:"tenantId"`
	ScheduleID string           `json:"scheduleId,omitempty"`
	RequestID  string           `json:"requestId,omitempty"`
	TS         string           `json:"ts"`
	Progress   *opt.Progress    `json:"progress,omitempty"`
	Summary    *ScheduleSummary `json:"summary,omitempty"`
	Error      *EventError      `json:"error,omitempty"`
}

// EventError describes why a solve.failed event was raised.
type EventError struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,oneof=schedule.created schedule.deleted"`
	Secret   string   `json:"secret" validate:"omitempty,min=8"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
