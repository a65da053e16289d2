package opt

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Defaults applied to zero-valued SolverConfig fields.
const (
	DefaultExactThreshold = 50
	DefaultTimeBudget     = 2 * time.Second
)

// StopReason explains how a solve ended.
type StopReason string

const (
	StopCompleted  StopReason = "completed"
	StopTimeBudget StopReason = "time_budget"
	StopNodeBudget StopReason = "node_budget"
	StopCanceled   StopReason = "canceled"
	StopHeuristic  StopReason = "heuristic"
)

// Progress is reported to SolverConfig.OnIncumbent on every improvement.
type Progress struct {
	Priority  int   `json:"priority"`
	Scheduled int   `json:"scheduled"`
	Duration  int   `json:"duration"`
	Nodes     int64 `json:"nodes"`
}

// SolverConfig tunes one solve. The zero value is usable.
type SolverConfig struct {
	Mode           Mode
	ExactThreshold int           // auto mode runs exact search up to this many tasks
	TimeBudget     time.Duration // wall-clock budget for exact search
	MaxNodes       int64         // node budget for exact search; 0 means unlimited
	Workers        int           // parallel search workers; 0 means GOMAXPROCS
	TieBreakOrder  []TieBreak
	// OnIncumbent is called serially from search goroutines; keep it fast.
	OnIncumbent func(Progress)
}

// DefaultSolverConfig returns the configuration used for zero fields.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Mode:           ModeAuto,
		ExactThreshold: DefaultExactThreshold,
		TimeBudget:     DefaultTimeBudget,
		TieBreakOrder:  append([]TieBreak(nil), DefaultTieBreakOrder...),
	}
}

// Normalize fills defaults and validates the configuration.
func (c SolverConfig) Normalize() (SolverConfig, error) {
	switch c.Mode {
	case "":
		c.Mode = ModeAuto
	case ModeAuto, ModeExact, ModeGreedy:
	default:
		return c, fmt.Errorf("unknown solver mode %q", c.Mode)
	}
	if c.ExactThreshold < 0 {
		return c, fmt.Errorf("exactThreshold must be >= 0")
	}
	if c.ExactThreshold == 0 {
		c.ExactThreshold = DefaultExactThreshold
	}
	if c.TimeBudget < 0 {
		return c, fmt.Errorf("timeBudget must be >= 0")
	}
	if c.TimeBudget == 0 {
		c.TimeBudget = DefaultTimeBudget
	}
	if c.MaxNodes < 0 {
		return c, fmt.Errorf("maxNodes must be >= 0")
	}
	if c.Workers < 0 {
		return c, fmt.Errorf("workers must be >= 0")
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	order, err := normalizeTieBreaks(c.TieBreakOrder)
	if err != nil {
		return c, err
	}
	c.TieBreakOrder = order
	return c, nil
}

// Metrics describes how a solve went. Unlike Schedule it varies between runs.
type Metrics struct {
	Mode           Mode          `json:"mode"`
	Tasks          int           `json:"tasks"`
	Nodes          int64         `json:"nodes"`
	Pruned         int64         `json:"pruned"`
	Incumbents     int           `json:"incumbents"`
	Workers        int           `json:"workers"`
	Subproblems    int           `json:"subproblems"`
	GreedyPriority int           `json:"greedyPriority"`
	BestPriority   int           `json:"bestPriority"`
	Elapsed        time.Duration `json:"elapsed"`
	StopReason     StopReason    `json:"stopReason"`
}

// Solver runs solves with a fixed configuration and logger.
type Solver struct {
	cfg SolverConfig
	log *zap.Logger
}

// NewSolver returns a Solver; a nil logger discards output.
func NewSolver(cfg SolverConfig, log *zap.Logger) *Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{cfg: cfg, log: log}
}

// Solve is shorthand for NewSolver(cfg, nil).Solve(ctx, inst).
func Solve(ctx context.Context, inst Instance, cfg SolverConfig) (Schedule, Metrics, error) {
	return NewSolver(cfg, nil).Solve(ctx, inst)
}

// Solve validates inst, builds its constraint model and searches for the
// best schedule. Budget exhaustion and cancellation return the best
// schedule found so far with Optimal=false instead of an error.
func (s *Solver) Solve(ctx context.Context, inst Instance) (Schedule, Metrics, error) {
	start := time.Now()
	cfg, err := s.cfg.Normalize()
	if err != nil {
		return Schedule{}, Metrics{}, err
	}
	h, err := NewHorizon(inst.Horizon.Windows...)
	if err != nil {
		return Schedule{}, Metrics{}, err
	}
	if inst, err = NewInstance(inst.Tasks, h); err != nil {
		return Schedule{}, Metrics{}, err
	}
	m, err := BuildModel(inst)
	if err != nil {
		return Schedule{}, Metrics{}, err
	}

	mode := cfg.Mode
	if mode == ModeAuto {
		mode = ModeGreedy
		if len(inst.Tasks) <= cfg.ExactThreshold {
			mode = ModeExact
		}
	}
	met := Metrics{Mode: mode, Tasks: len(inst.Tasks), Workers: 1}

	var sched Schedule
	if mode == ModeExact {
		sched, err = m.solveExact(ctx, cfg, &met)
	} else {
		sched = m.solveGreedy(&met)
	}
	met.Elapsed = time.Since(start)
	if err != nil {
		s.log.Debug("solve failed", zap.String("mode", string(mode)), zap.Int("tasks", met.Tasks), zap.Error(err))
		return Schedule{}, met, err
	}
	met.BestPriority = sched.TotalPriority
	s.log.Debug("solve finished",
		zap.String("mode", string(mode)),
		zap.Int("tasks", met.Tasks),
		zap.Int("scheduled", len(sched.Assignments)),
		zap.Int("priority", sched.TotalPriority),
		zap.Bool("optimal", sched.Optimal),
		zap.Int64("nodes", met.Nodes),
		zap.String("stop", string(met.StopReason)),
		zap.Duration("elapsed", met.Elapsed))
	return sched, met, nil
}

func (m *Model) solveGreedy(met *Metrics) Schedule {
	plan, missing := m.greedy()
	ps, _ := m.layout(plan)
	met.StopReason = StopHeuristic
	met.GreedyPriority = m.scoreOf(ps).priority
	return m.assemble(ps, missingReasons(missing, "mandatory task could not be placed by the heuristic"), false, ModeGreedy)
}

func missingReasons(ids []string, reason string) []Unscheduled {
	out := make([]Unscheduled, 0, len(ids))
	for _, id := range ids {
		out = append(out, Unscheduled{TaskID: id, Reason: reason})
	}
	return out
}
