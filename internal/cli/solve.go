package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dayplan/internal/config"
	"dayplan/internal/integrations"
	"dayplan/internal/integrations/csvtasks"
	"dayplan/internal/integrations/problemfile"
	"dayplan/internal/logging"
	"dayplan/internal/model"
	"dayplan/internal/opt"
)

type solveFlags struct {
	tasks     string
	problem   string
	windows   []string
	dayStart  string
	minutes   int
	mode      string
	budget    time.Duration
	maxNodes  int64
	workers   int
	threshold int
	tieBreaks []string
	asJSON    bool
	progress  bool
	logLevel  string
}

func newSolveCmd() *cobra.Command {
	var fl solveFlags
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a day plan from a CSV task list or a problem file",
		Example: `  dayplan solve --tasks today.csv --minutes 240
  dayplan solve --tasks today.csv --window 09:00-12:00 --window 13:00-17:30 --mode exact
  dayplan solve --problem monday.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.tasks, "tasks", "", "CSV task list (name,duration,priority[,earliest,deadline,mandatory])")
	f.StringVar(&fl.problem, "problem", "", "YAML or JSON problem file")
	f.StringArrayVar(&fl.windows, "window", nil, "available window HH:MM-HH:MM; repeatable")
	f.StringVar(&fl.dayStart, "day-start", "", "start of the default window (default 09:00)")
	f.IntVar(&fl.minutes, "minutes", 0, "length of the default window in minutes (default 240)")
	f.StringVar(&fl.mode, "mode", "", "auto, exact or greedy")
	f.DurationVar(&fl.budget, "budget", 0, "time budget for exact search")
	f.Int64Var(&fl.maxNodes, "max-nodes", 0, "node budget for exact search")
	f.IntVar(&fl.workers, "workers", 0, "parallel search workers (default GOMAXPROCS)")
	f.IntVar(&fl.threshold, "exact-threshold", 0, "largest task count auto mode solves exactly")
	f.StringSliceVar(&fl.tieBreaks, "tie-break", nil, "tie-break order: fewer_unscheduled,less_idle,makespan,task_id")
	f.BoolVar(&fl.asJSON, "json", false, "print the schedule as JSON")
	f.BoolVar(&fl.progress, "progress", false, "report improving schedules on stderr")
	f.StringVar(&fl.logLevel, "log-level", "warn", "log level for solver diagnostics")
	cmd.MarkFlagsOneRequired("tasks", "problem")
	return cmd
}

func runSolve(cmd *cobra.Command, fl solveFlags) error {
	ctx := cmd.Context()
	log, err := logging.New(fl.logLevel, logging.WithFormat("console"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	req, err := buildRequest(cmd, fl)
	if err != nil {
		return err
	}
	if err := model.NewValidator().Struct(&req); err != nil {
		return describeValidation(err)
	}
	inst, err := req.Instance()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sc := req.Solver.Apply(cfg.SolverConfig())
	if fl.progress {
		errOut := cmd.ErrOrStderr()
		sc.OnIncumbent = func(p opt.Progress) {
			fmt.Fprintf(errOut, "incumbent: priority=%d scheduled=%d minutes=%d nodes=%d\n", p.Priority, p.Scheduled, p.Duration, p.Nodes)
		}
	}

	sched, met, err := opt.NewSolver(sc, log.Named("opt")).Solve(ctx, inst)
	if err != nil {
		return err
	}
	log.Debug("solved", zap.String("mode", string(met.Mode)), zap.Int64("nodes", met.Nodes), zap.String("stop", string(met.StopReason)))

	out := model.Render(inst, sched)
	out.PlanDate = req.PlanDate
	sm := model.MetricsOut(met)
	out.Metrics = &sm
	if fl.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printSchedule(cmd.OutOrStdout(), out)
}

// buildRequest merges the problem file, the CSV task list and the flags.
// Flags win over the problem file; CSV tasks replace the file's tasks.
func buildRequest(cmd *cobra.Command, fl solveFlags) (model.ScheduleRequest, error) {
	var req model.ScheduleRequest
	var err error
	if fl.problem != "" {
		if req, err = problemfile.Load(fl.problem); err != nil {
			return req, err
		}
	}
	if fl.tasks != "" {
		var src integrations.TaskSource = csvtasks.Adapter{Path: fl.tasks}
		if req.Tasks, err = src.FetchTasks(cmd.Context()); err != nil {
			return req, err
		}
	}
	if len(fl.windows) > 0 {
		req.Windows = nil
		for _, w := range fl.windows {
			start, end, ok := strings.Cut(w, "-")
			if !ok {
				return req, fmt.Errorf("--window %q: want HH:MM-HH:MM", w)
			}
			req.Windows = append(req.Windows, model.WindowIn{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)})
		}
	}
	if fl.dayStart != "" {
		req.DayStart = fl.dayStart
	}
	if fl.minutes > 0 {
		req.AvailableMinutes = fl.minutes
	}

	f := cmd.Flags()
	if req.Solver == nil {
		req.Solver = &model.SolverOptions{}
	}
	if f.Changed("mode") {
		req.Solver.Mode = fl.mode
	}
	if f.Changed("budget") {
		req.Solver.TimeBudgetMs = int(fl.budget.Milliseconds())
	}
	if f.Changed("max-nodes") {
		req.Solver.MaxNodes = fl.maxNodes
	}
	if f.Changed("workers") {
		req.Solver.Workers = fl.workers
	}
	if f.Changed("exact-threshold") {
		req.Solver.ExactThreshold = fl.threshold
	}
	if f.Changed("tie-break") {
		req.Solver.TieBreakOrder = fl.tieBreaks
	}
	return req, nil
}

func describeValidation(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s", field, fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("invalid problem: %s", strings.Join(msgs, "; "))
}

func printSchedule(w io.Writer, s model.ScheduleOut) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tTASK\tPRIORITY\tWINDOW")
	for _, a := range s.Assignments {
		name := a.TaskName
		if name == "" {
			name = a.TaskID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.Start, a.End, name, a.Priority, a.WindowID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(s.Unscheduled) > 0 {
		fmt.Fprintln(w, "\nNot scheduled:")
		for _, u := range s.Unscheduled {
			name := u.TaskName
			if name == "" {
				name = u.TaskID
			}
			fmt.Fprintf(w, "  %s: %s\n", name, u.Reason)
		}
	}
	quality := "optimal"
	if !s.Optimal {
		quality = "best found"
		if s.Metrics != nil {
			quality += ", " + s.Metrics.StopReason
		}
	}
	fmt.Fprintf(w, "\nTotal priority %d, %d min scheduled, %d min idle, %.0f%% utilized (%s, %s)\n",
		s.TotalPriority, s.ScheduledMin, s.IdleMin, s.Utilization*100, s.Mode, quality)
	return nil
}
