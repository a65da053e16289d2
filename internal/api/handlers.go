package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dayplan/internal/metrics"
	"dayplan/internal/model"
	"dayplan/internal/opt"
	"dayplan/internal/store"
	"dayplan/internal/webhooks"
)

// asyncSlack is added to the solver time budget for detached solves so the
// greedy fallback and persistence can finish after the search stops.
const asyncSlack = 5 * time.Second

// SchedulesHandler serves POST (solve and store) and GET (list) on /v1/schedules.
func (s *Server) SchedulesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSchedule(w, r)
	case http.MethodGet:
		p, ok := s.principal(w, r)
		if !ok {
			return
		}
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListSchedules(r.Context(), p.Tenant, r.URL.Query().Get("planDate"), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List schedules failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// solveJob is one validated request ready to run.
type solveJob struct {
	id        string
	tenant    string
	requestID string
	req       model.ScheduleRequest
	inst      opt.Instance
	cfg       opt.SolverConfig
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant
	if err := s.validateScheduleRequest(&req); err != nil {
		metrics.SolveErrors.WithLabelValues("validation").Inc()
		writeProblemBody(w, validationProblem(err, r.URL.Path))
		return
	}
	inst, err := req.Instance()
	if err != nil {
		metrics.SolveErrors.WithLabelValues(errorKind(err)).Inc()
		writeProblemBody(w, solveProblem(err, r.URL.Path))
		return
	}
	cfg, err := s.solverConfig(r.Context(), p.Tenant, req.Solver)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
		return
	}
	job := solveJob{
		id:        uuid.NewString(),
		tenant:    p.Tenant,
		requestID: r.Header.Get(headerRequestID),
		req:       req,
		inst:      inst,
		cfg:       cfg,
	}

	if async := r.URL.Query().Get("async"); async == "true" || async == "1" {
		s.pending.Store(pendingKey(job.tenant, job.id), time.Now())
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			defer s.pending.Delete(pendingKey(job.tenant, job.id))
			ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeBudget+asyncSlack)
			defer cancel()
			if _, err := s.runSolve(ctx, job); err != nil {
				s.Log.Info("async solve failed", zap.String("schedule_id", job.id), zap.Error(err))
			}
		}()
		w.Header().Set("Location", "/v1/schedules/"+job.id)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     job.id,
			"status": "running",
			"events": "/v1/schedules/" + job.id + "/events/stream",
		})
		return
	}

	out, err := s.runSolve(r.Context(), job)
	if err != nil {
		if pr := solveProblem(err, r.URL.Path); pr.Status != http.StatusInternalServerError {
			writeProblemBody(w, pr)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Save schedule failed", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Location", "/v1/schedules/"+out.ID)
	writeJSON(w, http.StatusCreated, out)
}

// solverConfig layers the process defaults, the tenant's stored overrides
// and the request's options, then normalizes the result.
func (s *Server) solverConfig(ctx context.Context, tenant string, reqOpts *model.SolverOptions) (opt.SolverConfig, error) {
	cfg := s.Cfg.SolverConfig()
	tc, err := s.Store.GetSolverConfig(ctx, tenant)
	if err != nil {
		s.Log.Warn("tenant solver config unavailable", zap.String("tenant", tenant), zap.Error(err))
	}
	cfg = tc.Apply(cfg)
	cfg = reqOpts.Apply(cfg)
	return cfg.Normalize()
}

// runSolve solves, stores and announces one schedule. Incumbents are
// forwarded to the broker from a separate goroutine so a slow broker never
// stalls the search.
func (s *Server) runSolve(ctx context.Context, job solveJob) (model.ScheduleOut, error) {
	s.publish(job.tenant, job.id, model.SolveEvent{Type: "solve.started", RequestID: job.requestID})

	progress := make(chan opt.Progress, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for pr := range progress {
			s.publish(job.tenant, job.id, model.SolveEvent{Type: "solve.incumbent", RequestID: job.requestID, Progress: &pr})
		}
	}()
	cfg := job.cfg
	cfg.OnIncumbent = func(pr opt.Progress) {
		select {
		case progress <- pr:
		default:
		}
	}

	sched, met, err := opt.NewSolver(cfg, s.Log.Named("opt")).Solve(ctx, job.inst)
	close(progress)
	<-forwarded
	if err != nil {
		kind := errorKind(err)
		metrics.SolveErrors.WithLabelValues(kind).Inc()
		pb := solveProblem(err, "/v1/schedules/"+job.id)
		s.publish(job.tenant, job.id, model.SolveEvent{Type: "solve.failed", RequestID: job.requestID,
			Error: &model.EventError{Kind: kind, Title: pb.Title, Status: pb.Status, Detail: pb.Detail, Field: pb.Field}})
		return model.ScheduleOut{}, err
	}
	recordSolveMetrics(met)

	out := model.Render(job.inst, sched)
	out.ID = job.id
	out.TenantID = job.tenant
	out.PlanDate = job.req.PlanDate
	sm := model.MetricsOut(met)
	out.Metrics = &sm

	// persist with a context that survives a client hang-up after the solve
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec, err := s.Store.SaveSchedule(saveCtx, store.ScheduleRecord{Request: job.req, Schedule: out})
	if err != nil {
		return model.ScheduleOut{}, err
	}
	out = rec.Schedule
	if err := s.Store.SaveSolveMetrics(saveCtx, job.tenant, out.PlanDate, sm); err != nil {
		s.Log.Warn("save solve metrics failed", zap.Error(err))
	}
	opt.RecordMetrics(job.tenant, out.PlanDate, met)

	summary := out.Summary()
	if s.Pub != nil {
		if _, err := s.Pub.Emit(saveCtx, job.tenant, webhooks.EventScheduleCreated, summary); err != nil {
			s.Log.Warn("emit webhook failed", zap.String("event", webhooks.EventScheduleCreated), zap.Error(err))
		}
	}
	s.publish(job.tenant, job.id, model.SolveEvent{Type: webhooks.EventScheduleCreated, RequestID: job.requestID, Summary: &summary})
	s.Log.Info("schedule created",
		zap.String("tenant", job.tenant),
		zap.String("schedule_id", out.ID),
		zap.String("mode", out.Mode),
		zap.Int("tasks", met.Tasks),
		zap.Int("priority", out.TotalPriority),
		zap.Bool("optimal", out.Optimal),
		zap.String("stop", string(met.StopReason)))
	return out, nil
}

func recordSolveMetrics(met opt.Metrics) {
	metrics.Solves.WithLabelValues(string(met.Mode), string(met.StopReason)).Inc()
	metrics.SolveDuration.WithLabelValues(string(met.Mode)).Observe(met.Elapsed.Seconds())
	if met.Mode == opt.ModeExact {
		metrics.SolveNodes.Observe(float64(met.Nodes))
		metrics.SolveGap.Observe(float64(met.BestPriority - met.GreedyPriority))
	}
}

// publish sends evt to the tenant topic and the schedule topic.
func (s *Server) publish(tenant, scheduleID string, evt model.SolveEvent) {
	evt.TenantID = tenant
	evt.ScheduleID = scheduleID
	if evt.TS == "" {
		evt.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.Broker.Publish(tenantTopic(tenant), evt)
	s.Broker.Publish(scheduleTopic(tenant, scheduleID), evt)
}

func pendingKey(tenant, id string) string { return tenant + "/" + id }

func (s *Server) isPending(tenant, id string) bool {
	_, ok := s.pending.Load(pendingKey(tenant, id))
	return ok
}

// ScheduleByIDHandler serves /v1/schedules/{id} and /v1/schedules/{id}/events/stream.
func (s *Server) ScheduleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/schedules/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.scheduleEventStream(w, r, id)
		return
	}
	if len(parts) > 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := s.Store.GetSchedule(r.Context(), p.Tenant, id)
		if err != nil {
			if s.isPending(p.Tenant, id) {
				writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "running"})
				return
			}
			storeProblem(w, r, "Get schedule failed", err)
			return
		}
		if v := r.URL.Query().Get("include"); v == "request" {
			writeJSON(w, http.StatusOK, map[string]any{"schedule": rec.Schedule, "request": rec.Request})
			return
		}
		writeJSON(w, http.StatusOK, rec.Schedule)
	case http.MethodDelete:
		if !p.CanWrite() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		rec, err := s.Store.GetSchedule(r.Context(), p.Tenant, id)
		if err != nil {
			storeProblem(w, r, "Delete schedule failed", err)
			return
		}
		if err := s.Store.DeleteSchedule(r.Context(), p.Tenant, id); err != nil {
			storeProblem(w, r, "Delete schedule failed", err)
			return
		}
		summary := rec.Schedule.Summary()
		if s.Pub != nil {
			if _, err := s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventScheduleDeleted, summary); err != nil {
				s.Log.Warn("emit webhook failed", zap.String("event", webhooks.EventScheduleDeleted), zap.Error(err))
			}
		}
		s.publish(p.Tenant, id, model.SolveEvent{Type: webhooks.EventScheduleDeleted, Summary: &summary})
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
