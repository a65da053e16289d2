package api

import (
	"net/http"
	"strings"

	"dayplan/internal/model"
	"dayplan/internal/opt"
)

// optionsOf renders an effective solver configuration in request form.
func optionsOf(c opt.SolverConfig) model.SolverOptions {
	o := model.SolverOptions{
		Mode:           string(c.Mode),
		ExactThreshold: c.ExactThreshold,
		TimeBudgetMs:   int(c.TimeBudget.Milliseconds()),
		MaxNodes:       c.MaxNodes,
		Workers:        c.Workers,
	}
	for _, tb := range c.TieBreakOrder {
		o.TieBreakOrder = append(o.TieBreakOrder, string(tb))
	}
	return o
}

// SolverConfigHandler returns the effective solver configuration for the
// caller's tenant: process defaults overlaid with the tenant's overrides.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	cfg, err := s.solverConfig(r.Context(), p.Tenant, nil)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Solver config invalid", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, optionsOf(cfg))
}

// AdminSolverConfigHandler reads and replaces the tenant's stored overrides.
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetSolverConfig(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get solver config failed", err.Error(), r.URL.Path)
			return
		}
		if cfg == nil {
			cfg = &model.SolverOptions{}
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var in model.SolverOptions
		if err := decodeJSON(r, &in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := s.Validate.Struct(&in); err != nil {
			writeProblemBody(w, validationProblem(err, r.URL.Path))
			return
		}
		if _, err := in.Apply(s.Cfg.SolverConfig()).Normalize(); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, in); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save solver config failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, in)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveMetricsHandler lists the latest solve metrics per mode for a plan
// date. Stored metrics are preferred; the in-process cache covers stores
// that have none yet.
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	planDate := r.URL.Query().Get("planDate")
	mode := r.URL.Query().Get("mode")
	items, err := s.Store.ListSolveMetrics(r.Context(), p.Tenant, planDate, mode)
	if err != nil || len(items) == 0 {
		cached := opt.GetMetrics(p.Tenant, planDate)
		items = []model.SolveMetrics{}
		for _, m := range opt.MetricsModes(p.Tenant, planDate) {
			if mode != "" && string(m) != mode {
				continue
			}
			items = append(items, model.MetricsOut(cached[m]))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SubscriptionsHandler creates (POST) and lists (GET) webhook subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		if err := s.Validate.Struct(&req); err != nil {
			writeProblemBody(w, validationProblem(err, r.URL.Path))
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		storeProblem(w, r, "Delete subscription failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, r.URL.Query().Get("status"), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler serves POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if !ok || id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		storeProblem(w, r, "Retry delivery failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
		cursor, limit := pageParams(r)
		items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, r.URL.Query().Get("eventType"), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List DLQ failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
		return
	}
	if id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue"); ok && id != "" && r.Method == http.MethodPost {
		if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil {
			storeProblem(w, r, "Requeue failed", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
		return
	}
	writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
}
