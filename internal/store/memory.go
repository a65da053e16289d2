package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	schedules map[string]ScheduleRecord       // id -> record
	byTen     map[string][]string             // tenant -> schedule ids, oldest first
	subs      map[string][]model.Subscription // tenant -> subscriptions
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	deliveryOrder      []string                // enqueue order across tenants
	dlq                []memDLQ
	solveMx            map[string]map[string][]model.SolveMetrics // tenant -> planDate -> latest per mode
	solverCfg          map[string]model.SolverOptions             // tenant -> config
	now                func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		schedules:          map[string]ScheduleRecord{},
		byTen:              map[string][]string{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		solveMx:            map[string]map[string][]model.SolveMetrics{},
		solverCfg:          map[string]model.SolverOptions{},
		now:                time.Now,
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

type memDLQ struct {
	ID           string
	Delivery     WebhookDelivery
	LastError    string
	ResponseCode int
	LatencyMs    int
	CreatedAt    time.Time
}

func (m *Memory) SaveSchedule(ctx context.Context, rec ScheduleRecord) (ScheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &rec.Schedule
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = m.now().UTC().Format(time.RFC3339)
	}
	if _, exists := m.schedules[s.ID]; !exists {
		m.byTen[s.TenantID] = append(m.byTen[s.TenantID], s.ID)
	}
	m.schedules[s.ID] = rec
	return rec, nil
}

func (m *Memory) GetSchedule(ctx context.Context, tenantID, id string) (ScheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.schedules[id]
	if !ok || rec.Schedule.TenantID != tenantID {
		return ScheduleRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListSchedules pages newest first. The cursor is the last ID returned.
func (m *Memory) ListSchedules(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]model.ScheduleSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	start := len(ids) - 1
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i - 1
				break
			}
		}
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []model.ScheduleSummary{}
	var next string
	for i := start; i >= 0 && len(out) < limit; i-- {
		s := m.schedules[ids[i]].Schedule
		if planDate == "" || s.PlanDate == planDate {
			out = append(out, s.Summary())
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteSchedule(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.schedules[id]
	if !ok || rec.Schedule.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.schedules, id)
	ids := m.byTen[tenantID]
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	m.byTen[tenantID] = out
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	for i := range arr {
		if arr[i].ID == id {
			m.subs[tenantID] = append(arr[:i], arr[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: m.now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.deliveryOrder = append(m.deliveryOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, memDLQ{ID: uuid.New().String(), Delivery: d.WebhookDelivery, LastError: lastError, ResponseCode: responseCode, LatencyMs: latencyMs, CreatedAt: m.now()})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []map[string]any{}
	var last string
	for _, id := range ids[start:] {
		d := m.deliveries[id]
		if d == nil || (status != "" && d.Status != status) {
			continue
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		out = append(out, item)
		last = id
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = m.now()
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []map[string]any{}
	seen := cursor == ""
	var last string
	for _, e := range m.dlq {
		if !seen {
			seen = e.ID == cursor
			continue
		}
		if e.Delivery.TenantID != tenantID || (eventType != "" && e.Delivery.EventType != eventType) {
			continue
		}
		out = append(out, map[string]any{"id": e.ID, "deliveryId": e.Delivery.ID, "eventType": e.Delivery.EventType, "url": e.Delivery.URL,
			"lastError": e.LastError, "attempts": e.Delivery.Attempts, "createdAt": e.CreatedAt, "responseCode": e.ResponseCode, "latencyMs": e.LatencyMs})
		last = e.ID
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// RequeueWebhookDLQ moves a dead-lettered delivery back onto the queue as a
// fresh delivery.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	idx := -1
	for i, e := range m.dlq {
		if e.ID == id && e.Delivery.TenantID == tenantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	d := m.dlq[idx].Delivery
	m.dlq = append(m.dlq[:idx], m.dlq[idx+1:]...)
	m.mu.Unlock()
	_, err := m.EnqueueWebhook(ctx, tenantID, d.SubscriptionID, d.EventType, d.URL, d.Secret, d.Payload)
	return err
}

func (m *Memory) SaveSolveMetrics(ctx context.Context, tenantID, planDate string, sm model.SolveMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.solveMx[tenantID] == nil {
		m.solveMx[tenantID] = map[string][]model.SolveMetrics{}
	}
	items := m.solveMx[tenantID][planDate]
	found := false
	for i := range items {
		if items[i].Mode == sm.Mode {
			items[i] = sm
			found = true
			break
		}
	}
	if !found {
		items = append(items, sm)
		sort.Slice(items, func(i, j int) bool { return items[i].Mode < items[j].Mode })
	}
	m.solveMx[tenantID][planDate] = items
	return nil
}

func (m *Memory) ListSolveMetrics(ctx context.Context, tenantID, planDate, mode string) ([]model.SolveMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SolveMetrics{}
	for _, it := range m.solveMx[tenantID][planDate] {
		if mode == "" || it.Mode == mode {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.solverCfg[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solverCfg[tenantID] = cfg
	return nil
}

var _ Store = (*Memory)(nil)
