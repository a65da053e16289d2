package store

import (
	"context"
	"errors"
	"time"

	"dayplan/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Schedules
	SaveSchedule(ctx context.Context, rec ScheduleRecord) (ScheduleRecord, error)
	GetSchedule(ctx context.Context, tenantID, id string) (ScheduleRecord, error)
	ListSchedules(ctx context.Context, tenantID, planDate, cursor string, limit int) (items []model.ScheduleSummary, nextCursor string, err error)
	DeleteSchedule(ctx context.Context, tenantID, id string) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
	RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error

	// Solve metrics, latest per tenant, plan date and mode
	SaveSolveMetrics(ctx context.Context, tenantID, planDate string, m model.SolveMetrics) error
	ListSolveMetrics(ctx context.Context, tenantID, planDate, mode string) ([]model.SolveMetrics, error)

	// Solver config per tenant; nil when the tenant has none
	GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverOptions, error)
	SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverOptions) error
}

var ErrNotFound = errors.New("not found")

// ScheduleRecord is a stored solve: the request as received and the
// rendered result. SaveSchedule fills Schedule.ID and Schedule.CreatedAt
// when they are empty.
type ScheduleRecord struct {
	Request  model.ScheduleRequest
	Schedule model.ScheduleOut
}
