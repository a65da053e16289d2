// Package api implements the HTTP surface of the dayplan service.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dayplan/internal/auth"
	"dayplan/internal/config"
	"dayplan/internal/model"
	"dayplan/internal/store"
	"dayplan/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Log      *zap.Logger
	Cfg      config.Config
	Validate *validator.Validate

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	pending sync.Map // tenant/id -> start time of detached solves
	bg      sync.WaitGroup
}

// NewServer wires the store, broker and verifier from cfg. Without a
// DatabaseURL it uses the in-memory store; without a RedisURL it uses the
// in-process broker.
func NewServer(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn("migrations failed", zap.Error(err))
			}
		}
		s = sp
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
		} else {
			broker = rb
		}
	}

	v, err := auth.New(cfg.Auth.Mode, cfg.Auth.HMACSecret)
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s, log.Named("webhooks")),
		Auth:     v,
		Broker:   broker,
		Log:      log,
		Cfg:      cfg,
		Validate: model.NewValidator(),
		limiters: map[string]*rate.Limiter{},
	}, nil
}

// Routes returns the service mux wrapped in the access log, metrics and
// rate limiting middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/schedules", s.SchedulesHandler)
	mux.HandleFunc("/v1/schedules/", s.ScheduleByIDHandler) // includes /events/stream
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)
	mux.HandleFunc("/v1/ws", s.WSHandler)

	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	mux.HandleFunc("/v1/admin/solver/config", s.AdminSolverConfigHandler)
	mux.HandleFunc("/v1/admin/solve-metrics", s.SolveMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug/vars", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	mux.HandleFunc("/swagger", s.SwaggerHandler)

	return s.accessLog(s.instrument(s.rateLimit(mux)))
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, webhooks.WorkerOptions{
		MaxAttempts:  s.Cfg.Webhooks.MaxAttempts,
		PollInterval: s.Cfg.Webhooks.PollInterval,
		Timeout:      s.Cfg.Webhooks.Timeout,
	}, s.Log.Named("webhooks"))
}

// Wait blocks until detached solves finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := s.Store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type pinger interface{ Ping(ctx context.Context) error }
