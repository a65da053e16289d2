package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"dayplan/internal/metrics"
	"dayplan/internal/store"
)

// Worker polls the store for due deliveries and POSTs them. A delivery that
// keeps failing is retried with exponential backoff and dead-lettered after
// MaxAttempts.
type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	Log          *zap.Logger
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// WorkerOptions mirrors the webhooks section of the process config.
type WorkerOptions struct {
	MaxAttempts  int
	PollInterval time.Duration
	Timeout      time.Duration
}

func NewWorker(s store.Store, opts WorkerOptions, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Worker{
		Store:        s,
		HTTP:         &http.Client{Timeout: opts.Timeout},
		Log:          log,
		MaxAttempts:  opts.MaxAttempts,
		PollInterval: opts.PollInterval,
		BatchSize:    50,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the poll loop in a goroutine until Stop.
func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

// Stop ends the poll loop and waits for the current batch.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Worker) processOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
	if err != nil {
		w.Log.Warn("fetch due webhooks", zap.Error(err))
		return 0
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
	return len(items)
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	code, latency, err := w.post(ctx, it)
	success := err == nil
	status := "delivered"
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		w.Log.Warn("webhook dead-lettered", zap.String("delivery", it.ID), zap.String("url", it.URL), zap.Int("attempts", it.Attempts+1), zap.Error(err))
		err = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), code, latency)
	default:
		status = "retry"
		next := time.Now().Add(nextBackoff(it.Attempts))
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, err.Error(), code, latency)
	}
	if err != nil {
		w.Log.Warn("record webhook outcome", zap.String("delivery", it.ID), zap.Error(err))
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

// post sends one delivery; any non-2xx answer is an error.
func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (code, latencyMs int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	req.Header.Set(HeaderDelivery, it.ID)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latencyMs, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latencyMs, fmt.Errorf("subscriber answered %d", resp.StatusCode)
	}
	return resp.StatusCode, latencyMs, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
