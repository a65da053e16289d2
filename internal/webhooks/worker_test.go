package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dayplan/internal/model"
	"dayplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
	Next    *time.Time
}
type FailRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, WorkerOptions{MaxAttempts: 3}, nil)
	w.HTTP = srv.Client()
	pub := NewPublisher(rs, nil)
	if _, err := rs.CreateSubscription(context.Background(), model.SubscriptionRequest{TenantID: "t1", URL: srv.URL, Events: []string{EventScheduleCreated}, Secret: "secret"}); err != nil {
		t.Fatal(err)
	}
	n, err := pub.Emit(context.Background(), "t1", EventScheduleCreated, map[string]any{"scheduleId": "s1"})
	if err != nil || n != 1 {
		t.Fatalf("emit: %d %v", n, err)
	}

	if got := w.processOnce(); got != 1 {
		t.Fatalf("processed %d", got)
	}
	if gotType != EventScheduleCreated || !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("bad headers: sig=%q type=%q", gotSig, gotType)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.TenantID != "t1" || env.Type != EventScheduleCreated {
		t.Fatalf("envelope: %+v %v", env, err)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, WorkerOptions{MaxAttempts: 2}, nil)
	w.HTTP = srv.Client()
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventScheduleCreated, srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 || rs.marks[0].Next == nil {
		t.Fatalf("expected retry mark, got %+v", rs.marks)
	}
	if err := rs.RetryWebhookDelivery(context.Background(), "t1", id); err != nil {
		t.Fatal(err)
	}
	w.processOnce()
	if len(rs.fails) != 1 || rs.fails[0].ID != id {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
	dlq, _, _ := rs.ListWebhookDLQ(context.Background(), "t1", "", "", 10)
	if len(dlq) != 1 {
		t.Fatalf("dlq: %+v", dlq)
	}
}

func TestEmitWithoutSubscribers(t *testing.T) {
	pub := NewPublisher(store.NewMemory(), nil)
	if n, err := pub.Emit(context.Background(), "t1", EventScheduleCreated, nil); n != 0 || err != nil {
		t.Fatalf("emit: %d %v", n, err)
	}
}

func TestBackoffAndSignature(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second || nextBackoff(50) != time.Hour {
		t.Fatalf("backoff: %v %v %v", nextBackoff(0), nextBackoff(3), nextBackoff(50))
	}
	sig := SignHMAC("k", []byte("body"))
	if !VerifyHMAC("k", []byte("body"), sig) || !VerifyHMAC("k", []byte("body"), "sha256="+sig) {
		t.Fatalf("verify failed")
	}
	if VerifyHMAC("other", []byte("body"), sig) || VerifyHMAC("k", []byte("body"), "zz") {
		t.Fatalf("verify should fail")
	}
}
