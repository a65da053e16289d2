package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dayplan/internal/metrics"
	"dayplan/internal/model"
	"dayplan/internal/webhooks"
)

const heartbeatInterval = 15 * time.Second

// scheduleEventStream streams a schedule's events over SSE. A schedule that
// is already stored gets its schedule.created event replayed first; the
// stream ends after schedule.deleted or when the client goes away.
func (s *Server) scheduleEventStream(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before the lookup so an event landing in between is not lost
	topic := scheduleTopic(p.Tenant, id)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	// a detached solve stores its result before it stops being pending
	pending := s.isPending(p.Tenant, id)
	var replay *model.SolveEvent
	if rec, err := s.Store.GetSchedule(r.Context(), p.Tenant, id); err == nil {
		summary := rec.Schedule.Summary()
		replay = &model.SolveEvent{Type: webhooks.EventScheduleCreated, TenantID: p.Tenant, ScheduleID: id,
			TS: time.Now().UTC().Format(time.RFC3339Nano), Summary: &summary}
	} else if !pending {
		storeProblem(w, r, "Get schedule failed", err)
		return
	}

	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// initial heartbeat
	writeSSE(w, "heartbeat", map[string]string{"scheduleId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
	if replay != nil {
		writeSSE(w, replay.Type, replay)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt)
			flusher.Flush()
			if evt.Type == webhooks.EventScheduleDeleted || evt.Type == "solve.failed" {
				return
			}
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", map[string]string{"scheduleId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}
