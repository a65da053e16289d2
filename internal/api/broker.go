package api

import (
	"sync"

	"dayplan/internal/model"
)

// Topics are "tenant:<id>" for every event of a tenant and
// "schedule:<tenant>/<id>" for one stored schedule.
func tenantTopic(tenant string) string { return "tenant:" + tenant }

func scheduleTopic(tenant, id string) string { return "schedule:" + tenant + "/" + id }

// EventBroker fans solve events out to stream listeners.
type EventBroker interface {
	Subscribe(topic string) chan model.SolveEvent
	Unsubscribe(topic string, ch chan model.SolveEvent)
	Publish(topic string, evt model.SolveEvent)
}

// Broker is the in-process EventBroker. Slow listeners drop events rather
// than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.SolveEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.SolveEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan model.SolveEvent {
	ch := make(chan model.SolveEvent, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan model.SolveEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan model.SolveEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt model.SolveEvent) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
