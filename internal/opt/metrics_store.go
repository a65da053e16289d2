package opt

import (
	"sort"
	"sync"
)

// The solve-metrics cache is filled by callers after a solve (Solve itself
// never touches it). The API falls back to it when the store has nothing.

type metricsKey struct {
	Tenant   string
	PlanDate string
	Mode     Mode
}

var (
	mu    sync.Mutex
	store = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the latest metrics per tenant, plan date and mode.
func RecordMetrics(tenant, planDate string, m Metrics) {
	mu.Lock()
	store[metricsKey{Tenant: tenant, PlanDate: planDate, Mode: m.Mode}] = m
	mu.Unlock()
}

// GetMetrics returns the cached metrics for a tenant and plan date by mode.
func GetMetrics(tenant, planDate string) map[Mode]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[Mode]Metrics{}
	for k, v := range store {
		if k.Tenant == tenant && k.PlanDate == planDate {
			out[k.Mode] = v
		}
	}
	return out
}

// MetricsModes lists the modes cached for a tenant and plan date, sorted.
func MetricsModes(tenant, planDate string) []Mode {
	ms := GetMetrics(tenant, planDate)
	out := make([]Mode, 0, len(ms))
	for k := range ms {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
