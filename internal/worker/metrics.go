package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are the worker's Prometheus instruments. Each runner owns its
// own set so tests can use a private registry.
type Collectors struct {
	LeadsProcessed *prometheus.CounterVec
	LeadDuration   prometheus.Histogram
	LockAcquire    *prometheus.CounterVec
	Recovered      *prometheus.CounterVec
	Executions     *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them with reg when it
// is non-nil.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LeadsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outreach_leads_processed_total", Help: "Leads processed by outcome"},
			[]string{"outcome"},
		),
		LeadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_lead_processing_seconds",
				Help:    "Time spent processing one lead",
				Buckets: prometheus.DefBuckets,
			},
		),
		LockAcquire: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outreach_lock_acquire_total", Help: "Campaign lock acquisition attempts"},
			[]string{"result"},
		),
		Recovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outreach_recovered_leads_total", Help: "Leads repaired by recovery"},
			[]string{"action"},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outreach_executions_total", Help: "Campaign executions by final status"},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.LeadsProcessed, c.LeadDuration, c.LockAcquire, c.Recovered, c.Executions)
	}
	return c
}
