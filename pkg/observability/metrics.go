package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/choreo/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by run lifecycle events.
type Metrics struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	stateEnters  *prometheus.CounterVec
	slotWrites   *prometheus.CounterVec
	dwell        *prometheus.HistogramVec
	active       prometheus.Gauge

	mu      sync.Mutex
	entered map[string]time.Time // runID -> entry time of the open state
}

// NewMetrics creates and registers the run collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_runs_started_total",
			Help: "Runs started, by template.",
		}, []string{"template_id"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_runs_finished_total",
			Help: "Runs that reached a terminal status.",
		}, []string{"template_id", "status"}),
		stateEnters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_state_enters_total",
			Help: "State visits, by state.",
		}, []string{"state_id"}),
		slotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_slot_writes_total",
			Help: "Accepted slot writes, by role.",
		}, []string{"role"}),
		dwell: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "choreo_state_dwell_seconds",
			Help:    "Time spent in a state before leaving it.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"state_id", "condition"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "choreo_runs_active",
			Help: "Runs started and not yet finished by this process.",
		}),
		entered: make(map[string]time.Time),
	}
	for _, c := range []prometheus.Collector{m.runsStarted, m.runsFinished, m.stateEnters, m.slotWrites, m.dwell, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			m.runsStarted.WithLabelValues(e.TemplateID).Inc()
			m.active.Inc()
		},
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.stateEnters.WithLabelValues(e.StateID).Inc()
			m.mu.Lock()
			m.entered[e.RunID] = e.Timestamp
			m.mu.Unlock()
		},
		OnStateExit: func(_ context.Context, e *domain.StateEvent) {
			m.mu.Lock()
			at, ok := m.entered[e.RunID]
			delete(m.entered, e.RunID)
			m.mu.Unlock()
			if ok {
				m.dwell.WithLabelValues(e.StateID, string(e.Condition)).Observe(e.Timestamp.Sub(at).Seconds())
			}
		},
		OnSlotWrite: func(_ context.Context, e *domain.SlotEvent) {
			m.slotWrites.WithLabelValues(e.Role).Inc()
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			m.runsFinished.WithLabelValues(e.TemplateID, string(e.Status)).Inc()
			m.active.Dec()
			m.mu.Lock()
			delete(m.entered, e.RunID)
			m.mu.Unlock()
		},
	}
}
