package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
)

type metricsMiddleware struct {
	next     ports.Repository
	duration *prometheus.HistogramVec
}

// NewMetricsMiddleware records the latency of every repository call in
// choreo_repository_operation_duration_seconds{operation,result}.
func NewMetricsMiddleware(reg prometheus.Registerer) (Middleware, error) {
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "choreo_repository_operation_duration_seconds",
			Help:    "Latency of repository operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation", "result"},
	)
	if err := reg.Register(duration); err != nil {
		return nil, err
	}
	return func(next ports.Repository) ports.Repository {
		return &metricsMiddleware{next: next, duration: duration}
	}, nil
}

func (m *metricsMiddleware) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (m *metricsMiddleware) LoadTemplate(ctx context.Context, id string) (*domain.Template, error) {
	start := time.Now()
	t, err := m.next.LoadTemplate(ctx, id)
	m.observe("load_template", start, err)
	return t, err
}

func (m *metricsMiddleware) SaveTemplate(ctx context.Context, t *domain.Template) error {
	start := time.Now()
	err := m.next.SaveTemplate(ctx, t)
	m.observe("save_template", start, err)
	return err
}

func (m *metricsMiddleware) LoadRun(ctx context.Context, id string) (*domain.Run, error) {
	start := time.Now()
	run, err := m.next.LoadRun(ctx, id)
	m.observe("load_run", start, err)
	return run, err
}

func (m *metricsMiddleware) SaveRun(ctx context.Context, run *domain.Run) error {
	start := time.Now()
	err := m.next.SaveRun(ctx, run)
	m.observe("save_run", start, err)
	return err
}

func (m *metricsMiddleware) ListRuns(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.ListRuns(ctx)
	m.observe("list_runs", start, err)
	return ids, err
}

func (m *metricsMiddleware) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	start := time.Now()
	err := m.next.AppendRunState(ctx, rs)
	m.observe("append_run_state", start, err)
	return err
}

func (m *metricsMiddleware) CloseRunState(ctx context.Context, id string, exitedAt time.Time) error {
	start := time.Now()
	err := m.next.CloseRunState(ctx, id, exitedAt)
	m.observe("close_run_state", start, err)
	return err
}

func (m *metricsMiddleware) LoadRunState(ctx context.Context, id string) (*domain.RunState, error) {
	start := time.Now()
	rs, err := m.next.LoadRunState(ctx, id)
	m.observe("load_run_state", start, err)
	return rs, err
}

func (m *metricsMiddleware) ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error) {
	start := time.Now()
	visits, err := m.next.ListRunStates(ctx, runID)
	m.observe("list_run_states", start, err)
	return visits, err
}

func (m *metricsMiddleware) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	start := time.Now()
	err := m.next.PutSlot(ctx, runStateID, name, value)
	m.observe("put_slot", start, err)
	return err
}
