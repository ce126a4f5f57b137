package machine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/choreo/pkg/domain"
)

// DefaultSweepInterval is how often a Sweeper ticks runs.
const DefaultSweepInterval = time.Minute

// Sweeper periodically ticks every in-progress run so state timeouts fire
// without participant activity.
type Sweeper struct {
	machine  *Machine
	interval time.Duration
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets the sweep period.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSweeper creates a Sweeper for m. It logs through m's logger.
func NewSweeper(m *Machine, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{machine: m, interval: DefaultSweepInterval, logger: m.logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Checked      int
	Transitioned int
	Failed       int
}

// Sweep ticks every in-progress run once at the machine's current time.
// Errors on individual runs are logged and counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ids, err := s.machine.repo.ListRuns(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		run, err := s.machine.repo.LoadRun(ctx, id)
		if errors.Is(err, domain.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		if run.Status != domain.RunInProgress {
			continue
		}
		res.Checked++

		out, err := s.machine.Tick(ctx, id, s.machine.now())
		switch {
		case errors.Is(err, domain.ErrStaleRun):
			// Finished between list and tick.
		case err != nil:
			res.Failed++
			s.logger.Warn("Sweep tick failed", "run_id", id, "err", err)
		case out.Transitioned:
			res.Transitioned++
		}
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Sweep failed", "err", err)
				continue
			}
			if res.Transitioned > 0 || res.Failed > 0 {
				s.logger.Info("Sweep done", "checked", res.Checked, "transitioned", res.Transitioned, "failed", res.Failed)
			}
		}
	}
}
