// Package machine drives coordination runs through the states of their
// template.
//
// Every mutation of a run (Start aside) happens under the run's lock. Hooks
// and participant notifications are issued after the lock is released, so a
// slow composer or sender never stalls other participants.
package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aretw0/choreo/internal/logging"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/session"
	"github.com/aretw0/choreo/pkg/slots"
	"github.com/aretw0/choreo/pkg/validator"
)

// Machine is the RunStateMachine.
type Machine struct {
	repo  ports.Repository
	slots *slots.Store
	locks *session.Manager

	clock           func() time.Time
	logger          *slog.Logger
	hooks           domain.LifecycleHooks
	composer        ports.MessageComposer
	notifier        ports.NotificationSender
	outboundTimeout time.Duration

	cacheSize int
	templates *lru.Cache[string, *domain.Template]
	lockOpts  []session.Option
}

// New creates a Machine persisting through repo.
func New(repo ports.Repository, opts ...Option) (*Machine, error) {
	if repo == nil {
		return nil, errors.New("machine: repository is required")
	}
	m := &Machine{
		repo:            repo,
		slots:           slots.New(repo),
		clock:           time.Now,
		logger:          logging.NewNop(),
		outboundTimeout: DefaultOutboundTimeout,
		cacheSize:       DefaultTemplateCacheSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.locks = session.NewManager(append(m.lockOpts, session.WithLogger(m.logger))...)

	cache, err := lru.New[string, *domain.Template](m.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("machine: template cache: %w", err)
	}
	m.templates = cache
	return m, nil
}

// Repository returns the repository the machine persists to.
func (m *Machine) Repository() ports.Repository {
	return m.repo
}

func (m *Machine) now() time.Time {
	return m.clock().UTC()
}

// template returns the sealed template with the given ID. Templates read back
// from storage are re-validated before use.
func (m *Machine) template(ctx context.Context, id string) (*domain.Template, error) {
	if t, ok := m.templates.Get(id); ok {
		return t, nil
	}
	t, err := m.repo.LoadTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Sealed() {
		if err := validator.Seal(t); err != nil {
			return nil, &domain.TemplateNotReadyError{Template: id, Reason: err.Error()}
		}
	}
	m.templates.Add(id, t)
	return t, nil
}

// Run returns the current snapshot of a run.
func (m *Machine) Run(ctx context.Context, runID string) (*domain.Run, error) {
	return m.repo.LoadRun(ctx, runID)
}

// History returns every visit of the run in entry order.
func (m *Machine) History(ctx context.Context, runID string) ([]*domain.RunState, error) {
	if _, err := m.repo.LoadRun(ctx, runID); err != nil {
		return nil, err
	}
	return m.repo.ListRunStates(ctx, runID)
}

// Slots returns the slot values of the run visible to role.
func (m *Machine) Slots(ctx context.Context, runID, role string) (map[string]any, error) {
	run, err := m.repo.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	t, err := m.template(ctx, run.TemplateID)
	if err != nil {
		return nil, err
	}
	return m.slots.Get(ctx, t, runID, role)
}

// Template returns the sealed template of a run.
func (m *Machine) Template(ctx context.Context, runID string) (*domain.Template, error) {
	run, err := m.repo.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return m.template(ctx, run.TemplateID)
}
