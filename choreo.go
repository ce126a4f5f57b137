package choreo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/choreo/internal/logging"
	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/compiler"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/machine"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/validator"
)

// Engine is the high-level entry point for the choreo library.
// It wires a template compiler to a run state machine over one repository.
type Engine struct {
	compiler *compiler.Compiler
	machine  *machine.Machine
	repo     ports.Repository
	logger   *slog.Logger

	compilerOpts []compiler.Option
	machineOpts  []machine.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRepository sets the storage backend (default: in-memory).
func WithRepository(repo ports.Repository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.machineOpts = append(e.machineOpts, machine.WithHooks(hooks))
	}
}

// WithLocker serializes runs across processes sharing the repository.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.machineOpts = append(e.machineOpts, machine.WithLocker(locker))
		if ttl > 0 {
			e.machineOpts = append(e.machineOpts, machine.WithLockTTL(ttl))
		}
	}
}

// WithOutbound sets how state-entry messages are written and delivered.
// Either may be nil.
func WithOutbound(composer ports.MessageComposer, sender ports.NotificationSender, timeout time.Duration) Option {
	return func(e *Engine) {
		if composer != nil {
			e.machineOpts = append(e.machineOpts, machine.WithComposer(composer))
		}
		if sender != nil {
			e.machineOpts = append(e.machineOpts, machine.WithNotifier(sender))
		}
		if timeout > 0 {
			e.machineOpts = append(e.machineOpts, machine.WithOutboundTimeout(timeout))
		}
	}
}

// WithRegenerator enables one corrective regeneration pass on rejected templates.
func WithRegenerator(r compiler.Regenerator) Option {
	return func(e *Engine) {
		e.compilerOpts = append(e.compilerOpts, compiler.WithRegenerator(r))
	}
}

// WithCompileCache bounds the compiled-template cache. Zero disables it.
func WithCompileCache(size int) Option {
	return func(e *Engine) {
		e.compilerOpts = append(e.compilerOpts, compiler.WithCacheSize(size))
	}
}

// WithClock replaces time.Now for run timestamps and timeouts.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.machineOpts = append(e.machineOpts, machine.WithClock(clock))
	}
}

// New initializes a new Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.repo == nil {
		e.repo = memory.NewStore()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	c, err := compiler.New(append([]compiler.Option{compiler.WithLogger(e.logger)}, e.compilerOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}
	m, err := machine.New(e.repo, append([]machine.Option{machine.WithLogger(e.logger)}, e.machineOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create machine: %w", err)
	}
	e.compiler = c
	e.machine = m
	return e, nil
}

// Compile normalizes and validates a JSON or YAML template document.
func (e *Engine) Compile(ctx context.Context, raw []byte) (*compiler.Result, error) {
	return e.compiler.Compile(ctx, raw)
}

// Validate checks an already canonical JSON template without normalizing it.
// Unknown fields are rejected.
func (e *Engine) Validate(raw []byte) (*domain.Template, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var t domain.Template
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := validator.Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Publish compiles raw and stores the sealed template so runs can be started
// from its ID.
func (e *Engine) Publish(ctx context.Context, raw []byte) (*compiler.Result, error) {
	res, err := e.compiler.Compile(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := e.repo.SaveTemplate(ctx, res.Template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	e.logger.Info("Template published", "template_id", res.Template.ID, "name", res.Template.Name)
	return res, nil
}

// Start begins a run of the stored template templateID.
func (e *Engine) Start(ctx context.Context, templateID string, participants []domain.Participant) (*domain.Run, error) {
	return e.machine.StartTemplate(ctx, templateID, participants)
}

// StartTemplate begins a run of an in-memory sealed template, storing it first.
func (e *Engine) StartTemplate(ctx context.Context, t *domain.Template, participants []domain.Participant) (*domain.Run, error) {
	return e.machine.Start(ctx, t, participants)
}

// Submit applies a participant submission to a run.
func (e *Engine) Submit(ctx context.Context, sub machine.Submission) (*machine.Outcome, error) {
	return e.machine.Submit(ctx, sub)
}

// Tick fires elapsed timeouts of a run as of now.
func (e *Engine) Tick(ctx context.Context, runID string, now time.Time) (*machine.Outcome, error) {
	return e.machine.Tick(ctx, runID, now)
}

// Fail terminates a run with reason.
func (e *Engine) Fail(ctx context.Context, runID, reason string) (*domain.Run, error) {
	return e.machine.Fail(ctx, runID, reason)
}

// Run loads a run.
func (e *Engine) Run(ctx context.Context, runID string) (*domain.Run, error) {
	return e.machine.Run(ctx, runID)
}

// History lists the state visits of a run in entry order.
func (e *Engine) History(ctx context.Context, runID string) ([]*domain.RunState, error) {
	return e.machine.History(ctx, runID)
}

// Slots returns the slot values of a run visible to role.
func (e *Engine) Slots(ctx context.Context, runID, role string) (map[string]any, error) {
	return e.machine.Slots(ctx, runID, role)
}

// Sweeper returns a timeout sweeper over the engine's runs.
func (e *Engine) Sweeper(opts ...machine.SweeperOption) *machine.Sweeper {
	return machine.NewSweeper(e.machine, opts...)
}

// Machine exposes the underlying run state machine.
func (e *Engine) Machine() *machine.Machine {
	return e.machine
}

// Repository returns the storage backend.
func (e *Engine) Repository() ports.Repository {
	return e.repo
}
