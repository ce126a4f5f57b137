package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/slots"
	"github.com/aretw0/choreo/pkg/transition"
)

// Submission is a participant action against a run: a slot write, a raised
// event, or both.
type Submission struct {
	RunID string
	Role  string

	Slot  string
	Value any

	// Event is approved, rejected or manual.
	Event domain.Condition
	// Branch picks one target of a multi-target event transition.
	Branch string

	// ExpectState, when set, turns the call into a no-op if the run has
	// already left that state.
	ExpectState string
}

// Outcome reports what a call did to the run.
type Outcome struct {
	Run *domain.Run

	Transitioned bool
	From         string
	// To is empty when the run completed instead of entering a state.
	To        string
	Condition domain.Condition

	// Stale is set when ExpectState no longer matched and nothing happened.
	Stale bool
}

// Start creates a run of a sealed template and opens its first state.
func (m *Machine) Start(ctx context.Context, t *domain.Template, participants []domain.Participant) (*domain.Run, error) {
	if t == nil || !t.Sealed() {
		name := ""
		if t != nil {
			name = t.Name
		}
		return nil, &domain.TemplateNotReadyError{Template: name, Reason: "template has not been validated"}
	}
	first, ok := t.First()
	if !ok {
		return nil, &domain.TemplateNotReadyError{Template: t.Name, Reason: "template has no states"}
	}
	bound, err := bindParticipants(t, participants)
	if err != nil {
		return nil, err
	}

	if err := m.repo.SaveTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	m.templates.Add(t.ID, t)

	now := m.now()
	run := &domain.Run{
		ID:           uuid.NewString(),
		TemplateID:   t.ID,
		Status:       domain.RunPending,
		Participants: bound,
		CreatedAt:    now,
	}
	if err := m.repo.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	fx := &effects{}
	err = m.locks.WithLock(ctx, run.ID, func(ctx context.Context) error {
		run.Status = domain.RunInProgress
		fx.runStart = &domain.RunEvent{
			EventBase:  domain.EventBase{Timestamp: now, Type: domain.EventRunStart, RunID: run.ID},
			TemplateID: t.ID,
			Status:     domain.RunInProgress,
		}
		return m.enter(ctx, t, run, first, now, fx)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Run started", "run_id", run.ID, "template", t.Name, "state", run.CurrentStateID)
	m.fire(ctx, t, run, fx)
	return run.Clone(), nil
}

// StartTemplate starts a run of a stored template.
func (m *Machine) StartTemplate(ctx context.Context, templateID string, participants []domain.Participant) (*domain.Run, error) {
	t, err := m.template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return m.Start(ctx, t, participants)
}

// bindParticipants checks roles and bounds, and fills missing IDs and tokens.
func bindParticipants(t *domain.Template, in []domain.Participant) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0, len(in))
	counts := make(map[string]int)
	seen := make(map[string]bool)
	for _, p := range in {
		if _, ok := t.Role(p.Role); !ok {
			return nil, &domain.UnknownRoleError{Role: p.Role}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("participant %q listed twice: %w", p.ID, domain.ErrParticipants)
		}
		seen[p.ID] = true
		if p.Token == "" {
			p.Token = uuid.NewString()
		}
		counts[p.Role]++
		out = append(out, p)
	}
	for _, role := range t.Roles {
		n := counts[role.Name]
		if n < role.MinParticipants {
			return nil, fmt.Errorf("role %q needs at least %d participants, got %d: %w", role.Name, role.MinParticipants, n, domain.ErrParticipants)
		}
		if role.MaxParticipants != nil && n > *role.MaxParticipants {
			return nil, fmt.Errorf("role %q allows at most %d participants, got %d: %w", role.Name, *role.MaxParticipants, n, domain.ErrParticipants)
		}
	}
	return out, nil
}

// SubmitSlot writes a slot value as role and advances the run if a
// transition resolves.
func (m *Machine) SubmitSlot(ctx context.Context, runID, slot string, value any, role string) (*Outcome, error) {
	return m.Submit(ctx, Submission{RunID: runID, Slot: slot, Value: value, Role: role})
}

// Raise raises an event condition as role.
func (m *Machine) Raise(ctx context.Context, runID, role string, event domain.Condition, branch string) (*Outcome, error) {
	return m.Submit(ctx, Submission{RunID: runID, Role: role, Event: event, Branch: branch})
}

// Submit applies a participant action. A rejected action leaves the run
// untouched: nothing is written unless every check passed.
func (m *Machine) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	if sub.Slot == "" && sub.Event == "" {
		return nil, fmt.Errorf("submission needs a slot or an event: %w", domain.ErrInvalidSlotValue)
	}

	var (
		t   *domain.Template
		out *Outcome
		fx  = &effects{}
	)
	err := m.locks.WithLock(ctx, sub.RunID, func(ctx context.Context) error {
		run, err := m.activeRun(ctx, sub.RunID)
		if err != nil {
			return err
		}
		out = &Outcome{Run: run, From: run.CurrentStateID}
		if sub.ExpectState != "" && sub.ExpectState != run.CurrentStateID {
			out.Stale = true
			return nil
		}
		if t, err = m.template(ctx, run.TemplateID); err != nil {
			return err
		}
		state, ok := t.State(run.CurrentStateID)
		if !ok {
			return &domain.UnknownStateError{State: run.CurrentStateID}
		}
		if err := authorizeEvent(t, state, sub.Role, sub.Event); err != nil {
			return err
		}

		rs, err := m.repo.LoadRunState(ctx, run.OpenRunStateID)
		if err != nil {
			return fmt.Errorf("failed to load open state: %w", err)
		}
		data := rs.Clone().SlotData
		if sub.Slot != "" {
			if err := slots.Check(t, state, sub.Slot, sub.Value, sub.Role); err != nil {
				return err
			}
			data[sub.Slot] = sub.Value
		}

		now := m.now()
		decision, ok, evalErr := transition.Evaluate(state, transition.Input{
			Event:    sub.Event,
			Branch:   sub.Branch,
			TimedOut: m.timedOut(t, state, rs, now),
			Slots:    data,
		})
		if evalErr != nil && !errors.Is(evalErr, domain.ErrTimeoutResolution) {
			return evalErr
		}

		if sub.Slot != "" {
			if err := m.slots.Put(ctx, t, run, sub.Slot, sub.Value, sub.Role); err != nil {
				return err
			}
			fx.slot = &domain.SlotEvent{
				EventBase: domain.EventBase{Timestamp: now, Type: domain.EventSlotWrite, RunID: run.ID},
				StateID:   state.Name,
				Slot:      sub.Slot,
				Role:      sub.Role,
			}
		}

		if evalErr != nil {
			m.logger.Error("Template defect reached runtime, failing run", "run_id", run.ID, "err", evalErr)
			if err := m.terminate(ctx, t, run, evalErr.Error(), now, fx); err != nil {
				return err
			}
			return evalErr
		}
		if ok {
			return m.advance(ctx, t, run, state, decision, now, fx, out)
		}
		return nil
	})
	if out != nil && out.Run != nil {
		out.Run = out.Run.Clone()
	}
	if t != nil {
		m.fire(ctx, t, out.Run, fx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// authorizeEvent enforces who may raise which condition.
func authorizeEvent(t *domain.Template, state *domain.State, role string, event domain.Condition) error {
	if event == "" {
		return nil
	}
	r, ok := t.Role(role)
	if !ok {
		return &domain.UnknownRoleError{Role: role}
	}
	if !event.IsEvent() {
		return &domain.AuthorizationError{Role: role, Action: fmt.Sprintf("raise %q", event)}
	}
	if !state.Allows(role) {
		return &domain.AuthorizationError{Role: role, Action: fmt.Sprintf("act in state %q", state.Name)}
	}
	switch event {
	case domain.ConditionApproved:
		if !r.Can(domain.CapApprove) {
			return &domain.AuthorizationError{Role: role, Action: "approve"}
		}
	case domain.ConditionRejected:
		if !r.Can(domain.CapReject) {
			return &domain.AuthorizationError{Role: role, Action: "reject"}
		}
	}
	return nil
}

// Tick evaluates the state timeout of a run at now and advances it if a
// transition resolves.
func (m *Machine) Tick(ctx context.Context, runID string, now time.Time) (*Outcome, error) {
	var (
		t   *domain.Template
		out *Outcome
		fx  = &effects{}
	)
	now = now.UTC()
	err := m.locks.WithLock(ctx, runID, func(ctx context.Context) error {
		run, err := m.activeRun(ctx, runID)
		if err != nil {
			return err
		}
		out = &Outcome{Run: run, From: run.CurrentStateID}
		if t, err = m.template(ctx, run.TemplateID); err != nil {
			return err
		}
		state, ok := t.State(run.CurrentStateID)
		if !ok {
			return &domain.UnknownStateError{State: run.CurrentStateID}
		}
		rs, err := m.repo.LoadRunState(ctx, run.OpenRunStateID)
		if err != nil {
			return fmt.Errorf("failed to load open state: %w", err)
		}

		decision, ok, err := transition.Evaluate(state, transition.Input{
			TimedOut: m.timedOut(t, state, rs, now),
			Slots:    rs.SlotData,
		})
		if err != nil {
			m.logger.Error("Template defect reached runtime, failing run", "run_id", run.ID, "err", err)
			if ferr := m.terminate(ctx, t, run, err.Error(), now, fx); ferr != nil {
				return ferr
			}
			return err
		}
		if !ok {
			return nil
		}
		return m.advance(ctx, t, run, state, decision, now, fx, out)
	})
	if out != nil && out.Run != nil {
		out.Run = out.Run.Clone()
	}
	if t != nil {
		m.fire(ctx, t, out.Run, fx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fail terminates a run. The open visit is closed and later writes fail with
// a StaleRunError.
func (m *Machine) Fail(ctx context.Context, runID, reason string) (*domain.Run, error) {
	var (
		t   *domain.Template
		run *domain.Run
		fx  = &effects{}
	)
	err := m.locks.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		if run, err = m.activeRun(ctx, runID); err != nil {
			return err
		}
		if t, err = m.template(ctx, run.TemplateID); err != nil {
			return err
		}
		return m.terminate(ctx, t, run, reason, m.now(), fx)
	})
	if err != nil {
		return nil, err
	}
	m.fire(ctx, t, run, fx)
	return run.Clone(), nil
}

// activeRun loads a run and rejects terminal ones.
func (m *Machine) activeRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.repo.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() || run.OpenRunStateID == "" {
		return nil, &domain.StaleRunError{RunID: run.ID, Status: run.Status}
	}
	return run, nil
}

// timedOut reports whether the state's effective timeout has elapsed for
// the open visit.
func (m *Machine) timedOut(t *domain.Template, state *domain.State, rs *domain.RunState, now time.Time) bool {
	minutes, ok := t.Timeout(state)
	if !ok {
		return false
	}
	return !now.Before(rs.EnteredAt.Add(time.Duration(minutes) * time.Minute))
}
