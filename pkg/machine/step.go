package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/transition"
)

// The steps below run under the run lock. Close happens before append, so at
// no instant does a run have two open visits.

// advance leaves state according to d.
func (m *Machine) advance(ctx context.Context, t *domain.Template, run *domain.Run, state *domain.State, d transition.Decision, now time.Time, fx *effects, out *Outcome) error {
	var next *domain.State
	if !d.Complete {
		var ok bool
		if next, ok = t.State(d.Next); !ok {
			return &domain.UnknownStateError{State: d.Next}
		}
	}
	if err := m.leave(ctx, run, state, d.Condition, now, fx); err != nil {
		return err
	}

	out.Transitioned = true
	out.Condition = d.Condition
	m.logger.Debug("Transition", "run_id", run.ID, "from", state.Name, "to", d.Next, "condition", d.Condition)

	if next == nil {
		return m.complete(ctx, run, now, fx)
	}
	out.To = next.Name
	return m.enter(ctx, t, run, next, now, fx)
}

// enter opens a visit of state and persists the run pointing at it.
func (m *Machine) enter(ctx context.Context, t *domain.Template, run *domain.Run, state *domain.State, now time.Time, fx *effects) error {
	rs := &domain.RunState{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		StateID:   state.Name,
		SlotData:  map[string]any{},
		EnteredAt: now,
	}
	if err := m.repo.AppendRunState(ctx, rs); err != nil {
		err = fmt.Errorf("failed to open state %q: %w", state.Name, err)
		m.abandon(ctx, run, "", err, now, fx)
		return err
	}
	run.CurrentStateID = state.Name
	run.OpenRunStateID = rs.ID
	if err := m.repo.SaveRun(ctx, run); err != nil {
		err = fmt.Errorf("failed to save run: %w", err)
		m.abandon(ctx, run, rs.ID, err, now, fx)
		return err
	}
	fx.enters = append(fx.enters, stateEvent(domain.EventStateEnter, run.ID, state, "", now))
	fx.entered = state

	if autoCompletes(t, state) {
		m.logger.Debug("Auto-completing run", "run_id", run.ID, "state", state.Name)
		if err := m.leave(ctx, run, state, domain.ConditionAlways, now, fx); err != nil {
			return err
		}
		return m.complete(ctx, run, now, fx)
	}
	return nil
}

// leave closes the open visit after checking the run was not finished or
// advanced behind our back.
func (m *Machine) leave(ctx context.Context, run *domain.Run, state *domain.State, cond domain.Condition, now time.Time, fx *effects) error {
	fresh, err := m.repo.LoadRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if fresh.Status.Terminal() || fresh.OpenRunStateID != run.OpenRunStateID {
		return &domain.StaleRunError{RunID: run.ID, Status: fresh.Status}
	}
	if err := m.repo.CloseRunState(ctx, run.OpenRunStateID, now); err != nil {
		return fmt.Errorf("failed to close state %q: %w", state.Name, err)
	}
	run.OpenRunStateID = ""
	fx.exits = append(fx.exits, stateEvent(domain.EventStateExit, run.ID, state, cond, now))
	fx.entered = nil
	return nil
}

func (m *Machine) complete(ctx context.Context, run *domain.Run, now time.Time, fx *effects) error {
	run.Status = domain.RunCompleted
	run.CompletedAt = &now
	if err := m.repo.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	fx.finish = runEvent(run, now)
	m.logger.Info("Run completed", "run_id", run.ID)
	return nil
}

// terminate fails the run from whatever state it is in.
func (m *Machine) terminate(ctx context.Context, t *domain.Template, run *domain.Run, reason string, now time.Time, fx *effects) error {
	state, ok := t.State(run.CurrentStateID)
	if !ok {
		state = &domain.State{Name: run.CurrentStateID}
	}
	if err := m.leave(ctx, run, state, "", now, fx); err != nil {
		return err
	}
	run.Status = domain.RunFailed
	run.FailureReason = reason
	run.CompletedAt = &now
	if err := m.repo.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	fx.finish = runEvent(run, now)
	m.logger.Info("Run failed", "run_id", run.ID, "reason", reason)
	return nil
}

// abandon fails a run whose transition broke between closing one visit and
// recording the next, so it is not left pointing at a closed visit. openID
// is a visit opened by the broken transition, if any.
func (m *Machine) abandon(ctx context.Context, run *domain.Run, openID string, cause error, now time.Time, fx *effects) {
	if openID != "" {
		if err := m.repo.CloseRunState(ctx, openID, now); err != nil {
			m.logger.Error("Failed to close orphaned state", "run_id", run.ID, "run_state_id", openID, "err", err)
		}
	}
	run.Status = domain.RunFailed
	run.FailureReason = cause.Error()
	run.OpenRunStateID = ""
	run.CompletedAt = &now
	if err := m.repo.SaveRun(ctx, run); err != nil {
		m.logger.Error("Failed to mark run as failed", "run_id", run.ID, "cause", cause, "err", err)
		return
	}
	fx.finish = runEvent(run, now)
	m.logger.Error("Run failed during transition", "run_id", run.ID, "state", run.CurrentStateID, "err", cause)
}

// autoCompletes reports whether entering state ends the run immediately:
// a signoff sink with nothing to collect under confirm.autoComplete.
func autoCompletes(t *domain.Template, state *domain.State) bool {
	return t.Pattern.Confirm.AutoComplete &&
		state.Kind == domain.KindSignoff &&
		state.IsSink() &&
		len(state.RequiredSlots) == 0
}

func stateEvent(typ domain.EventType, runID string, state *domain.State, cond domain.Condition, now time.Time) *domain.StateEvent {
	return &domain.StateEvent{
		EventBase: domain.EventBase{Timestamp: now, Type: typ, RunID: runID},
		StateID:   state.Name,
		Kind:      state.Kind,
		Condition: cond,
	}
}

func runEvent(run *domain.Run, now time.Time) *domain.RunEvent {
	return &domain.RunEvent{
		EventBase:  domain.EventBase{Timestamp: now, Type: domain.EventRunFinish, RunID: run.ID},
		TemplateID: run.TemplateID,
		Status:     run.Status,
		Reason:     run.FailureReason,
	}
}
