package machine

import (
	"context"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/slots"
	"github.com/aretw0/choreo/pkg/transition"
)

// effects collects what a locked step wants to announce once the lock is
// released.
type effects struct {
	runStart *domain.RunEvent
	slot     *domain.SlotEvent
	exits    []*domain.StateEvent
	enters   []*domain.StateEvent
	finish   *domain.RunEvent
	// entered is the state participants must be prompted for, if any.
	entered *domain.State
}

func (m *Machine) fire(ctx context.Context, t *domain.Template, run *domain.Run, fx *effects) {
	h := m.hooks
	if fx.runStart != nil && h.OnRunStart != nil {
		h.OnRunStart(ctx, fx.runStart)
	}
	if fx.slot != nil && h.OnSlotWrite != nil {
		h.OnSlotWrite(ctx, fx.slot)
	}
	for _, ev := range fx.exits {
		if h.OnStateExit != nil {
			h.OnStateExit(ctx, ev)
		}
	}
	for _, ev := range fx.enters {
		if h.OnStateEnter != nil {
			h.OnStateEnter(ctx, ev)
		}
	}
	if fx.finish != nil && h.OnRunFinish != nil {
		h.OnRunFinish(ctx, fx.finish)
	}

	if fx.entered != nil && run != nil && !run.Status.Terminal() {
		m.notify(ctx, t, run, fx.entered)
	}
}

// notify composes and sends one message per participant allowed to act in
// state. Failures are logged and never surface to the caller.
func (m *Machine) notify(ctx context.Context, t *domain.Template, run *domain.Run, state *domain.State) {
	if m.composer == nil || m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.outboundTimeout)
	defer cancel()

	values, err := m.slots.Values(ctx, run.ID)
	if err != nil {
		m.logger.Warn("Failed to read slots for prompts", "run_id", run.ID, "err", err)
		return
	}
	missing := transition.Missing(state, nil)

	for _, p := range run.Participants {
		if !state.Allows(p.Role) {
			continue
		}
		rc := ports.RoleContext{
			TemplateName: t.Name,
			Participant:  p,
			State:        state.Name,
			Kind:         state.Kind,
			Description:  state.Description,
			Slots:        slots.Visible(t, values, p.Role),
			Missing:      missing,
		}
		msg, err := m.composer.Compose(ctx, run.ID, rc)
		if err != nil {
			m.logger.Warn("Failed to compose message", "run_id", run.ID, "participant", p.ID, "err", err)
			continue
		}
		id, err := m.notifier.Send(ctx, p.ID, msg, ports.SendOptions{RunID: run.ID, StateID: state.Name, Token: p.Token})
		if err != nil {
			m.logger.Warn("Failed to send message", "run_id", run.ID, "participant", p.ID, "err", err)
			continue
		}
		m.logger.Debug("Message sent", "run_id", run.ID, "participant", p.ID, "delivery_id", id)
	}
}
