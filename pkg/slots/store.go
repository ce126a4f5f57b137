// Package slots reads and writes the slot values of a run, enforcing slot
// visibility, edit permissions and value types.
package slots

import (
	"context"
	"fmt"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/schema"
)

// Store is the SlotStore. It holds no state of its own; values live in the
// open RunState of the repository.
type Store struct {
	repo ports.Repository
}

// New creates a Store backed by repo.
func New(repo ports.Repository) *Store {
	return &Store{repo: repo}
}

// Values returns every slot value of the run, merged across its visits in
// entry order so later writes win. It applies no visibility filter.
func (s *Store) Values(ctx context.Context, runID string) (map[string]any, error) {
	visits, err := s.repo.ListRunStates(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, rs := range visits {
		for k, v := range rs.SlotData {
			out[k] = v
		}
	}
	return out, nil
}

// Get returns the run's slot values visible to role.
func (s *Store) Get(ctx context.Context, t *domain.Template, runID, role string) (map[string]any, error) {
	if _, ok := t.Role(role); !ok {
		return nil, &domain.UnknownRoleError{Role: role}
	}
	all, err := s.Values(ctx, runID)
	if err != nil {
		return nil, err
	}
	return Visible(t, all, role), nil
}

// Visible filters values down to the slots role may read. Values for slots
// the template does not declare are dropped.
func Visible(t *domain.Template, values map[string]any, role string) map[string]any {
	out := make(map[string]any, len(values))
	for name, v := range values {
		slot, ok := t.Slot(name)
		if !ok || !slot.VisibleTo(role) {
			continue
		}
		out[name] = v
	}
	return out
}

// Check reports whether role may write value into slot name while the run
// sits in state. It performs no I/O.
func Check(t *domain.Template, state *domain.State, name string, value any, role string) error {
	slot, ok := t.Slot(name)
	if !ok {
		return &domain.UnknownSlotError{Slot: name}
	}
	if _, ok := t.Role(role); !ok {
		return &domain.UnknownRoleError{Role: role}
	}
	if !state.Allows(role) {
		return &domain.AuthorizationError{Role: role, Action: fmt.Sprintf("act in state %q", state.Name)}
	}
	if len(slot.Editable) > 0 && !contains(slot.Editable, role) {
		return &domain.AuthorizationError{Role: role, Action: fmt.Sprintf("edit slot %q", name)}
	}
	if value == nil {
		return fmt.Errorf("slot %q: %w: value is required", name, domain.ErrInvalidSlotValue)
	}
	sch := schema.Schema{name: schema.ForSlot(slot)}
	if err := schema.ValidateFields(sch, map[string]any{name: value}, name); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSlotValue, err)
	}
	return nil
}

// Put writes a single slot of the run's open visit. Only that slot's field is
// touched, so concurrent writers to different slots do not lose updates.
func (s *Store) Put(ctx context.Context, t *domain.Template, run *domain.Run, name string, value any, role string) error {
	if run.Status.Terminal() || run.OpenRunStateID == "" {
		return &domain.StaleRunError{RunID: run.ID, Status: run.Status}
	}
	state, ok := t.State(run.CurrentStateID)
	if !ok {
		return &domain.UnknownStateError{State: run.CurrentStateID}
	}
	if err := Check(t, state, name, value, role); err != nil {
		return err
	}
	return s.repo.PutSlot(ctx, run.OpenRunStateID, name, value)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
