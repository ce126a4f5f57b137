package dsl

import "github.com/aretw0/choreo/pkg/domain"

// RoleBuilder provides a fluent API for configuring a role.
type RoleBuilder struct {
	role domain.Role
}

// Describe sets the role description.
func (r *RoleBuilder) Describe(text string) *RoleBuilder {
	r.role.Description = text
	return r
}

// Min sets the minimum number of participants.
func (r *RoleBuilder) Min(n int) *RoleBuilder {
	r.role.MinParticipants = n
	return r
}

// Max bounds the number of participants.
func (r *RoleBuilder) Max(n int) *RoleBuilder {
	r.role.MaxParticipants = &n
	return r
}

// Can grants capabilities. A role without capabilities is unrestricted.
func (r *RoleBuilder) Can(caps ...domain.Capability) *RoleBuilder {
	r.role.Capabilities = append(r.role.Capabilities, caps...)
	return r
}

// SlotBuilder provides a fluent API for configuring a slot.
type SlotBuilder struct {
	slot domain.Slot
}

// Describe sets the slot description.
func (s *SlotBuilder) Describe(text string) *SlotBuilder {
	s.slot.Description = text
	return s
}

// Required marks the slot as required.
func (s *SlotBuilder) Required() *SlotBuilder {
	s.slot.Required = true
	return s
}

// Default sets the default value.
func (s *SlotBuilder) Default(v any) *SlotBuilder {
	s.slot.DefaultValue = v
	return s
}

// Rule adds a validation rule.
func (s *SlotBuilder) Rule(key string, value any) *SlotBuilder {
	if s.slot.Validation == nil {
		s.slot.Validation = make(map[string]any)
	}
	s.slot.Validation[key] = value
	return s
}

// Options restricts select and multiselect values.
func (s *SlotBuilder) Options(options ...string) *SlotBuilder {
	return s.Rule("options", options)
}

// VisibleTo restricts which roles may read the slot.
func (s *SlotBuilder) VisibleTo(roles ...string) *SlotBuilder {
	s.slot.Visibility = append(s.slot.Visibility, roles...)
	return s
}

// EditableBy restricts which roles may write the slot.
func (s *SlotBuilder) EditableBy(roles ...string) *SlotBuilder {
	s.slot.Editable = append(s.slot.Editable, roles...)
	return s
}

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state domain.State
}

// Describe sets the state description.
func (s *StateBuilder) Describe(text string) *StateBuilder {
	s.state.Description = text
	return s
}

// Require adds required slots.
func (s *StateBuilder) Require(slots ...string) *StateBuilder {
	s.state.RequiredSlots = append(s.state.RequiredSlots, slots...)
	return s
}

// Allow restricts which roles may act in the state.
func (s *StateBuilder) Allow(roles ...string) *StateBuilder {
	s.state.AllowedRoles = append(s.state.AllowedRoles, roles...)
	return s
}

// Go adds an unconditional transition, taken once every required slot is filled.
func (s *StateBuilder) Go(target string) *StateBuilder {
	return s.On(domain.ConditionAlways, target)
}

// On adds a conditional transition. Several targets for the same event form
// a branch chosen by the caller.
func (s *StateBuilder) On(cond domain.Condition, targets ...string) *StateBuilder {
	s.state.Transitions[cond] = append(s.state.Transitions[cond], targets...)
	return s
}

// Timeout sets the state timeout and the state to move to when it elapses.
func (s *StateBuilder) Timeout(minutes int, target string) *StateBuilder {
	s.state.TimeoutMinutes = &minutes
	return s.On(domain.ConditionTimeout, target)
}

// Hint attaches a presentation hint.
func (s *StateBuilder) Hint(key string, value any) *StateBuilder {
	if s.state.UIHints == nil {
		s.state.UIHints = make(map[string]any)
	}
	s.state.UIHints[key] = value
	return s
}
