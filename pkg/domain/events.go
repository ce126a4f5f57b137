package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart   EventType = "run_start"
	EventStateEnter EventType = "state_enter"
	EventStateExit  EventType = "state_exit"
	EventSlotWrite  EventType = "slot_write"
	EventRunFinish  EventType = "run_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent represents a run starting or reaching a terminal status.
type RunEvent struct {
	EventBase
	TemplateID string    `json:"template_id"`
	Status     RunStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
}

// StateEvent represents entry into or exit from a state.
type StateEvent struct {
	EventBase
	StateID   string    `json:"state_id"`
	Kind      PhaseKind `json:"phase_kind"`
	Condition Condition `json:"condition,omitempty"` // set on exit
}

// SlotEvent represents a slot write.
type SlotEvent struct {
	EventBase
	StateID string `json:"state_id"`
	Slot    string `json:"slot"`
	Role    string `json:"role"`
}

// LifecycleHooks defines callbacks for run observability.
// Hooks are invoked after the run lock has been released.
type LifecycleHooks struct {
	OnRunStart   func(context.Context, *RunEvent)
	OnStateEnter func(context.Context, *StateEvent)
	OnStateExit  func(context.Context, *StateEvent)
	OnSlotWrite  func(context.Context, *SlotEvent)
	OnRunFinish  func(context.Context, *RunEvent)
}
