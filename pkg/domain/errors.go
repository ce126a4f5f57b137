package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrAuthorization     = errors.New("not authorized")
	ErrUnknownSlot       = errors.New("unknown slot")
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownState      = errors.New("unknown state")
	ErrStaleRun          = errors.New("stale run")
	ErrTemplateNotReady  = errors.New("template not ready")
	ErrTimeoutResolution = errors.New("ambiguous transition at runtime")
	ErrValidation        = errors.New("template validation failed")
	ErrInvalidSlotValue  = errors.New("invalid slot value")
	ErrBranchRequired    = errors.New("transition branch required")
	ErrParticipants      = errors.New("participant bounds violated")

	// ErrRunNotFound is returned when a run ID cannot be found in the repository.
	ErrRunNotFound = errors.New("run not found")
	// ErrTemplateNotFound is returned when a template ID cannot be found in the repository.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrRunStateNotFound is returned when a run state ID cannot be found in the repository.
	ErrRunStateNotFound = errors.New("run state not found")
)

// Error codes exposed to callers for serialization.
const (
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeSchemaFailed  = "SCHEMA_VALIDATION_FAILED"
	CodeInvalidConfig = "INVALID_CONFIGURATION"
)

// Code returns the stable error code of err, or "UNKNOWN".
func Code(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrRunStateNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeSchemaFailed
	case errors.Is(err, ErrInvalidSlotValue), errors.Is(err, ErrBranchRequired), errors.Is(err, ErrParticipants):
		return CodeInvalidInput
	}
	return "UNKNOWN"
}

// AuthorizationError reports a role acting outside its permissions.
type AuthorizationError struct {
	Role   string
	Action string // e.g. "edit slot \"rating\"", "act in state \"review\""
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q is not allowed to %s", e.Role, e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }
func (e *AuthorizationError) Code() string         { return CodeForbidden }

// UnknownSlotError reports a reference to an undeclared slot.
type UnknownSlotError struct {
	Slot string
}

func (e *UnknownSlotError) Error() string {
	return fmt.Sprintf("slot %q is not declared on the template", e.Slot)
}

func (e *UnknownSlotError) Is(target error) bool { return target == ErrUnknownSlot }
func (e *UnknownSlotError) Code() string         { return CodeNotFound }

// UnknownRoleError reports a reference to an undeclared role.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("role %q is not declared on the template", e.Role)
}

func (e *UnknownRoleError) Is(target error) bool { return target == ErrUnknownRole }
func (e *UnknownRoleError) Code() string         { return CodeNotFound }

// UnknownStateError reports a reference to an undeclared state.
type UnknownStateError struct {
	State string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("state %q is not declared on the template", e.State)
}

func (e *UnknownStateError) Is(target error) bool { return target == ErrUnknownState }
func (e *UnknownStateError) Code() string         { return CodeNotFound }

// StaleRunError reports an operation against a terminal or already-advanced run.
type StaleRunError struct {
	RunID  string
	Status RunStatus
}

func (e *StaleRunError) Error() string {
	return fmt.Sprintf("run %s is %s", e.RunID, e.Status)
}

func (e *StaleRunError) Is(target error) bool { return target == ErrStaleRun }
func (e *StaleRunError) Code() string         { return CodeConflict }

// TemplateNotReadyError reports an attempt to start a run from an unvalidated template.
type TemplateNotReadyError struct {
	Template string
	Reason   string
}

func (e *TemplateNotReadyError) Error() string {
	return fmt.Sprintf("template %q is not ready: %s", e.Template, e.Reason)
}

func (e *TemplateNotReadyError) Is(target error) bool { return target == ErrTemplateNotReady }
func (e *TemplateNotReadyError) Code() string         { return CodeInvalidConfig }

// TimeoutResolutionError reports a multi-target transition without a
// disambiguator reaching runtime. It is a template defect and fails the run.
type TimeoutResolutionError struct {
	State     string
	Condition Condition
	Targets   Targets
}

func (e *TimeoutResolutionError) Error() string {
	return fmt.Sprintf("state %q: %s transition has %d targets %v and no branch", e.State, e.Condition, len(e.Targets), []string(e.Targets))
}

func (e *TimeoutResolutionError) Is(target error) bool { return target == ErrTimeoutResolution }
func (e *TimeoutResolutionError) Code() string         { return CodeInvalidConfig }
