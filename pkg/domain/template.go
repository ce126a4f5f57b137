package domain

import (
	"sort"

	"github.com/google/uuid"
)

// Capability is a permission a role may hold.
type Capability string

const (
	CapCreate   Capability = "create"
	CapRead     Capability = "read"
	CapUpdate   Capability = "update"
	CapDelete   Capability = "delete"
	CapApprove  Capability = "approve"
	CapReject   Capability = "reject"
	CapUpload   Capability = "upload"
	CapComment  Capability = "comment"
	CapAssign   Capability = "assign"
	CapReview   Capability = "review"
	CapComplete Capability = "complete"
	CapArchive  Capability = "archive"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CapCreate, CapRead, CapUpdate, CapDelete, CapApprove, CapReject,
	CapUpload, CapComment, CapAssign, CapReview, CapComplete, CapArchive,
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Category is the business classification of a template.
type Category string

const (
	CategoryGeneral            Category = "general"
	CategoryServiceRequest     Category = "service_request"
	CategoryApprovalWorkflow   Category = "approval_workflow"
	CategoryEventCoordination  Category = "event_coordination"
	CategoryGroupPurchase      Category = "group_purchase"
	CategoryProjectManagement  Category = "project_management"
	CategoryContentReview      Category = "content_review"
	CategoryBookingReservation Category = "booking_reservation"
	CategorySupplyChain        Category = "supply_chain"
	CategoryCustomerSupport    Category = "customer_support"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryGeneral, CategoryServiceRequest, CategoryApprovalWorkflow, CategoryEventCoordination,
	CategoryGroupPurchase, CategoryProjectManagement, CategoryContentReview,
	CategoryBookingReservation, CategorySupplyChain, CategoryCustomerSupport,
}

// Complexity is a coarse size classification of a template.
type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityModerate   Complexity = "moderate"
	ComplexityComplex    Complexity = "complex"
	ComplexityEnterprise Complexity = "enterprise"
)

// Complexities lists every known complexity level.
var Complexities = []Complexity{ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityEnterprise}

// Role is a named participant category.
type Role struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	MinParticipants int            `json:"minParticipants"`
	MaxParticipants *int           `json:"maxParticipants,omitempty"` // nil means unbounded
	Capabilities    []Capability   `json:"capabilities"`
	Constraints     map[string]any `json:"constraints,omitempty"`
}

// Can reports whether the role holds the capability.
// A role that declares no capabilities is unrestricted.
func (r *Role) Can(c Capability) bool {
	if len(r.Capabilities) == 0 {
		return true
	}
	for _, held := range r.Capabilities {
		if held == c {
			return true
		}
	}
	return false
}

// State is a named workflow step.
type State struct {
	Name           string         `json:"name"`
	Kind           PhaseKind      `json:"phaseKind"`
	Description    string         `json:"description,omitempty"`
	Sequence       *int           `json:"sequence,omitempty"`
	RequiredSlots  []string       `json:"requiredSlots"`
	AllowedRoles   []string       `json:"allowedRoles"`
	Transitions    Transitions    `json:"transitions"`
	TimeoutMinutes *int           `json:"timeoutMinutes,omitempty"`
	UIHints        map[string]any `json:"uiHints,omitempty"`
}

// Allows reports whether role may act in the state.
// An empty AllowedRoles list admits every role.
func (s *State) Allows(role string) bool {
	return len(s.AllowedRoles) == 0 || contains(s.AllowedRoles, role)
}

// IsSink reports whether the state has no outgoing transitions.
func (s *State) IsSink() bool {
	return len(s.Transitions) == 0
}

// Template is a coordination workflow definition.
// Once sealed by the validator it must be treated as read-only.
type Template struct {
	ID                     string         `json:"id,omitempty"`
	Name                   string         `json:"name"`
	Description            string         `json:"description"`
	Version                string         `json:"version"`
	IsActive               bool           `json:"isActive"`
	Pattern                Pattern        `json:"pattern"`
	Roles                  []Role         `json:"roles"`
	States                 []State        `json:"states"`
	Slots                  []Slot         `json:"slots"`
	Category               Category       `json:"category"`
	Complexity             Complexity     `json:"complexity"`
	Tags                   []string       `json:"tags"`
	EstimatedDurationHours *int           `json:"estimatedDurationHours,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`

	sealed bool
}

// Seal marks the template as validated and assigns an ID if it has none.
// It is called by the validator once every check has passed.
func (t *Template) Seal() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.sealed = true
}

// Sealed reports whether the template passed validation.
func (t *Template) Sealed() bool {
	return t.sealed
}

// Role returns the role with the given name.
func (t *Template) Role(name string) (*Role, bool) {
	for i := range t.Roles {
		if t.Roles[i].Name == name {
			return &t.Roles[i], true
		}
	}
	return nil, false
}

// State returns the state with the given name.
func (t *Template) State(name string) (*State, bool) {
	for i := range t.States {
		if t.States[i].Name == name {
			return &t.States[i], true
		}
	}
	return nil, false
}

// Slot returns the slot with the given name.
func (t *Template) Slot(name string) (*Slot, bool) {
	for i := range t.Slots {
		if t.Slots[i].Name == name {
			return &t.Slots[i], true
		}
	}
	return nil, false
}

// Ordered returns the states sorted by sequence. States without a sequence
// keep their declaration order after the sequenced ones.
func (t *Template) Ordered() []*State {
	out := make([]*State, len(t.States))
	for i := range t.States {
		out[i] = &t.States[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Sequence, out[j].Sequence
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}

// First returns the start state (lowest sequence).
func (t *Template) First() (*State, bool) {
	ordered := t.Ordered()
	if len(ordered) == 0 {
		return nil, false
	}
	return ordered[0], true
}

// Timeout returns the effective timeout of a state in minutes: the state's
// own timeoutMinutes, else the timeout of its phase.
func (t *Template) Timeout(s *State) (int, bool) {
	if s.TimeoutMinutes != nil && *s.TimeoutMinutes > 0 {
		return *s.TimeoutMinutes, true
	}
	if phase := t.Pattern.Phase(s.Kind.Phase()); phase != nil && phase.Timeout != nil && *phase.Timeout > 0 {
		return *phase.Timeout, true
	}
	return 0, false
}
