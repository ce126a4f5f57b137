package dsl

import (
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/validator"
)

// Builder manages the template construction.
type Builder struct {
	tmpl   domain.Template
	roles  []*RoleBuilder
	slots  []*SlotBuilder
	states []*StateBuilder
}

// New creates a template builder. The pattern starts with every phase
// enabled and evidence requiring proof.
func New(name string) *Builder {
	b := &Builder{tmpl: domain.Template{
		Name:     name,
		Version:  "1.0",
		IsActive: true,
		Category: domain.CategoryGeneral,
		Tags:     []string{},
	}}
	for _, phase := range domain.Phases {
		b.tmpl.Pattern.Phase(phase).Enabled = true
	}
	b.tmpl.Pattern.Evidence.RequireProof = true
	return b
}

// ID fixes the template identifier instead of generating one when sealed.
func (b *Builder) ID(id string) *Builder {
	b.tmpl.ID = id
	return b
}

// Describe sets the template description.
func (b *Builder) Describe(text string) *Builder {
	b.tmpl.Description = text
	return b
}

// Version sets the template version.
func (b *Builder) Version(v string) *Builder {
	b.tmpl.Version = v
	return b
}

// Category sets the business category.
func (b *Builder) Category(c domain.Category) *Builder {
	b.tmpl.Category = c
	return b
}

// Tags appends tags.
func (b *Builder) Tags(tags ...string) *Builder {
	b.tmpl.Tags = append(b.tmpl.Tags, tags...)
	return b
}

// Phase exposes the configuration of a phase for direct edits.
func (b *Builder) Phase(name domain.PhaseName, configure func(*domain.PhaseConfig)) *Builder {
	if cfg := b.tmpl.Pattern.Phase(name); cfg != nil {
		configure(cfg)
	}
	return b
}

// AutoComplete completes runs on entering a signoff state that has nothing
// left to collect.
func (b *Builder) AutoComplete() *Builder {
	b.tmpl.Pattern.Confirm.AutoComplete = true
	return b
}

// Role declares a role. Declaring the same name twice returns the existing builder.
func (b *Builder) Role(name string) *RoleBuilder {
	for _, rb := range b.roles {
		if rb.role.Name == name {
			return rb
		}
	}
	rb := &RoleBuilder{role: domain.Role{Name: name, MinParticipants: 1}}
	b.roles = append(b.roles, rb)
	return rb
}

// Slot declares a slot. Declaring the same name twice returns the existing builder.
func (b *Builder) Slot(name string, typ domain.SlotType) *SlotBuilder {
	for _, sb := range b.slots {
		if sb.slot.Name == name {
			return sb
		}
	}
	sb := &SlotBuilder{slot: domain.Slot{Name: name, Type: typ}}
	b.slots = append(b.slots, sb)
	return sb
}

// State declares a state. States are sequenced in declaration order.
func (b *Builder) State(name string, kind domain.PhaseKind) *StateBuilder {
	for _, sb := range b.states {
		if sb.state.Name == name {
			return sb
		}
	}
	sb := &StateBuilder{state: domain.State{
		Name:          name,
		Kind:          kind,
		RequiredSlots: []string{},
		AllowedRoles:  []string{},
		Transitions:   domain.Transitions{},
	}}
	b.states = append(b.states, sb)
	return sb
}

// Draft assembles the template without validating it.
func (b *Builder) Draft() *domain.Template {
	t := b.tmpl
	if t.Description == "" {
		t.Description = t.Name
	}
	t.Tags = append([]string(nil), b.tmpl.Tags...)
	t.Roles = make([]domain.Role, 0, len(b.roles))
	for _, rb := range b.roles {
		t.Roles = append(t.Roles, rb.role)
	}
	if len(b.slots) > 0 {
		t.Slots = make([]domain.Slot, 0, len(b.slots))
		for _, sb := range b.slots {
			t.Slots = append(t.Slots, sb.slot)
		}
	}
	t.States = make([]domain.State, 0, len(b.states))
	for i, sb := range b.states {
		st := sb.state
		seq := i
		st.Sequence = &seq
		st.Transitions = make(domain.Transitions, len(sb.state.Transitions))
		for cond, targets := range sb.state.Transitions {
			st.Transitions[cond] = append(domain.Targets(nil), targets...)
		}
		t.States = append(t.States, st)
	}
	if t.Complexity == "" {
		t.Complexity = domain.ComplexitySimple
	}
	return &t
}

// Build assembles, validates and seals the template.
func (b *Builder) Build() (*domain.Template, error) {
	t := b.Draft()
	if err := validator.Seal(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MustBuild is like Build but panics on validation errors.
func (b *Builder) MustBuild() *domain.Template {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
