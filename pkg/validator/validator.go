// Package validator performs structural and cross-referential validation of
// canonical templates.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/schema"
)

// Field bounds.
const (
	MaxNameLen        = 100
	MaxDescriptionLen = 500
	MaxTags           = 10
	MinTagLen         = 2
	MaxDurationHours  = 8760

	MinRoles, MaxRoles     = 1, 20
	MaxRoleNameLen         = 50
	MaxRoleDescriptionLen  = 200
	MaxMinParticipants     = 100
	MaxMaxParticipants     = 1000
	MinStates, MaxStates   = 1, 50
	MaxStateNameLen        = 100
	MaxStateDescriptionLen = 300
	MaxSequence            = 100
	MinTimeoutMinutes      = 1
	MaxTimeoutMinutes      = 43200
	MaxSlots               = 100
	MaxSlotNameLen         = 50
	MaxSlotDescriptionLen  = 200
)

var (
	roleNameRe  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	stateNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	slotNameRe  = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)
	versionRe   = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
	tagRe       = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Error reports every problem found in a template.
type Error struct {
	Errs *schema.AggregateError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", domain.ErrValidation, e.Errs)
}

// Messages returns one field-scoped message per problem.
func (e *Error) Messages() []string {
	return e.Errs.Messages()
}

// Code returns the stable error code.
func (e *Error) Code() string { return domain.CodeSchemaFailed }

func (e *Error) Unwrap() []error {
	return []error{domain.ErrValidation, e.Errs}
}

// Check reports whether t is valid and lists every problem found.
func Check(t *domain.Template) (bool, []string) {
	err := Validate(t)
	if err == nil {
		return true, nil
	}
	return false, err.(*Error).Messages()
}

// Validate checks t without modifying it. It returns nil or an *Error
// aggregating every problem.
func Validate(t *domain.Template) error {
	c := &checker{t: t, errs: &schema.AggregateError{}}
	if t == nil {
		c.errs.Add("", "template is nil")
		return &Error{Errs: c.errs}
	}
	c.template()
	c.pattern()
	c.roles()
	c.slots()
	c.states()
	c.sequences()
	if c.errs.Len() > 0 {
		return &Error{Errs: c.errs}
	}
	return nil
}

// Seal validates t and, on success, marks it as ready to drive runs.
func Seal(t *domain.Template) error {
	if err := Validate(t); err != nil {
		return err
	}
	t.Seal()
	return nil
}

type checker struct {
	t    *domain.Template
	errs *schema.AggregateError
}

func (c *checker) add(key, format string, args ...any) {
	c.errs.Add(key, format, args...)
}

func (c *checker) length(key, field, value string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n < min && min == 1:
		c.add(key, "%s is required", field)
	case n < min:
		c.add(key, "%s must be at least %d characters", field, min)
	case n > max:
		c.add(key, "%s must be at most %d characters (got %d)", field, max, n)
	}
}

func (c *checker) template() {
	t := c.t
	c.length("name", "name", t.Name, 1, MaxNameLen)
	if strings.TrimSpace(t.Name) != "" && len(strings.Fields(t.Name)) < 2 {
		c.add("name", "name %q must contain at least 2 words", t.Name)
	}
	c.length("description", "description", t.Description, 1, MaxDescriptionLen)

	if !versionRe.MatchString(t.Version) {
		c.add("version", "%q must be major.minor[.patch]", t.Version)
	} else if _, err := semver.NewVersion(t.Version); err != nil {
		c.add("version", "%q is not a semantic version: %v", t.Version, err)
	}

	if t.Category != "" && !contains(domain.Categories, t.Category) {
		c.add("category", "unknown category %q", t.Category)
	}
	if t.Complexity != "" && !contains(domain.Complexities, t.Complexity) {
		c.add("complexity", "unknown complexity %q", t.Complexity)
	}

	if len(t.Tags) > MaxTags {
		c.add("tags", "at most %d tags allowed (got %d)", MaxTags, len(t.Tags))
	}
	seen := map[string]bool{}
	for i, tag := range t.Tags {
		if !tagRe.MatchString(tag) {
			c.add(fmt.Sprintf("tags[%d]", i), "%q must match [a-z0-9-]+", tag)
		} else if len(tag) < MinTagLen {
			c.add(fmt.Sprintf("tags[%d]", i), "%q must be at least %d characters", tag, MinTagLen)
		}
		if seen[tag] {
			c.add(fmt.Sprintf("tags[%d]", i), "duplicate tag %q", tag)
		}
		seen[tag] = true
	}

	if h := t.EstimatedDurationHours; h != nil && (*h < 1 || *h > MaxDurationHours) {
		c.add("estimatedDurationHours", "must be between 1 and %d (got %d)", MaxDurationHours, *h)
	}
}

func (c *checker) pattern() {
	for _, name := range domain.Phases {
		cfg := c.t.Pattern.Phase(name)
		if cfg.Timeout != nil && (*cfg.Timeout < MinTimeoutMinutes || *cfg.Timeout > MaxTimeoutMinutes) {
			c.add("pattern."+string(name), "timeout must be between %d and %d minutes (got %d)", MinTimeoutMinutes, MaxTimeoutMinutes, *cfg.Timeout)
		}
	}
}

func roleKey(i int, r *domain.Role) string {
	return fmt.Sprintf("roles[%d] %q", i, r.Name)
}

func (c *checker) roles() {
	roles := c.t.Roles
	if len(roles) < MinRoles || len(roles) > MaxRoles {
		c.add("roles", "must declare between %d and %d roles (got %d)", MinRoles, MaxRoles, len(roles))
	}
	seen := map[string]bool{}
	for i := range roles {
		r := &roles[i]
		key := roleKey(i, r)
		switch {
		case r.Name == "":
			c.add(key, "name is required")
		case len(r.Name) > MaxRoleNameLen:
			c.add(key, "name must be at most %d characters", MaxRoleNameLen)
		case !roleNameRe.MatchString(r.Name):
			c.add(key, "name must match %s", roleNameRe)
		}
		if seen[r.Name] {
			c.add(key, "duplicate role name")
		}
		seen[r.Name] = true

		c.length(key, "description", r.Description, 0, MaxRoleDescriptionLen)
		if r.MinParticipants < 0 || r.MinParticipants > MaxMinParticipants {
			c.add(key, "minParticipants must be between 0 and %d (got %d)", MaxMinParticipants, r.MinParticipants)
		}
		if r.MaxParticipants != nil {
			max := *r.MaxParticipants
			if max < 1 || max > MaxMaxParticipants {
				c.add(key, "maxParticipants must be between 1 and %d (got %d)", MaxMaxParticipants, max)
			}
			if max < r.MinParticipants {
				c.add(key, "maxParticipants (%d) must be >= minParticipants (%d)", max, r.MinParticipants)
			}
		}

		caps := map[domain.Capability]bool{}
		for _, cp := range r.Capabilities {
			if !cp.Valid() {
				c.add(key, "unknown capability %q", cp)
			}
			if caps[cp] {
				c.add(key, "duplicate capability %q", cp)
			}
			caps[cp] = true
		}
	}
}

func slotKey(i int, s *domain.Slot) string {
	return fmt.Sprintf("slots[%d] %q", i, s.Name)
}

func (c *checker) slots() {
	slots := c.t.Slots
	if len(slots) > MaxSlots {
		c.add("slots", "at most %d slots allowed (got %d)", MaxSlots, len(slots))
	}
	seen := map[string]bool{}
	for i := range slots {
		s := &slots[i]
		key := slotKey(i, s)
		switch {
		case s.Name == "":
			c.add(key, "name is required")
		case len(s.Name) > MaxSlotNameLen:
			c.add(key, "name must be at most %d characters", MaxSlotNameLen)
		case !slotNameRe.MatchString(s.Name):
			c.add(key, "name must match %s", slotNameRe)
		}
		if seen[s.Name] {
			c.add(key, "duplicate slot name")
		}
		seen[s.Name] = true
		c.length(key, "description", s.Description, 0, MaxSlotDescriptionLen)

		if !s.Type.Valid() {
			c.add(key, "unknown type %q", s.Type)
			continue
		}

		allowed := s.Type.ValidationKeys()
		rules := make([]string, 0, len(s.Validation))
		for k := range s.Validation {
			rules = append(rules, k)
		}
		sort.Strings(rules)
		for _, k := range rules {
			if !contains(allowed, k) {
				c.add(key, "validation key %q is not allowed for type %s (allowed: %s)", k, s.Type, strings.Join(allowed, ", "))
			}
		}
		for _, err := range schema.ValidationErrors(schema.CheckRules(s)) {
			c.add(key, "validation.%v", err)
		}

		if s.DefaultValue != nil {
			if err := schema.ForSlot(s).Validate(s.DefaultValue); err != nil {
				c.add(key, "defaultValue does not match type %s: %v", s.Type, err)
			}
		}

		for _, r := range s.Visibility {
			if _, ok := c.t.Role(r); !ok {
				c.add(key, "visibility references unknown role %q", r)
			}
		}
		for _, r := range s.Editable {
			if _, ok := c.t.Role(r); !ok {
				c.add(key, "editable references unknown role %q", r)
			}
		}
	}
}

func stateKey(i int, s *domain.State) string {
	return fmt.Sprintf("states[%d] %q", i, s.Name)
}

func (c *checker) states() {
	states := c.t.States
	if len(states) < MinStates || len(states) > MaxStates {
		c.add("states", "must declare between %d and %d states (got %d)", MinStates, MaxStates, len(states))
	}
	seen := map[string]bool{}
	for i := range states {
		s := &states[i]
		key := stateKey(i, s)
		switch {
		case s.Name == "":
			c.add(key, "name is required")
		case len(s.Name) > MaxStateNameLen:
			c.add(key, "name must be at most %d characters", MaxStateNameLen)
		case !stateNameRe.MatchString(s.Name):
			c.add(key, "name must match %s", stateNameRe)
		}
		if seen[s.Name] {
			c.add(key, "duplicate state name")
		}
		seen[s.Name] = true

		if !s.Kind.Valid() {
			c.add(key, "unknown phaseKind %q", s.Kind)
		}
		c.length(key, "description", s.Description, 0, MaxStateDescriptionLen)
		if s.TimeoutMinutes != nil && (*s.TimeoutMinutes < MinTimeoutMinutes || *s.TimeoutMinutes > MaxTimeoutMinutes) {
			c.add(key, "timeoutMinutes must be between %d and %d (got %d)", MinTimeoutMinutes, MaxTimeoutMinutes, *s.TimeoutMinutes)
		}

		for _, slot := range s.RequiredSlots {
			if _, ok := c.t.Slot(slot); !ok {
				c.add(key, "requiredSlots references unknown slot %q", slot)
			}
		}
		for _, role := range s.AllowedRoles {
			if _, ok := c.t.Role(role); !ok {
				c.add(key, "allowedRoles references unknown role %q", role)
			}
		}
		c.transitions(key, s)
	}
}

func (c *checker) transitions(key string, s *domain.State) {
	conds := make([]string, 0, len(s.Transitions))
	for cond := range s.Transitions {
		conds = append(conds, string(cond))
	}
	sort.Strings(conds)

	for _, name := range conds {
		cond := domain.Condition(name)
		targets := s.Transitions[cond]
		if !cond.Valid() {
			c.add(key, "unknown transition condition %q", cond)
			continue
		}
		if len(targets) == 0 {
			c.add(key, "%s transition has no target", cond)
		}
		if len(targets) > 1 && (cond == domain.ConditionAlways || cond == domain.ConditionTimeout) {
			c.add(key, "%s transition has %d targets and no way to choose between them", cond, len(targets))
		}
		for _, target := range targets {
			if _, ok := c.t.State(target); !ok {
				c.add(key, "%s transition references unknown state %q", cond, target)
			}
		}
		if cond == domain.ConditionTimeout {
			if _, ok := c.t.Timeout(s); !ok {
				c.add(key, "timeout transition requires timeoutMinutes or a phase timeout")
			}
		}
	}
}

// sequences checks that sequence values, when present, form 0..N-1.
func (c *checker) sequences() {
	var seqs []int
	for i := range c.t.States {
		s := &c.t.States[i]
		if s.Sequence == nil {
			continue
		}
		if *s.Sequence < 0 || *s.Sequence > MaxSequence {
			c.add(stateKey(i, s), "sequence must be between 0 and %d (got %d)", MaxSequence, *s.Sequence)
		}
		seqs = append(seqs, *s.Sequence)
	}
	sort.Ints(seqs)
	for i, v := range seqs {
		if v != i {
			c.add("states", "sequences must be consecutive from 0 (got %v)", seqs)
			return
		}
	}
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
