package domain

// SlotType defines how slot data is collected, validated and displayed.
type SlotType string

const (
	SlotText        SlotType = "text"
	SlotNumber      SlotType = "number"
	SlotDate        SlotType = "date"
	SlotFile        SlotType = "file"
	SlotLocation    SlotType = "location"
	SlotCurrency    SlotType = "currency"
	SlotBoolean     SlotType = "boolean"
	SlotSelect      SlotType = "select"
	SlotMultiSelect SlotType = "multiselect"
	SlotEmail       SlotType = "email"
	SlotPhone       SlotType = "phone"
	SlotURL         SlotType = "url"
	SlotJSON        SlotType = "json"
)

// SlotTypes lists every supported slot type.
var SlotTypes = []SlotType{
	SlotText, SlotNumber, SlotDate, SlotFile, SlotLocation, SlotCurrency, SlotBoolean,
	SlotSelect, SlotMultiSelect, SlotEmail, SlotPhone, SlotURL, SlotJSON,
}

// Valid reports whether t is a known slot type.
func (t SlotType) Valid() bool {
	for _, known := range SlotTypes {
		if t == known {
			return true
		}
	}
	return false
}

// validationKeys holds the type-scoped keys accepted in Slot.Validation.
var validationKeys = map[SlotType][]string{
	SlotText:        {"minLength", "maxLength", "pattern", "format"},
	SlotNumber:      {"min", "max", "step", "precision"},
	SlotDate:        {"minDate", "maxDate", "format"},
	SlotFile:        {"maxSize", "allowedTypes", "maxFiles"},
	SlotLocation:    {"precision", "bounds"},
	SlotCurrency:    {"min", "max", "currency", "precision"},
	SlotBoolean:     {"defaultValue"},
	SlotSelect:      {"options", "allowOther"},
	SlotMultiSelect: {"options", "minSelections", "maxSelections"},
	SlotEmail:       {"pattern", "domain"},
	SlotPhone:       {"pattern", "country"},
	SlotURL:         {"protocol", "domain"},
	SlotJSON:        {"schema", "maxDepth"},
}

// ValidationKeys returns the validation rule keys allowed for the type.
func (t SlotType) ValidationKeys() []string {
	return validationKeys[t]
}

// Slot is a typed data field collected during one or more states.
type Slot struct {
	Name         string         `json:"name"`
	Type         SlotType       `json:"type"`
	Description  string         `json:"description,omitempty"`
	Required     bool           `json:"required"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	Validation   map[string]any `json:"validation,omitempty"`
	// Visibility lists the roles that may read the slot. Empty means every role.
	Visibility []string `json:"visibility,omitempty"`
	// Editable lists the roles that may write the slot. Empty means any role
	// allowed in the current state.
	Editable []string `json:"editable,omitempty"`
}

// VisibleTo reports whether role may read the slot.
func (s *Slot) VisibleTo(role string) bool {
	return len(s.Visibility) == 0 || contains(s.Visibility, role)
}

// Options returns the string options declared in the slot validation rules.
func (s *Slot) Options() []string {
	raw, ok := s.Validation["options"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, o := range v {
			if str, ok := o.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
