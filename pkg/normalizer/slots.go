package normalizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/choreo/pkg/domain"
)

type slotInput struct {
	Name         string         `mapstructure:"name"`
	ID           string         `mapstructure:"id"`
	Key          string         `mapstructure:"key"`
	Label        string         `mapstructure:"label"`
	Type         string         `mapstructure:"type"`
	FieldType    string         `mapstructure:"fieldType"`
	Description  string         `mapstructure:"description"`
	Required     bool           `mapstructure:"required"`
	DefaultValue any            `mapstructure:"defaultValue"`
	Default      any            `mapstructure:"default"`
	Validation   map[string]any `mapstructure:"validation"`
	Options      []any          `mapstructure:"options"`
	Visibility   []string       `mapstructure:"visibility"`
	Editable     []string       `mapstructure:"editable"`
}

var slotTypeSynonyms = map[string]domain.SlotType{
	"string":      domain.SlotText,
	"str":         domain.SlotText,
	"textarea":    domain.SlotText,
	"longtext":    domain.SlotText,
	"int":         domain.SlotNumber,
	"integer":     domain.SlotNumber,
	"float":       domain.SlotNumber,
	"decimal":     domain.SlotNumber,
	"numeric":     domain.SlotNumber,
	"bool":        domain.SlotBoolean,
	"checkbox":    domain.SlotBoolean,
	"datetime":    domain.SlotDate,
	"time":        domain.SlotDate,
	"money":       domain.SlotCurrency,
	"price":       domain.SlotCurrency,
	"amount":      domain.SlotCurrency,
	"dropdown":    domain.SlotSelect,
	"choice":      domain.SlotSelect,
	"enum":        domain.SlotSelect,
	"radio":       domain.SlotSelect,
	"multichoice": domain.SlotMultiSelect,
	"tags":        domain.SlotMultiSelect,
	"mail":        domain.SlotEmail,
	"tel":         domain.SlotPhone,
	"telephone":   domain.SlotPhone,
	"link":        domain.SlotURL,
	"uri":         domain.SlotURL,
	"object":      domain.SlotJSON,
	"dict":        domain.SlotJSON,
	"map":         domain.SlotJSON,
	"upload":      domain.SlotFile,
	"image":       domain.SlotFile,
	"attachment":  domain.SlotFile,
	"document":    domain.SlotFile,
	"address":     domain.SlotLocation,
	"geo":         domain.SlotLocation,
}

func slotType(raw string) (domain.SlotType, bool) {
	key := normKey(raw)
	if t := domain.SlotType(key); t.Valid() {
		return t, true
	}
	t, ok := slotTypeSynonyms[key]
	return t, ok
}

// normalizeSlots returns nil when no slots are declared.
func (p *pass) normalizeSlots(raw any) []domain.Slot {
	items := entries(raw)
	if len(items) == 0 {
		return nil
	}

	slots := make([]domain.Slot, 0, len(items))
	for _, it := range items {
		field := fmt.Sprintf("slots[%d]", it.index)
		var in slotInput
		if err := decode(it.value, &in); err != nil {
			p.recommend(field, "partially understood: %v", err)
		}

		slot := domain.Slot{
			Name:        p.slots.name(it.index, keepSlotName, in.Name, in.Key, in.ID, it.key, in.Label),
			Description: strings.TrimSpace(in.Description),
			Required:    in.Required,
			Validation:  in.Validation,
			Visibility:  p.roleRefs(in.Visibility),
			Editable:    p.roleRefs(in.Editable),
		}

		declared := in.Type
		if declared == "" {
			declared = in.FieldType
		}
		switch t, ok := slotType(declared); {
		case ok:
			slot.Type = t
		case declared == "":
			slot.Type = domain.SlotText
		default:
			slot.Type = domain.SlotText
			p.recommend(field+".type", "unknown type %q; using text", declared)
		}

		if len(in.Options) > 0 {
			if slot.Validation == nil {
				slot.Validation = map[string]any{}
			}
			if _, set := slot.Validation["options"]; !set {
				slot.Validation["options"] = in.Options
			}
		}

		def := in.DefaultValue
		if def == nil {
			def = in.Default
		}
		slot.DefaultValue = coerceDefault(slot.Type, def)
		slots = append(slots, slot)
	}
	return slots
}

// coerceDefault converts string encodings of booleans and numbers. Values it
// cannot convert are kept so validation reports them.
func coerceDefault(t domain.SlotType, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch t {
	case domain.SlotBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	case domain.SlotNumber, domain.SlotCurrency:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return v
}

// slotRefs rewrites slot references through the slot lookup table.
func (p *pass) slotRefs(refs []string) []string {
	if len(refs) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(refs))
	seen := map[string]bool{}
	for _, ref := range refs {
		name, _ := p.slots.resolve(ref)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
