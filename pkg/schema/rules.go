package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/aretw0/choreo/pkg/domain"
)

// Regex validates strings that compile as regular expressions.
func Regex() Type {
	return Custom("regex", func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected regular expression, got %T", v)
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("invalid regular expression: %w", err)
		}
		return nil
	})
}

// Date validates the date forms accepted by date slots.
func Date() Type { return Custom("date", checkDate) }

// Rules types the values of slot validation keys. Keys absent here
// (location bounds, json schema) take any value.
var Rules = Schema{
	"minLength":     Int(),
	"maxLength":     Int(),
	"pattern":       Regex(),
	"format":        String(),
	"min":           Float(),
	"max":           Float(),
	"step":          Float(),
	"precision":     Int(),
	"minDate":       Date(),
	"maxDate":       Date(),
	"maxSize":       Int(),
	"allowedTypes":  Slice(String()),
	"maxFiles":      Int(),
	"currency":      String(),
	"defaultValue":  Bool(),
	"options":       Slice(String()),
	"allowOther":    Bool(),
	"minSelections": Int(),
	"maxSelections": Int(),
	"domain":        String(),
	"country":       String(),
	"protocol":      String(),
	"maxDepth":      Int(),
}

// CheckRules type-checks the validation map of slot. Keys that are not
// allowed for the slot type are left to the caller.
func CheckRules(slot *domain.Slot) error {
	allowed := slot.Type.ValidationKeys()
	keys := make([]string, 0, len(slot.Validation))
	for k := range slot.Validation {
		if _, typed := Rules[k]; typed && containsKey(allowed, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return ValidateFields(Rules, slot.Validation, keys...)
}

func containsKey(list []string, k string) bool {
	for _, item := range list {
		if item == k {
			return true
		}
	}
	return false
}
