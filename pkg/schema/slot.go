package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/choreo/pkg/domain"
)

// ForSlot returns the Type checking values of the slot, including the
// rules declared in its validation map. Unknown slot types accept any value.
func ForSlot(slot *domain.Slot) Type {
	rules := slot.Validation
	name := string(slot.Type)
	switch slot.Type {
	case domain.SlotText:
		return Custom(name, func(v any) error { return checkText(v, rules) })
	case domain.SlotNumber:
		return Custom(name, func(v any) error { return checkNumber(v, rules) })
	case domain.SlotCurrency:
		return Custom(name, func(v any) error { return checkCurrency(v, rules) })
	case domain.SlotDate:
		return Custom(name, checkDate)
	case domain.SlotBoolean:
		return Bool()
	case domain.SlotSelect:
		return Custom(name, func(v any) error { return checkSelect(v, slot) })
	case domain.SlotMultiSelect:
		return Custom(name, func(v any) error { return checkMultiSelect(v, slot) })
	case domain.SlotEmail:
		return Custom(name, func(v any) error { return checkEmail(v, rules) })
	case domain.SlotPhone:
		return Custom(name, checkPhone)
	case domain.SlotURL:
		return Custom(name, func(v any) error { return checkURL(v, rules) })
	case domain.SlotFile:
		return Custom(name, func(v any) error { return checkFile(v, rules) })
	case domain.SlotLocation:
		return Custom(name, checkLocation)
	case domain.SlotJSON:
		return Custom(name, checkJSON)
	}
	return Custom(name, func(any) error { return nil })
}

func ruleFloat(rules map[string]any, key string) (float64, bool) {
	raw, ok := rules[key]
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}

func checkText(v any, rules map[string]any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected text, got %T", v)
	}
	n := float64(utf8.RuneCountInString(s))
	if min, ok := ruleFloat(rules, "minLength"); ok && n < min {
		return fmt.Errorf("must be at least %v characters", min)
	}
	if max, ok := ruleFloat(rules, "maxLength"); ok && n > max {
		return fmt.Errorf("must be at most %v characters", max)
	}
	if pattern, ok := rules["pattern"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("does not match pattern %q", pattern)
		}
	}
	return nil
}

func checkRange(f float64, rules map[string]any) error {
	if min, ok := ruleFloat(rules, "min"); ok && f < min {
		return fmt.Errorf("must be >= %v", min)
	}
	if max, ok := ruleFloat(rules, "max"); ok && f > max {
		return fmt.Errorf("must be <= %v", max)
	}
	return nil
}

func checkNumber(v any, rules map[string]any) error {
	f, ok := toFloat(v)
	if !ok {
		return fmt.Errorf("expected number, got %T", v)
	}
	return checkRange(f, rules)
}

// checkCurrency accepts a bare amount or {"amount": n, "currency": "EUR"}.
func checkCurrency(v any, rules map[string]any) error {
	if m, ok := v.(map[string]any); ok {
		amount, ok := toFloat(m["amount"])
		if !ok {
			return fmt.Errorf("currency object needs a numeric amount")
		}
		if code, ok := rules["currency"].(string); ok && code != "" {
			if got, _ := m["currency"].(string); got != "" && !strings.EqualFold(got, code) {
				return fmt.Errorf("expected currency %s, got %s", code, got)
			}
		}
		return checkRange(amount, rules)
	}
	return checkNumber(v, rules)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func checkDate(v any) error {
	switch d := v.(type) {
	case time.Time:
		return nil
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, d); err == nil {
				return nil
			}
		}
		return fmt.Errorf("%q is not a date", d)
	}
	return fmt.Errorf("expected date, got %T", v)
}

func allowOther(slot *domain.Slot) bool {
	b, _ := slot.Validation["allowOther"].(bool)
	return b
}

func checkOption(s string, slot *domain.Slot) error {
	options := slot.Options()
	if len(options) == 0 || allowOther(slot) {
		return nil
	}
	for _, o := range options {
		if o == s {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of %v", s, options)
}

func checkSelect(v any, slot *domain.Slot) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected option, got %T", v)
	}
	return checkOption(s, slot)
}

func checkMultiSelect(v any, slot *domain.Slot) error {
	if err := Slice(String()).Validate(v); err != nil {
		return err
	}
	var picked []string
	switch list := v.(type) {
	case []string:
		picked = list
	case []any:
		for _, item := range list {
			picked = append(picked, item.(string))
		}
	}
	for _, s := range picked {
		if err := checkOption(s, slot); err != nil {
			return err
		}
	}
	n := float64(len(picked))
	if min, ok := ruleFloat(slot.Validation, "minSelections"); ok && n < min {
		return fmt.Errorf("select at least %v options", min)
	}
	if max, ok := ruleFloat(slot.Validation, "maxSelections"); ok && n > max {
		return fmt.Errorf("select at most %v options", max)
	}
	return nil
}

func checkEmail(v any, rules map[string]any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected email, got %T", v)
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return fmt.Errorf("%q is not an email address", s)
	}
	if domainRule, ok := rules["domain"].(string); ok && domainRule != "" {
		if !strings.EqualFold(s[at+1:], domainRule) {
			return fmt.Errorf("email must belong to %s", domainRule)
		}
	}
	return nil
}

func checkPhone(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected phone number, got %T", v)
	}
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case strings.ContainsRune("+-(). ", r):
		default:
			return fmt.Errorf("%q is not a phone number", s)
		}
	}
	if digits < 7 {
		return fmt.Errorf("%q is too short for a phone number", s)
	}
	return nil
}

func checkURL(v any, rules map[string]any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected url, got %T", v)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute url", s)
	}
	if proto, ok := rules["protocol"].(string); ok && proto != "" && !strings.EqualFold(u.Scheme, proto) {
		return fmt.Errorf("url must use %s", proto)
	}
	return nil
}

// checkFile accepts a reference string, a descriptor object, or a list of either.
func checkFile(v any, rules map[string]any) error {
	single := func(item any) error {
		switch f := item.(type) {
		case string:
			if f == "" {
				return fmt.Errorf("empty file reference")
			}
			return nil
		case map[string]any:
			if _, ok := f["url"]; ok {
				return nil
			}
			if _, ok := f["name"]; ok {
				return nil
			}
			return fmt.Errorf("file object needs a url or name")
		}
		return fmt.Errorf("expected file reference, got %T", item)
	}
	list, ok := v.([]any)
	if !ok {
		return single(v)
	}
	if max, ok := ruleFloat(rules, "maxFiles"); ok && float64(len(list)) > max {
		return fmt.Errorf("at most %v files", max)
	}
	for i, item := range list {
		if err := single(item); err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
	}
	return nil
}

// checkLocation accepts an address string or {"lat": n, "lng": n}.
func checkLocation(v any) error {
	switch l := v.(type) {
	case string:
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("empty location")
		}
		return nil
	case map[string]any:
		lat, okLat := toFloat(l["lat"])
		lng, okLng := toFloat(l["lng"])
		if !okLat || !okLng {
			return fmt.Errorf("location object needs numeric lat and lng")
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return fmt.Errorf("coordinates out of range")
		}
		return nil
	}
	return fmt.Errorf("expected location, got %T", v)
}

func checkJSON(v any) error {
	switch j := v.(type) {
	case map[string]any, []any:
		return nil
	case string:
		if !json.Valid([]byte(j)) {
			return fmt.Errorf("invalid json document")
		}
		return nil
	}
	return fmt.Errorf("expected json object or list, got %T", v)
}
