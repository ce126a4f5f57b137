package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		value   any
		wantErr bool
	}{
		{"int", Int(), 3, false},
		{"int64", Int(), int64(3), false},
		{"whole float as int", Int(), float64(12), false},
		{"fractional float as int", Int(), 1.5, true},
		{"string as int", Int(), "3", true},
		{"float", Float(), 0.25, false},
		{"int as float", Float(), 7, false},
		{"json number", Float(), json.Number("2.5"), false},
		{"bool as float", Float(), true, true},
		{"bool", Bool(), false, false},
		{"nil bool", Bool(), nil, true},
		{"strings", Slice(String()), []any{"x", "y"}, false},
		{"empty strings", Slice(String()), []string{}, false},
		{"mixed list", Slice(String()), []any{"x", 2}, true},
		{"scalar as list", Slice(String()), "x", true},
		{"regex", Regex(), `^\d{5}$`, false},
		{"broken regex", Regex(), `(`, true},
		{"date", Date(), "2026-03-01", false},
		{"not a date", Date(), "March", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "int", Int().Name())
	assert.Equal(t, "float", Float().Name())
	assert.Equal(t, "[string]", Slice(String()).Name())
	assert.Equal(t, "regex", Regex().Name())
	assert.Equal(t, "even", Custom("even", func(any) error { return nil }).Name())
}
