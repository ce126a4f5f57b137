// Package schema provides the value type system used for slot data.
//
// Every slot type of a template maps to a Type that checks submitted values
// and declared defaults. Schemas map field names to their types:
//
//	sch := schema.Schema{"rating": schema.ForSlot(rating)}
//	if err := schema.ValidateFields(sch, map[string]any{"rating": 5}, "rating"); err != nil {
//	    // err is an *AggregateError of *ValidationError entries
//	}
//
// Rules types the validation map of a slot itself; CheckRules reports
// malformed rules such as a pattern that does not compile.
//
// Types for a single slot honor its validation rules (minLength, min/max,
// options, ...):
//
//	typ := schema.ForSlot(&domain.Slot{Name: "size", Type: domain.SlotSelect,
//	    Validation: map[string]any{"options": []any{"s", "m", "l"}}})
//	err := typ.Validate("xl") // not one of the options
//
// ValidationError and AggregateError are also the building blocks of
// template validation reports.
package schema
