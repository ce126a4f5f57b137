/*
Package dsl provides a fluent builder for coordination templates.

It is the programmatic counterpart of compiling a JSON or YAML document: states
are sequenced in declaration order, the coordination pattern gets its default
phase configuration, and Build runs full validation before sealing the result.

Example usage:

	b := dsl.New("Home Repair Request")

	b.Role("requester").Max(1).Can(domain.CapApprove, domain.CapReject)
	b.Role("provider")

	b.Slot("issue", domain.SlotText).Required().EditableBy("requester")
	b.Slot("quote", domain.SlotCurrency).EditableBy("provider")

	b.State("describe", domain.KindCollect).Require("issue").Go("quote")
	b.State("quote", domain.KindNegotiate).Require("quote").
		On(domain.ConditionApproved, "done").
		On(domain.ConditionRejected, "describe")
	b.State("done", domain.KindSignoff)

	tmpl, err := b.Build() // *validator.Error lists every problem
*/
package dsl
