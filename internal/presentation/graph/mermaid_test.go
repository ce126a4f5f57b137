package graph_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/choreo/internal/presentation/graph"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/dsl"
)

func repairTemplate() *domain.Template {
	b := dsl.New("Home Repair")
	b.Role("requester").Can(domain.CapApprove, domain.CapReject)
	b.Role("provider")
	b.Slot("address", domain.SlotText).Required()
	b.Slot("quote", domain.SlotCurrency)
	b.State("intake", domain.KindCollect).Require("address").Go("quote")
	b.State("quote", domain.KindNegotiate).Require("quote").
		On(domain.ConditionApproved, "work").
		On(domain.ConditionRejected, "intake").
		Timeout(90, "cancelled")
	b.State("work", domain.KindCommit).Go("signoff")
	b.State("signoff", domain.KindSignoff)
	b.State("cancelled", domain.KindSignoff)
	return b.MustBuild()
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(repairTemplate(), nil)

	for _, want := range []string{
		"graph TD\n",
		`intake(("intake <br/> needs: address"))`,
		`quote{"quote <br/> needs: quote"}`,
		`work["work"]`,
		`signoff[["signoff"]]`,
		`intake -- "always" --> quote`,
		`quote -. "approved" .-> work`,
		`quote -. "rejected" .-> intake`,
		`quote -. "timeout 90m" .-> cancelled`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Overlay")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	now := time.Now()
	run := &domain.Run{CurrentStateID: "quote", Status: domain.RunInProgress}
	visits := []*domain.RunState{
		{StateID: "intake", EnteredAt: now},
		{StateID: "quote", EnteredAt: now},
		{StateID: "intake", EnteredAt: now},
	}

	out := graph.GenerateMermaid(repairTemplate(), graph.OverlayFromHistory(run, visits))
	assert.Equal(t, 1, strings.Count(out, "class intake visited;"), "visits are deduplicated")
	assert.Contains(t, out, "class quote visited;")
	assert.Contains(t, out, "class quote current;")

	run.Status = domain.RunCompleted
	out = graph.GenerateMermaid(repairTemplate(), graph.OverlayFromHistory(run, visits))
	assert.NotContains(t, out, "current;")
}

func TestGenerateMermaid_Sanitization(t *testing.T) {
	b := dsl.New("Odd Names")
	b.Role("member")
	b.State("step.one", domain.KindCommit).Go("step-two")
	b.State("step-two", domain.KindSignoff)
	tmpl := b.Draft()

	out := graph.GenerateMermaid(tmpl, nil)
	assert.Contains(t, out, `step_one(("step.one"))`)
	assert.Contains(t, out, `step_one -- "always" --> step_two`)
}
