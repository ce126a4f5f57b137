package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/normalizer"
	"github.com/aretw0/choreo/pkg/schema"
	"github.com/aretw0/choreo/pkg/validator"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintRun writes a summary of run and its visits.
func PrintRun(w io.Writer, run *domain.Run, visits []*domain.RunState) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Run " + run.ID)
	tw.AppendRow(table.Row{"Template", run.TemplateID})
	tw.AppendRow(table.Row{"Status", run.Status})
	tw.AppendRow(table.Row{"State", run.CurrentStateID})
	tw.AppendRow(table.Row{"Created", run.CreatedAt.Format(time.RFC3339)})
	if run.CompletedAt != nil {
		tw.AppendRow(table.Row{"Finished", run.CompletedAt.Format(time.RFC3339)})
	}
	if run.FailureReason != "" {
		tw.AppendRow(table.Row{"Reason", run.FailureReason})
	}
	tw.Render()

	pw := table.NewWriter()
	pw.SetOutputMirror(w)
	pw.AppendHeader(table.Row{"Participant", "Role", "Name"})
	for _, p := range run.Participants {
		pw.AppendRow(table.Row{p.ID, p.Role, p.Name})
	}
	pw.Render()

	PrintRunStates(w, visits)
}

// PrintRunStates writes one row per visit in entry order.
func PrintRunStates(w io.Writer, visits []*domain.RunState) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "State", "Entered", "Exited", "Slots"})
	for i, rs := range visits {
		exited := "open"
		if rs.ExitedAt != nil {
			exited = rs.ExitedAt.Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{i + 1, rs.StateID, rs.EnteredAt.Format(time.RFC3339), exited, formatSlots(rs.SlotData)})
	}
	tw.Render()
}

func formatSlots(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(lines, "\n")
}

// PrintRecommendations lists the normalizer's non-fatal findings.
func PrintRecommendations(w io.Writer, recs []normalizer.Recommendation, unreachable []string) {
	if len(recs) == 0 && len(unreachable) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Recommendations")
	tw.AppendHeader(table.Row{"Field", "Message"})
	for _, r := range recs {
		tw.AppendRow(table.Row{r.Field, r.Message})
	}
	for _, s := range unreachable {
		tw.AppendRow(table.Row{"states", fmt.Sprintf("state %q is unreachable from the start state", s)})
	}
	tw.Render()
}

// PrintProblems writes every validation problem in err. It returns false
// when err carries no validation problems.
func PrintProblems(w io.Writer, err error) bool {
	var verr *validator.Error
	if !errors.As(err, &verr) {
		return false
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("%d problem(s)", verr.Errs.Len()))
	tw.AppendHeader(table.Row{"Field", "Problem"})
	for _, e := range verr.Errs.Errors {
		var fe *schema.ValidationError
		if errors.As(e, &fe) {
			tw.AppendRow(table.Row{fe.Key, fe.Reason})
		} else {
			tw.AppendRow(table.Row{"", e.Error()})
		}
	}
	tw.Render()
	return true
}
