package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/cli"
	"github.com/aretw0/choreo/internal/config"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/machine"
)

var startCmd = &cobra.Command{
	Use:   "start <template-id>",
	Short: "Start a run of a published template",
	Example: `  choreo start 6f1c... --participant alice:requester:Alice --participant bob:provider
  choreo start --file repair.yaml --participant alice:requester`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringArray("participant")
		file, _ := cmd.Flags().GetString("file")
		participants, err := parseParticipants(specs)
		if err != nil {
			return err
		}
		if (len(args) == 0) == (file == "") {
			return fmt.Errorf("pass either a template id or --file")
		}
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			var templateID string
			if file != "" {
				raw, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				res, err := eng.Publish(ctx, raw)
				if err != nil {
					cli.PrintProblems(cmd.ErrOrStderr(), err)
					return err
				}
				templateID = res.Template.ID
			} else {
				templateID = args[0]
			}

			run, err := eng.Start(ctx, templateID, participants)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return cli.PrintJSON(cmd.OutOrStdout(), run)
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Run %s started at '%s'.", run.ID, run.CurrentStateID)
			return nil
		})
	},
}

// parseParticipants reads id:role[:name] specs.
func parseParticipants(specs []string) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid participant %q (want id:role[:name])", s)
		}
		p := domain.Participant{ID: parts[0], Role: parts[1]}
		if len(parts) == 3 {
			p.Name = parts[2]
		}
		out = append(out, p)
	}
	return out, nil
}

var submitCmd = &cobra.Command{
	Use:   "submit <run-id>",
	Short: "Write a slot and/or raise an event on a run",
	Example: `  choreo submit 9a2e... --role requester --slot address --value '"221B Baker Street"'
  choreo submit 9a2e... --role requester --event approved`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sub := machine.Submission{RunID: args[0]}
		sub.Role, _ = flags.GetString("role")
		sub.Slot, _ = flags.GetString("slot")
		sub.Branch, _ = flags.GetString("branch")
		sub.ExpectState, _ = flags.GetString("expect-state")
		event, _ := flags.GetString("event")
		sub.Event = domain.Condition(event)
		if sub.Slot != "" {
			raw, _ := flags.GetString("value")
			sub.Value = parseValue(raw)
		}

		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			out, err := eng.Submit(ctx, sub)
			if err != nil {
				return err
			}
			return printOutcome(cmd, out)
		})
	},
}

// parseValue decodes raw as JSON and falls back to the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

var tickCmd = &cobra.Command{
	Use:   "tick <run-id>",
	Short: "Fire elapsed timeouts of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		now := time.Now()
		if at != "" {
			var err error
			if now, err = time.Parse(time.RFC3339, at); err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
		}
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			out, err := eng.Tick(ctx, args[0], now)
			if err != nil {
				return err
			}
			return printOutcome(cmd, out)
		})
	},
}

var failCmd = &cobra.Command{
	Use:   "fail <run-id>",
	Short: "Terminate a run as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			run, err := eng.Fail(ctx, args[0], reason)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return cli.PrintJSON(cmd.OutOrStdout(), run)
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Run %s failed at '%s'.", run.ID, run.CurrentStateID)
			return nil
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Show a run and its state history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			run, err := eng.Run(ctx, args[0])
			if err != nil {
				return err
			}
			visits, err := eng.History(ctx, args[0])
			if err != nil {
				return err
			}
			var slots map[string]any
			if role != "" {
				if slots, err = eng.Slots(ctx, args[0], role); err != nil {
					return err
				}
			}
			if jsonOutput() {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]any{"run": run, "history": visits, "slots": slots})
			}
			cli.PrintRun(cmd.OutOrStdout(), run, visits)
			if slots != nil {
				return cli.PrintJSON(cmd.OutOrStdout(), slots)
			}
			return nil
		})
	},
}

func printOutcome(cmd *cobra.Command, out *machine.Outcome) error {
	if jsonOutput() {
		return cli.PrintJSON(cmd.OutOrStdout(), out)
	}
	w := cmd.OutOrStdout()
	switch {
	case out.Stale:
		cli.PrintSystemMessage(w, "Run already left that state; nothing changed.")
	case out.Run.Status.Terminal():
		cli.PrintSystemMessage(w, "Run %s %s.", out.Run.ID, out.Run.Status)
	case out.Transitioned:
		cli.PrintSystemMessage(w, "Moved from '%s' to '%s' (%s).", out.From, out.To, out.Condition)
	default:
		cli.PrintSystemMessage(w, "Still at '%s'.", out.Run.CurrentStateID)
	}
	return nil
}

func init() {
	startCmd.Flags().StringArrayP("participant", "p", nil, "participant as id:role[:name] (repeatable)")
	startCmd.Flags().StringP("file", "f", "", "compile and publish this template first")

	submitCmd.Flags().String("role", "", "role of the submitting participant")
	submitCmd.Flags().String("slot", "", "slot to write")
	submitCmd.Flags().String("value", "", "slot value as JSON (plain text is taken as a string)")
	submitCmd.Flags().String("event", "", "event to raise: approved, rejected or manual")
	submitCmd.Flags().String("branch", "", "target state for a multi-target event")
	submitCmd.Flags().String("expect-state", "", "only apply if the run is still in this state")
	_ = submitCmd.MarkFlagRequired("role")

	tickCmd.Flags().String("at", "", "evaluate timeouts as of this RFC3339 time (default now)")
	failCmd.Flags().String("reason", "failed by operator", "failure reason")
	inspectCmd.Flags().String("role", "", "also print the slots visible to this role")

	rootCmd.AddCommand(startCmd, submitCmd, tickCmd, failCmd, inspectCmd)
}
