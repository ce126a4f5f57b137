package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/config"
	"github.com/aretw0/choreo/internal/presentation/graph"
	"github.com/aretw0/choreo/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Print a template as a Mermaid flowchart",
	Long: `Compiles a template and prints its states as a Mermaid flowchart.
With --run the stored run's template is drawn instead, highlighting the
states the run visited and the one it is in.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		if (len(args) == 0) == (runID == "") {
			return fmt.Errorf("pass either a template file or --run")
		}
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			var (
				tmpl    *domain.Template
				overlay *graph.RunOverlay
			)
			if runID != "" {
				run, err := eng.Run(ctx, runID)
				if err != nil {
					return err
				}
				visits, err := eng.History(ctx, runID)
				if err != nil {
					return err
				}
				if tmpl, err = eng.Machine().Template(ctx, runID); err != nil {
					return err
				}
				overlay = graph.OverlayFromHistory(run, visits)
			} else {
				raw, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				res, err := eng.Compile(ctx, raw)
				if err != nil {
					return err
				}
				tmpl = res.Template
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(tmpl, overlay))
			return nil
		})
	},
}

func init() {
	graphCmd.Flags().String("run", "", "draw the template of this run with its progress")
	rootCmd.AddCommand(graphCmd)
}
