package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/cli"
	"github.com/aretw0/choreo/internal/config"
)

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Normalize and validate a template document",
	Long: `Reads a JSON or YAML template (use - for stdin), normalizes it into
canonical form and validates it. Prints the canonical JSON, or every problem
found. With --publish the template is stored so runs can be started from it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		publish, _ := cmd.Flags().GetBool("publish")
		return withEngine(cmd.Context(), nil, func(ctx context.Context, _ config.Config, eng *choreo.Engine) error {
			compile := eng.Compile
			if publish {
				compile = eng.Publish
			}
			res, err := compile(ctx, raw)
			if err != nil {
				if cli.PrintProblems(cmd.ErrOrStderr(), err) {
					return fmt.Errorf("template rejected")
				}
				return err
			}
			cli.PrintRecommendations(cmd.ErrOrStderr(), res.Recommendations, res.Unreachable)
			if publish {
				cli.PrintSystemMessage(cmd.ErrOrStderr(), "Published template %s.", res.Template.ID)
			}
			return cli.PrintJSON(cmd.OutOrStdout(), res.Template)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a canonical JSON template",
	Long:  `Checks a template that is already in canonical JSON form. Nothing is normalized: every deviation is reported.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		eng, err := choreo.New()
		if err != nil {
			return err
		}
		if _, err := eng.Validate(raw); err != nil {
			if cli.PrintProblems(cmd.ErrOrStderr(), err) {
				return fmt.Errorf("template is invalid")
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Template is valid.")
		return nil
	},
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func init() {
	compileCmd.Flags().Bool("publish", false, "store the compiled template")
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(validateCmd)
}
