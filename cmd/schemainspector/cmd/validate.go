package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/schemainspector/internal/eventspec"
	"github.com/solatis/schemainspector/internal/rules"
	"github.com/solatis/schemainspector/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate --spec <spec.json> <payload.json|->",
	Short: "Validate an event payload against a tracking-plan response",
	Long: `Validate decodes a tracking-plan response as returned by the
/trackingPlan/eventSpec endpoint and prints the validation result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("spec", "", "tracking-plan response file (required)")
	validateCmd.Flags().Int("max-depth", types.DefaultMaxValidationDepth, "maximum nesting depth to validate")
	_ = validateCmd.MarkFlagRequired("spec")
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	specPath, _ := cmd.Flags().GetString("spec")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")

	specData, err := readInput(cmd, specPath)
	if err != nil {
		return err
	}
	spec, err := eventspec.ParseResponse(specData)
	if err != nil {
		return fmt.Errorf("failed to parse spec: %w", err)
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	props, err := types.FromJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	validator := rules.NewValidator(rules.WithMaxDepth(maxDepth), rules.WithLogger(logger))
	result := validator.Validate(props, spec)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
