package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/schemainspector/internal/schema"
	"github.com/solatis/schemainspector/internal/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract <payload.json|->",
	Short: "Print the schema of an event payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	props, err := types.FromJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if props.Kind() != types.KindMap {
		return fmt.Errorf("payload must be a JSON object, got %s", props.Kind())
	}

	s := schema.NewExtractor(logger, logLevel == "debug").ExtractAll(props)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	return enc.Encode(schemaTree(s))
}

// schemaTree nests object children so the output is plain JSON rather than
// canonical names embedded as strings.
func schemaTree(s map[string]schema.Type) map[string]any {
	out := make(map[string]any, len(s))
	for name, t := range s {
		if t.Kind() == schema.KindObject {
			out[name] = schemaTree(t.Children())
			continue
		}
		out[name] = t.Name()
	}
	return out
}
