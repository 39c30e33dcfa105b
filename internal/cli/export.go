package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lamina-ml/lamina/internal/archive"
	"github.com/lamina-ml/lamina/internal/graph"
)

// newExportCmd loads a model archive and prints its topology as JSON or
// YAML.
func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a saved model's topology as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Debug("loading model", "path", args[0])
			m, err := archive.Load(args[0], nil)
			if err != nil {
				return err
			}
			raw, err := graph.ModelToJSON(m)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				var pretty map[string]any
				if err := json.Unmarshal(raw, &pretty); err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(pretty)
			case "yaml":
				var tree map[string]any
				if err := json.Unmarshal(raw, &tree); err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer func() {
					if cerr := enc.Close(); cerr != nil {
						fmt.Fprintln(os.Stderr, cerr)
					}
				}()
				return enc.Encode(tree)
			default:
				return graph.Errorf(graph.KindValidation, "cli.export",
					"unknown format %q, expected json or yaml", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}
