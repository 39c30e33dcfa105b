package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lamina-ml/lamina/internal/archive"
	"github.com/lamina-ml/lamina/internal/graph"
)

// newInspectCmd prints the header of a .lamina archive: provenance, layer
// weight layout, training state and tensor inventory.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the contents of a model archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := archive.ActiveCodec()
			if codec == nil {
				return graph.Errorf(graph.KindDependency, "cli.inspect", "no serialization codec installed")
			}
			a, err := codec.Read(args[0])
			if err != nil {
				return err
			}
			h := a.Header
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:     %s\n", args[0])
			fmt.Fprintf(out, "format:   v%d (lamina %s, backend %s)\n", h.FormatVersion, h.LaminaVersion, h.BackendTag)
			fmt.Fprintf(out, "file id:  %s\n", h.FileID)
			fmt.Fprintf(out, "created:  %s\n", h.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "topology: %v\n", h.ModelConfig != nil)
			if h.TrainingConfig != nil {
				fmt.Fprintf(out, "compiled: %s / %s\n", h.TrainingConfig.OptimizerClass, h.TrainingConfig.Loss)
			} else {
				fmt.Fprintln(out, "compiled: false")
			}
			fmt.Fprintf(out, "layers:   %d\n", len(h.ModelWeights))
			for _, lw := range h.ModelWeights {
				fmt.Fprintf(out, "  %s (%d weights)\n", lw.LayerName, len(lw.WeightNames))
			}
			fmt.Fprintf(out, "tensors:  %d\n", len(h.Tensors))
			for _, t := range h.Tensors {
				fmt.Fprintf(out, "  %-40s %-8s %v (%d bytes)\n", t.Name, t.DType, t.Shape, t.Size)
			}
			return nil
		},
	}
}
