// Package cli implements the lamina command-line interface.
//
// The CLI inspects and converts .lamina model archives. It is built on
// cobra, with structured logging via charmbracelet/log behind the
// --verbose flag.
package cli

import (
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var version = "v0.3.1"

// SetVersion overrides the version reported by --version, typically from
// ldflags at build time.
func SetVersion(v string) { version = v }

// Execute runs the lamina CLI.
func Execute() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "lamina",
		Short:        "Lamina inspects and converts saved model archives",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{Level: level})
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInspectCmd())
	root.AddCommand(newExportCmd())
	return root.Execute()
}

var logger = charmlog.New(os.Stderr)
