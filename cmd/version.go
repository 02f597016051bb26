package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, set at link time.
var (
	version = "dev"
	commit  = "none"
)

// newVersionCmd creates the 'version' subcommand. It overrides the root
// hooks so printing the version never requires a valid configuration.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Prints version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "paperflow %s (commit %s, %s)\n", version, commit, runtime.Version())
		},
	}
}
