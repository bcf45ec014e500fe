// Package cli assembles the prune CLI's cobra command tree. The core
// logic lives in build, serialize, selection and validate; this package
// only wires flags to those entry points and prints results, keeping
// `log` at the CLI boundary and plain errors everywhere else.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prune",
	Short: "Static import-graph engine for safe test selection",
	Long: `prune builds and queries the import-dependency graph of a source
repository, and selects the minimal set of test files that could be
affected by a given set of changed files.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newSelectCmd())
}
