// Program prune is the CLI front-end for the import-graph engine: it
// implements `graph`, `select`, and `validate` subcommands, built on
// github.com/spf13/cobra.
package main

import (
	"os"

	"github.com/importprune/prune/cmd/prune/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
