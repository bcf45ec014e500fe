package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/importprune/prune/build"
	"github.com/importprune/prune/hooks"
	"github.com/importprune/prune/rpc"
	"github.com/importprune/prune/serialize"
	"github.com/importprune/prune/validate"
)

func newValidateCmd() *cobra.Command {
	var (
		graphPath   string
		roots       []string
		mode        string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Drive the language loader and cross-check against the static graph",
		Long: `validate installs the registered loader adapter, imports every
known test file once, and reports any dynamic import edge missing from the
static graph's closure.

It requires a validate.LoaderAdapter to have been registered for the
current host runtime via rpc.RegisterLoader in this process's main; the
core itself only defines the capability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var g *build.Result
			if graphPath != "" {
				f, err := os.Open(graphPath)
				if err != nil {
					return fmt.Errorf("validate: opening %s: %w", graphPath, err)
				}
				defer f.Close()
				sg, err := serialize.Read(f)
				if err != nil {
					return fmt.Errorf("validate: reading %s: %w", graphPath, err)
				}
				g = &build.Result{Graph: sg.ToGraph()}
			} else if len(roots) > 0 {
				res, err := build.BuildGraph(cmd.Context(), build.Config{Roots: roots, Hooks: hooks.None})
				if err != nil {
					return fmt.Errorf("validate: %w", err)
				}
				g = res
			} else {
				return fmt.Errorf("validate: either --graph or one or more roots is required")
			}

			loader := rpc.CurrentLoader()
			if loader == nil {
				return fmt.Errorf("validate: no loader adapter registered for this host runtime")
			}
			m, err := parseValidateMode(mode)
			if err != nil {
				return err
			}
			report, err := validate.Run(cmd.Context(), g.Graph, loader, testMIDs(g), validate.Options{
				Mode:        m,
				Concurrency: concurrency,
			})
			if report != nil {
				for _, d := range report.Diagnostics {
					log.Printf("missing edge: %s -> %s (hinted=%v)", d.Importer, d.Imported, d.Hinted)
				}
			}
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "Validate against a previously saved graph instead of rebuilding")
	cmd.Flags().StringArrayVar(&roots, "root", nil, "Source root to scan when --graph is not given")
	cmd.Flags().StringVar(&mode, "mode", "warn", "Validation mode: strict, warn, or disabled")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent loader drives")
	return cmd
}

func parseValidateMode(s string) (validate.Mode, error) {
	switch s {
	case "strict":
		return validate.Strict, nil
	case "warn", "":
		return validate.Warn, nil
	case "disabled":
		return validate.Disabled, nil
	default:
		return 0, fmt.Errorf("validate: unknown mode %q", s)
	}
}
