package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/importprune/prune/build"
)

func newSelectCmd() *cobra.Command {
	var (
		roots       []string
		ignore      []string
		hookPath    string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "select [changed-files...]",
		Short: "Print the test files affected by the given changed files",
		Long: `select rebuilds the import graph of the given source roots and
prints, one per line, the test files whose outcome could plausibly change
because of the given changed files. An unresolved changed file triggers
the full-suite fallback.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(roots) == 0 {
				return fmt.Errorf("select: at least one --root is required")
			}
			h, err := loadHooks(hookPath)
			if err != nil {
				return err
			}
			res, err := build.BuildGraph(cmd.Context(), build.Config{
				Roots:          roots,
				IgnorePatterns: ignore,
				Concurrency:    concurrency,
				Hooks:          h,
			})
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			return runSelect(cmd.Context(), res, args)
		},
	}
	cmd.Flags().StringArrayVar(&roots, "root", nil, "Source root to scan (repeatable, required)")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "Hierarchical glob ignore pattern (repeatable)")
	cmd.Flags().StringVar(&hookPath, "hook", "", "Load hook overrides from this JSON file")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker pool size (0 means GOMAXPROCS)")
	return cmd
}
