package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/importprune/prune/build"
	"github.com/importprune/prune/hooks"
	"github.com/importprune/prune/model"
	"github.com/importprune/prune/selection"
	"github.com/importprune/prune/serialize"
)

func newGraphCmd() *cobra.Command {
	var (
		graphPath    string
		hookPath     string
		ignore       []string
		concurrency  int
		typechecking bool
		selectFiles  []string
	)
	cmd := &cobra.Command{
		Use:   "graph [roots...]",
		Short: "Build the import-dependency graph of the given source roots",
		Long: `graph walks the given source roots, extracts and resolves every
import reference, and assembles the result into a dependency graph,
corresponding to the build_graph entry point of the core invocation
surface.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHooks(hookPath)
			if err != nil {
				return err
			}
			res, err := build.BuildGraph(cmd.Context(), build.Config{
				Roots:          args,
				IgnorePatterns: ignore,
				Concurrency:    concurrency,
				Hooks:          h,
				Options:        model.Options{IncludeTypechecking: typechecking},
			})
			if err != nil {
				return fmt.Errorf("graph: %w", err)
			}
			for _, w := range res.Warnings {
				log.Printf("warning: %v", w)
			}
			nodes, tests, edges := res.Graph.Dump()
			log.Printf("built graph: %d node(s), %d test file(s), %d edge(s)", len(nodes), len(tests), len(edges))

			if graphPath != "" {
				sg := serialize.FromGraph(res.Graph, res.SummaryHash, serialize.Metadata{
					SourceRoots:    args,
					IgnorePatterns: ignore,
					HookSignatures: []string{hooks.Signature(h)},
				})
				f, err := os.Create(graphPath)
				if err != nil {
					return fmt.Errorf("graph: creating %s: %w", graphPath, err)
				}
				defer f.Close()
				if err := serialize.Write(f, sg); err != nil {
					return fmt.Errorf("graph: writing %s: %w", graphPath, err)
				}
				log.Printf("wrote graph to %s", graphPath)
			}

			if len(selectFiles) > 0 {
				return runSelect(cmd.Context(), res, selectFiles)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "Write the built graph to this path")
	cmd.Flags().StringVar(&hookPath, "hook", "", "Load hook overrides from this JSON file")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "Hierarchical glob ignore pattern (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker pool size (0 means GOMAXPROCS)")
	cmd.Flags().BoolVar(&typechecking, "include-typechecking", false, "Promote typecheck-only imports into the graph")
	cmd.Flags().StringArrayVar(&selectFiles, "select", nil, "Print the test files affected by these changed paths and exit")
	return cmd
}

func loadHooks(path string) (hooks.Hooks, error) {
	if path == "" {
		return hooks.None, nil
	}
	return hooks.FromFile(path)
}

func runSelect(ctx context.Context, res *build.Result, changed []string) error {
	allTests := testMIDs(res)
	result, err := selection.Select(res.Graph, res.Index, allTests, changed)
	if result != nil {
		for _, t := range result.Tests {
			fmt.Println(t)
		}
	}
	if err != nil && (result == nil || !result.FullSuite) {
		return fmt.Errorf("select: %w", err)
	} else if result != nil && result.FullSuite {
		log.Printf("warning: full-suite fallback: %v", err)
	}
	return nil
}

func testMIDs(res *build.Result) []model.MID {
	var out []model.MID
	for _, m := range res.Graph.Nodes().Elements() {
		mid := model.MID(m)
		if res.Graph.IsTest(mid) {
			out = append(out, mid)
		}
	}
	return out
}
