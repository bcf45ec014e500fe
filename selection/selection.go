// Package selection implements the Selection Engine: it maps a set of
// changed file paths to the ordered list of test files that must be run.
//
// The traversal itself is delegated to graph.Graph.AffectedTests, which
// walks the dependency graph's reverse index to find importers of a
// changed file; this package narrows the result to the registered
// test-file set and sorts it.
package selection

import (
	"fmt"
	"sort"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

// A PathResolver maps between a file's path and its MID, as assigned during
// the most recent build. Callers typically back this with the same index
// used by the Resolver.
type PathResolver interface {
	MIDForPath(path string) (model.MID, bool)
	PathForMID(mid model.MID) (string, bool)
}

// Result is the outcome of a selection run.
type Result struct {
	// Tests is the ordered list of test file paths that must execute,
	// sorted ascending for a stable, deterministic report.
	Tests []string

	// FullSuite is true when one or more changed files failed to resolve
	// to a graph node, triggering the full-suite fallback.
	FullSuite bool

	// Unresolved lists the changed paths that triggered the fallback.
	Unresolved []string
}

// Select computes the set of test files affected by changed. An unresolved
// changed file (e.g. one that was deleted, or never seen by the Resolver)
// triggers a full-suite fallback: every registered test is returned, and
// the offending paths are reported for diagnostics.
func Select(g *graph.Graph, resolver PathResolver, allTests []model.MID, changed []string) (*Result, error) {
	if len(changed) == 0 {
		return &Result{}, nil
	}

	var mids []model.MID
	var unresolved []string
	for _, path := range changed {
		mid, ok := resolver.MIDForPath(path)
		if !ok {
			unresolved = append(unresolved, path)
			continue
		}
		mids = append(mids, mid)
	}

	if len(unresolved) > 0 {
		return &Result{
			Tests:      pathsOf(resolver, allTests),
			FullSuite:  true,
			Unresolved: unresolved,
		}, fmt.Errorf("selection: %d changed file(s) did not resolve to a graph node: %v", len(unresolved), unresolved)
	}

	affected := g.AffectedTests(mids...)
	var tests []model.MID
	for _, m := range affected.Elements() {
		tests = append(tests, model.MID(m))
	}
	return &Result{Tests: pathsOf(resolver, tests)}, nil
}

func pathsOf(resolver PathResolver, mids []model.MID) []string {
	paths := make([]string, 0, len(mids))
	for _, mid := range mids {
		if p, ok := resolver.PathForMID(mid); ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}
