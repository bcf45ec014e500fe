// Package validate implements the Dynamic Validator: it drives the
// language's import machinery for each test file and checks the edges that
// actually fired against the static closure, to catch dependencies the
// static graph missed (reflective imports, plugin registries, and the
// like).
//
// Fan-out across test files uses golang.org/x/sync/errgroup, bounded by a
// caller-supplied concurrency limit, following this module's worker-pool
// idiom elsewhere (walk.Walk's taskgroup-based fan-out) adapted to a
// collect-results shape errgroup is suited for.
package validate

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

// Mode selects the failure policy of a validation run.
type Mode int

const (
	Disabled Mode = iota
	Warn
	Strict
)

// A RecordedEdge is one (importer, imported) pair observed by the
// language's loader interceptor while driving a single test file.
type RecordedEdge struct {
	Importer model.MID
	Imported model.MID
	Hinted   bool
}

// LoaderAdapter abstracts the target language's import-time interception
// capability. Implementations install a loader hook and report every
// successful import triggered while driving a single test file.
type LoaderAdapter interface {
	DriveOne(ctx context.Context, test model.MID) ([]RecordedEdge, error)
}

// A Diagnostic describes a dynamic edge absent from the static closure.
type Diagnostic struct {
	Importer model.MID
	Imported model.MID
	Hinted   bool
}

// Report is the outcome of a validation run.
type Report struct {
	Diagnostics []Diagnostic
}

func (r *Report) HasDiagnostics() bool { return len(r.Diagnostics) > 0 }

// Error is returned by Run in Strict mode when diagnostics were produced.
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: %d dynamic edge(s) missing from the static closure", len(e.Diagnostics))
}

// Options control a validation run.
type Options struct {
	Mode        Mode
	Concurrency int // <= 0 means unbounded
}

// Run drives loader for every test in tests, compares each recorded edge
// against the static ClosureOut of its importer, and reports every dynamic
// edge the static graph does not already contain.
//
// In Disabled mode the loader is never installed and Run returns
// immediately. In Strict mode, any diagnostic makes Run return a non-nil
// *Error alongside the report. In Warn mode diagnostics are returned and
// never make Run fail. In every enabled mode, an error from the loader
// while driving a test makes Run return that error and no report.
func Run(ctx context.Context, g *graph.Graph, loader LoaderAdapter, tests []model.MID, opts Options) (*Report, error) {
	if opts.Mode == Disabled {
		return &Report{}, nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		grp.SetLimit(opts.Concurrency)
	}

	results := make([][]RecordedEdge, len(tests))
	for i, test := range tests {
		i, test := i, test
		grp.Go(func() error {
			edges, err := loader.DriveOne(gctx, test)
			if err != nil {
				return fmt.Errorf("driving test %s: %w", test, err)
			}
			results[i] = edges
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, edges := range results {
		for _, e := range edges {
			closure := g.ClosureOut(e.Importer)
			if !closure.Contains(string(e.Imported)) {
				report.Diagnostics = append(report.Diagnostics, Diagnostic{
					Importer: e.Importer,
					Imported: e.Imported,
					Hinted:   e.Hinted,
				})
			}
		}
	}
	sort.Slice(report.Diagnostics, func(i, j int) bool {
		if report.Diagnostics[i].Importer != report.Diagnostics[j].Importer {
			return report.Diagnostics[i].Importer < report.Diagnostics[j].Importer
		}
		return report.Diagnostics[i].Imported < report.Diagnostics[j].Imported
	})

	if opts.Mode == Strict && report.HasDiagnostics() {
		return report, &Error{Diagnostics: report.Diagnostics}
	}
	return report, nil
}
