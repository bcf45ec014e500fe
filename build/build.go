// Package build orchestrates a full graph build: the Walker, Extractor, and
// Resolver run as a bounded worker-pool pipeline feeding a single Graph
// Store.
package build

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/creachadair/taskgroup"

	"github.com/importprune/prune/extract"
	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/hooks"
	"github.com/importprune/prune/model"
	"github.com/importprune/prune/resolve"
	"github.com/importprune/prune/walk"
)

// Config controls a build.
type Config struct {
	Roots          []string
	IgnorePatterns []string
	Concurrency    int // <= 0 defaults to runtime.GOMAXPROCS(0)
	Hooks          hooks.Hooks
	Options        model.Options
}

// Result is the outcome of a full build.
type Result struct {
	Graph      *graph.Graph
	Index      *resolve.Index
	Warnings   []error
	SummaryHash []byte
}

// BuildGraph walks cfg.Roots, extracts imports from every discovered file in
// parallel, resolves each file's references against a global index, and
// assembles the resulting edges into a Graph Store.
func BuildGraph(ctx context.Context, cfg Config) (*Result, error) {
	h := cfg.Hooks
	if h == nil {
		h = hooks.None
	}

	roots := append(append([]string(nil), cfg.Roots...), h.SourceRoots()...)
	ignore := append(append([]string(nil), cfg.IgnorePatterns...), h.IgnorePatterns()...)
	opts := cfg.Options
	if h.IncludeTypechecking() {
		opts.IncludeTypechecking = true
	}

	wres, err := walk.Walk(ctx, walk.Options{
		Roots:          roots,
		IgnorePatterns: ignore,
		Concurrency:    cfg.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("build: walking source roots: %w", err)
	}

	ix := resolve.NewIndex(roots)
	var (
		mu      sync.Mutex
		files   []*model.SourceFile
		sumHash = newSummaryHasher()
	)

	// First pass: read, extract, and assign MIDs. Concurrency is bounded by
	// a taskgroup.
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	grp, run := taskgroup.New(nil).Limit(limit)

	var warnings []error
	var warnMu sync.Mutex
	addWarning := func(err error) {
		warnMu.Lock()
		warnings = append(warnings, err)
		warnMu.Unlock()
	}
	for _, w := range wres.Warnings {
		addWarning(w)
	}

	for _, f := range wres.Files {
		f := f
		run(func() error {
			content, err := os.ReadFile(f.Path)
			if err != nil {
				addWarning(fmt.Errorf("reading %s: %w", f.Path, err))
				return nil
			}

			mid, isPackage := resolve.MIDFor(f.Path, f.PackageRoot)

			res, err := extract.Extract(ctx, f.Path, content, &opts)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", f.Path, err)
			}

			sf := &model.SourceFile{
				Path:        f.Path,
				PackageRoot: f.PackageRoot,
				MID:         mid,
				IsPackage:   isPackage,
				Imports:     res.Imports,
				ParseError:  res.ParseError,
			}
			if opts.HashSourceFiles {
				sf.Digest = model.HashBytes(content)
			}

			mu.Lock()
			files = append(files, sf)
			sumHash.add(f.Path, content)
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("build: extracting sources: %w", err)
	}

	// Register every file's MID before resolving any reference, so that
	// internal/external precedence can be decided correctly regardless of
	// file processing order.
	for _, sf := range files {
		ix.Register(sf.PackageRoot, sf.MID, sf.IsPackage, sf.Path)
	}
	warnings = append(warnings, asErrors(ix.Warnings)...)

	g := graph.New()
	for _, sf := range files {
		g.AddNode(sf.MID)
		if sf.IsTestFile() {
			g.MarkTest(sf.MID)
		}
	}

	for _, sf := range files {
		edges, rwarnings := resolve.Resolve(ix, sf, &opts)
		for _, w := range rwarnings {
			warnings = append(warnings, w)
		}
		for _, e := range edges {
			g.AddEdge(e.From, e.To)
		}
	}

	hooks.Apply(h, g)

	return &Result{
		Graph:       g,
		Index:       ix,
		Warnings:    warnings,
		SummaryHash: sumHash.sum(),
	}, nil
}

func asErrors(ws []*resolve.Warning) []error {
	out := make([]error, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out
}
