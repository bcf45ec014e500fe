// Package walk implements the Source Discovery Walker: a parallel
// filesystem traversal that enumerates candidate source files beneath a set
// of root directories, respecting ignore rules and assigning each file its
// owning package root.
package walk

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/creachadair/taskgroup"
	"github.com/importprune/prune/model"
	"github.com/karrick/godirwalk"
)

// Options control the behavior of Walk.
type Options struct {
	// Roots are the source root directories to scan. Each becomes a label
	// in the package-root index: files directly and transitively beneath a
	// root are attributed to it unless a nested root shadows them.
	Roots []string

	// Extensions restricts discovery to files with one of these suffixes.
	// A nil or empty slice defaults to {".py"}.
	Extensions []string

	// IgnorePatterns are hierarchical glob-style patterns (as accepted by
	// doublestar.Match) evaluated against each path relative to its root.
	// A matching directory is not descended into; a matching file is
	// skipped.
	IgnorePatterns []string

	// Concurrency bounds the number of configured roots walked concurrently.
	// A value <= 0 defaults to runtime.GOMAXPROCS(0).
	Concurrency int
}

// A File is one discovered candidate source file.
type File struct {
	Path        string // absolute filesystem path
	PackageRoot string // the configured root this file was found under
}

// A Warning records a recoverable traversal failure. Traversal continues
// past a Warning; it is never fatal.
type Warning struct {
	Path string
	Err  error
}

func (w *Warning) Error() string { return fmt.Sprintf("%s: %v", w.Path, w.Err) }

// Result is the outcome of a Walk: the discovered files, sorted by path for
// stable downstream hashing, and any recoverable warnings collected along
// the way.
type Result struct {
	Files    []File
	Warnings []*Warning
}

// Walk enumerates all source files beneath opts.Roots. Each configured root
// is walked by its own task, and those tasks run in parallel; the
// directories beneath a single root are walked sequentially. The returned
// file list is sorted by path so that results are stable across runs for an
// identical tree.
//
// Each configured root is registered in a model.PathLabelMap keyed by its
// own absolute path, so that when one configured root is nested beneath
// another (e.g. a vendored source tree inside a larger one), every file
// underneath the nested root is attributed to the nearest enclosing
// configured root rather than to the outer one, and the outer root's own
// traversal does not descend into the nested root at all (its contents are
// left to the nested root's own walk), so no file is discovered twice.
//
// Symbolic links are followed at most once per resolved target; a second
// encounter with the same target is treated as already-visited and skipped,
// making the traversal cycle-safe.
func Walk(ctx context.Context, opts Options) (*Result, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".py"}
	}
	var mu sync.Mutex
	var files []File
	var warnings []*Warning
	seenTargets := struct {
		sync.Mutex
		m map[string]bool
	}{m: make(map[string]bool)}

	warn := func(path string, err error) {
		mu.Lock()
		warnings = append(warnings, &Warning{Path: path, Err: err})
		mu.Unlock()
	}
	emit := func(path, root string) {
		mu.Lock()
		files = append(files, File{Path: path, PackageRoot: root})
		mu.Unlock()
	}

	labels := make(model.PathLabelMap)
	var absRoots []string
	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root %q: %v", root, err)
		}
		labels.Add(abs, abs)
		absRoots = append(absRoots, abs)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	grp, run := taskgroup.New(nil).Limit(limit)

	for _, abs := range absRoots {
		abs := abs
		run(func() error {
			walkOne(ctx, abs, abs, exts, opts.IgnorePatterns, labels, &seenTargets, warn, emit)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return &Result{Files: files, Warnings: warnings}, nil
}

func walkOne(
	ctx context.Context,
	dir, root string,
	exts, ignore []string,
	labels model.PathLabelMap,
	seen *struct {
		sync.Mutex
		m map[string]bool
	},
	warn func(string, error),
	emit func(path, root string),
) {
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted:            true,
		FollowSymbolicLinks: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rel, _ := filepath.Rel(root, path)
			if matchesAny(ignore, rel) {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			isDir, err := de.IsDirOrSymlinkToDir()
			if err != nil {
				warn(path, err)
				return nil
			}
			if isDir {
				base := filepath.Base(path)
				if model.IsNonPackage(base) {
					return filepath.SkipDir
				}
				// A nested configured root shadows this one: its own
				// walkOne call owns everything beneath it, so stop
				// descending here rather than discovering it twice.
				if label, ok := labels[path]; ok && label != root {
					return filepath.SkipDir
				}
				if de.IsSymlink() {
					target, err := filepath.EvalSymlinks(path)
					if err != nil {
						warn(path, err)
						return filepath.SkipDir
					}
					seen.Lock()
					visited := seen.m[target]
					if !visited {
						seen.m[target] = true
					}
					seen.Unlock()
					if visited {
						return filepath.SkipDir
					}
				}
				return nil
			}

			if !hasAnyExt(path, exts) {
				return nil
			}
			owner, ok := labels.Find(filepath.Dir(path))
			if !ok {
				owner = root
			}
			emit(path, owner)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			warn(path, err)
			return godirwalk.SkipNode
		},
	})
	if err != nil && err != context.Canceled {
		warn(dir, err)
	}
}

func hasAnyExt(path string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(path, e) {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
