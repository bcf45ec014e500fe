// Package resolve implements the Module Resolver: it assigns canonical
// module identifiers to discovered files and converts each raw import
// reference emitted by the Import Extractor into one or more graph edges.
package resolve

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/importprune/prune/model"
)

// MIDFor computes the canonical MID for path relative to root, and reports
// whether the file is a package marker (e.g. __init__.py), whose MID names
// the enclosing directory itself rather than a submodule.
func MIDFor(path, root string) (mid model.MID, isPackage bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
		isPackage = true
	}
	return model.MID(strings.Join(parts, ".")), isPackage
}

// A Warning records a resolution failure for a single reference. Resolution
// continues past a Warning; it is never fatal for the remainder of the file.
type Warning struct {
	File string
	Ref  model.RawImport
	Msg  string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Ref.Line, w.Msg)
}

// An Edge is a resolved dependency from one MID to another, carrying the
// context flags of the reference that produced it.
type Edge struct {
	From, To      model.MID
	Hinted        bool
	TypecheckOnly bool
	// Internal reports whether To was resolved against a file known to the
	// Index at resolution time. External dependencies still produce an
	// edge, preserved as written, but are not expected to ever gain an
	// internal definition.
	Internal bool
}

// Index is the global MID <-> path index the Resolver consults to decide
// internal/external precedence, wildcard expansion, and duplicate-root
// tie-breaks.
type Index struct {
	rootOrder map[string]int
	owner     map[model.MID]string
	isPackage map[model.MID]bool
	children  map[model.MID][]model.MID
	byPath    map[string]model.MID
	pathOf    map[model.MID]string
	Warnings  []*Warning
}

// NewIndex creates an Index whose root precedence follows the order roots
// are given in, matching configuration order for duplicate-root tie-breaks.
func NewIndex(roots []string) *Index {
	order := make(map[string]int, len(roots))
	for i, r := range roots {
		order[r] = i
	}
	return &Index{
		rootOrder: order,
		owner:     make(map[model.MID]string),
		isPackage: make(map[model.MID]bool),
		children:  make(map[model.MID][]model.MID),
		byPath:    make(map[string]model.MID),
		pathOf:    make(map[model.MID]string),
	}
}

// MIDForPath reports the MID registered for path, if any.
func (ix *Index) MIDForPath(path string) (model.MID, bool) {
	mid, ok := ix.byPath[path]
	return mid, ok
}

// PathForMID reports the path registered for mid, if any.
func (ix *Index) PathForMID(mid model.MID) (string, bool) {
	path, ok := ix.pathOf[mid]
	return path, ok
}

// Register records a file's MID as internal to root. If a different root
// already owns the same MID, the earlier-configured root wins and the
// collision is recorded as a warning in ix.Warnings; the losing file's path
// is not registered.
func (ix *Index) Register(root string, mid model.MID, isPackage bool, path string) {
	if existing, ok := ix.owner[mid]; ok && existing != root {
		winner := existing
		if ix.rootOrder[root] < ix.rootOrder[existing] {
			winner = root
		}
		ix.Warnings = append(ix.Warnings, &Warning{
			File: path,
			Msg:  fmt.Sprintf("duplicate module %q claimed by roots %q and %q; %q wins", mid, existing, root, winner),
		})
		if winner != existing {
			ix.owner[mid] = root
			ix.isPackage[mid] = isPackage
			ix.byPath[path] = mid
			ix.pathOf[mid] = path
		}
		return
	}
	ix.owner[mid] = root
	ix.isPackage[mid] = isPackage
	ix.byPath[path] = mid
	ix.pathOf[mid] = path
	if parent, ok := mid.Ancestor(1); ok {
		ix.children[parent] = appendSorted(ix.children[parent], mid)
	}
}

func appendSorted(list []model.MID, mid model.MID) []model.MID {
	for _, m := range list {
		if m == mid {
			return list
		}
	}
	list = append(list, mid)
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// IsInternal reports whether mid names a file known to the Index.
func (ix *Index) IsInternal(mid model.MID) bool {
	_, ok := ix.owner[mid]
	return ok
}

// IsPackage reports whether mid is internal and is a package (as opposed to
// a leaf module).
func (ix *Index) IsPackage(mid model.MID) bool {
	return ix.isPackage[mid]
}

// Children returns the direct internal submodules/subpackages of mid,
// sorted for deterministic wildcard expansion.
func (ix *Index) Children(mid model.MID) []model.MID {
	return ix.children[mid]
}

// containingPackage returns the MID of the package that owner's relative
// imports are resolved against: owner itself if owner is a package, or
// owner's parent otherwise.
func containingPackage(owner model.MID, ownerIsPackage bool) (model.MID, bool) {
	if ownerIsPackage {
		return owner, true
	}
	return owner.Ancestor(1)
}

// Resolve converts every raw import reference belonging to owner into zero
// or more edges, dispatching on the reference's kind.
func Resolve(ix *Index, file *model.SourceFile, opts *model.Options) ([]Edge, []*Warning) {
	var edges []Edge
	var warnings []*Warning

	warn := func(ref model.RawImport, msg string) {
		warnings = append(warnings, &Warning{File: file.Path, Ref: ref, Msg: msg})
	}
	emit := func(ref model.RawImport, to model.MID) {
		edges = append(edges, Edge{
			From:          file.MID,
			To:            to,
			Hinted:        ref.Hinted,
			TypecheckOnly: ref.TypecheckOnly,
			Internal:      ix.IsInternal(to),
		})
	}

	for _, ref := range file.Imports {
		if ref.TypecheckOnly && (opts == nil || !opts.IncludeTypechecking) {
			continue
		}
		switch ref.Kind {
		case model.Absolute:
			resolveNamed(ix, model.MID(ref.Payload), ref.Name, ref, emit)

		case model.Relative:
			pkg, ok := containingPackage(file.MID, file.IsPackage)
			if !ok {
				warn(ref, "relative import has no containing package")
				continue
			}
			base, ok := pkg.Ancestor(ref.Level - 1)
			if !ok {
				warn(ref, "relative import level exceeds package depth")
				continue
			}
			if ref.Payload != "" {
				base = base.Join(ref.Payload)
			}
			resolveNamed(ix, base, ref.Name, ref, emit)

		case model.Wildcard:
			var base model.MID
			if ref.Level > 0 {
				pkg, ok := containingPackage(file.MID, file.IsPackage)
				if !ok {
					warn(ref, "relative wildcard import has no containing package")
					continue
				}
				b, ok := pkg.Ancestor(ref.Level - 1)
				if !ok {
					warn(ref, "relative wildcard import level exceeds package depth")
					continue
				}
				base = b
				if ref.Payload != "" {
					base = base.Join(ref.Payload)
				}
			} else {
				base = model.MID(ref.Payload)
			}
			if ix.IsInternal(base) {
				// An internal package with no direct submodules expands to
				// zero edges: this is not an error, just an empty wildcard.
				for _, c := range ix.Children(base) {
					emit(ref, c)
				}
			} else {
				emit(ref, base)
			}

		default:
			warn(ref, "unrecognized import kind")
		}
	}
	return edges, warnings
}

// resolveNamed applies the submodule-shorthand rule to a
// "from <module> import <name>" style reference: if module is internal and
// module.name is a known internal submodule, the edge targets module.name;
// otherwise the reference is preserved as written, targeting module itself.
func resolveNamed(ix *Index, module model.MID, name string, ref model.RawImport, emit func(model.RawImport, model.MID)) {
	if name == "" {
		emit(ref, module)
		return
	}
	candidate := module.Join(name)
	if ix.IsInternal(module) && ix.IsInternal(candidate) {
		emit(ref, candidate)
		return
	}
	emit(ref, module)
}
