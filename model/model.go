// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the data structures shared by every stage of the
// import-graph pipeline: module identifiers, source file records, and the
// raw import references the extractor produces.
package model

import (
	"crypto/sha256"
	"io"
	"strings"
)

// A MID (module identifier) is the canonical dotted name of an importable
// unit. Equality is string-exact.
type MID string

// Ancestor returns the MID obtained by dropping the last n dotted
// components of m, and reports whether enough components existed to do so.
func (m MID) Ancestor(n int) (MID, bool) {
	if n == 0 {
		return m, true
	}
	parts := strings.Split(string(m), ".")
	if n >= len(parts) {
		return "", false
	}
	return MID(strings.Join(parts[:len(parts)-n], ".")), true
}

// Join concatenates a parent MID with a dotted suffix.
func (m MID) Join(suffix string) MID {
	if m == "" {
		return MID(suffix)
	} else if suffix == "" {
		return m
	}
	return MID(string(m) + "." + suffix)
}

// ImportKind classifies a raw import reference.
type ImportKind int

// Import kinds recognized by the extractor. These describe the lexical
// shape of the reference, the dimension the Module Resolver dispatches on; whether a reference
// was hinted or typecheck-only is carried
// separately as a context-flag rather than as its own kind, since either
// can apply to a reference of any shape.
const (
	Absolute ImportKind = iota
	Relative
	Wildcard
)

func (k ImportKind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	case Wildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// A RawImport is the tuple (kind, payload, relative-level, context-flags)
// produced by the Import Extractor and consumed by the Module Resolver.
type RawImport struct {
	Kind ImportKind

	// Payload is a dotted name. For Kind == Absolute produced from a plain
	// "import a.b.c" statement it is the full target. For Kind == Wildcard
	// it is the package prefix whose direct submodules should be
	// enumerated. For a "from <module> import <name>" statement it holds
	// just the module part; Name holds the imported identifier, left
	// unjoined so the Module Resolver can apply the submodule-shorthand
	// rule rather than assuming <module>.<name> is always a valid target.
	Payload string

	// Name is the imported identifier for a "from <module> import <name>"
	// reference. Empty for plain "import a.b.c" references and for
	// wildcards, where Payload alone is the complete target.
	Name string

	// Level is the number of leading package steps to pop for a relative
	// reference. Zero for absolute references.
	Level int

	// Hinted is true when the reference was found nested inside a literal
	// always-false conditional guard. Hinted references are still
	// extracted and resolved; the flag is carried through to diagnostics.
	Hinted bool

	// TypecheckOnly is true when the reference was found nested inside a
	// guard on a typechecker-only constant (e.g. TYPE_CHECKING). Excluded
	// from resolution by default; promoted when Options.IncludeTypechecking
	// is set.
	TypecheckOnly bool

	// Aliased is the local name bound to the import, if any ("import x as y").
	Aliased string

	// Line is the 1-based source line of the reference, for diagnostics.
	Line int
}

// A SourceFile is the record created by the Walker, populated by the
// Extractor, and finalized by the Resolver.
type SourceFile struct {
	Path        string // absolute filesystem path
	PackageRoot string // the source root this file was discovered under
	MID         MID
	// IsPackage is true when the file is a package marker (e.g. __init__.py):
	// its MID names the package itself rather than a submodule, which
	// changes how a relative import level resolves against it.
	IsPackage bool
	Imports   []RawImport
	Digest    []byte // content hash, for cache invalidation

	// ParseError, if non-empty, records a syntax error that left Imports
	// empty for this file. The file is still registered as a graph node.
	ParseError string
}

// IsTestFile reports whether the file should be treated as a test file for
// selection purposes. The target language's convention is a filename
// prefixed or suffixed with "test".
func (s *SourceFile) IsTestFile() bool {
	base := s.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
}

// Options control extraction and resolution behavior. A nil *Options
// behaves as a zero-valued Options struct.
type Options struct {
	IncludeTypechecking bool `json:"includeTypechecking"` // promote typecheck-only imports
	HashSourceFiles     bool `json:"hashSourceFiles"`     // record per-file content digests
	ParseTimeoutMillis  int  `json:"parseTimeoutMillis"`  // 0 means unbounded
}

// Hash produces a SHA-256 digest of the contents of r.
func Hash(r io.Reader) []byte {
	h := sha256.New()
	io.Copy(h, r)
	return h.Sum(nil)
}

// HashBytes produces a SHA-256 digest of b directly.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// IsNonPackage reports whether path is a special directory that should not
// be treated as a package root or descended into by the walker.
func IsNonPackage(base string) bool {
	switch base {
	case ".git", ".hg", ".svn", "__pycache__", ".tox", ".venv", "venv", "node_modules":
		return true
	}
	return false
}

// A PathLabelMap maintains an association between paths and labels, and
// assigns subpaths that do not have their own labels a label based on the
// nearest enclosing parent. It is used to attribute source roots to files
// discovered underneath them.
type PathLabelMap map[string]string

// Add adds path to the map with the specified label.
func (p PathLabelMap) Add(path, label string) { p[path] = label }

// Find looks up the label for path, returning either the path's own label
// if one is defined, or the label of the nearest enclosing parent path.
// Find returns "", false if no matching label is found.
func (p PathLabelMap) Find(path string) (string, bool) {
	for cur := path; cur != ""; {
		if label, ok := p[cur]; ok {
			return label, true
		}
		i := strings.LastIndexByte(cur, '/')
		if i < 0 {
			break
		}
		cur = cur[:i]
	}
	return "", false
}
