// Package hooks defines the fixed capability interface user configuration
// overrides through: a single Go interface with a no-op default
// implementation, in the spirit of an Options-struct configuration pattern
// with field-by-field merge.
package hooks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/importprune/prune/model"
)

// Hooks is the capability surface a build can be customized through.
type Hooks interface {
	// SourceRoots lists additional source root directories.
	SourceRoots() []string

	// IgnorePatterns lists additional hierarchical glob ignore patterns.
	IgnorePatterns() []string

	// IncludeTypechecking reports whether typecheck-only imports should be
	// promoted into the graph.
	IncludeTypechecking() bool

	// DynamicDependencies maps a MID or file path to extra reference
	// payloads, injected as the Graph Store's pre-closure augmentation.
	DynamicDependencies() map[string][]string

	// DynamicDependenciesAtLeaves maps a MID to extra MIDs folded into the
	// closure result of any seed that reaches it, the Graph Store's
	// post-closure augmentation.
	DynamicDependenciesAtLeaves() map[model.MID][]model.MID
}

// Defaults implements Hooks with no overrides. Embed it in a partial
// implementation to satisfy the interface without redefining every method.
type Defaults struct{}

func (Defaults) SourceRoots() []string                    { return nil }
func (Defaults) IgnorePatterns() []string                 { return nil }
func (Defaults) IncludeTypechecking() bool                { return false }
func (Defaults) DynamicDependencies() map[string][]string { return nil }
func (Defaults) DynamicDependenciesAtLeaves() map[model.MID][]model.MID { return nil }

// None is the Hooks value used when no user overrides are configured.
var None Hooks = Defaults{}

// Apply installs h's augmentation hooks onto g: DynamicDependencies become
// pre-closure hooks, DynamicDependenciesAtLeaves become post-closure hooks.
// Each DynamicDependencies key is used as a MID exactly as written; a
// file-path key is not translated to the MID of that file, so it only takes
// effect if the graph has a node of that exact name.
func Apply(h Hooks, g interface {
	SetPreClosureHook(mid model.MID, payloads ...string)
	SetPostClosureHook(mid model.MID, targets ...model.MID)
}) {
	for key, payloads := range h.DynamicDependencies() {
		g.SetPreClosureHook(model.MID(key), payloads...)
	}
	for mid, targets := range h.DynamicDependenciesAtLeaves() {
		g.SetPostClosureHook(mid, targets...)
	}
}

// Signature computes a stable content hash of h's configuration, recorded
// in the Graph Serializer's metadata block so a loaded graph can be
// distrusted if hook configuration changed since it was built.
func Signature(h Hooks) string {
	var parts []string
	parts = append(parts, "roots="+strings.Join(sortedCopy(h.SourceRoots()), ","))
	parts = append(parts, "ignore="+strings.Join(sortedCopy(h.IgnorePatterns()), ","))
	if h.IncludeTypechecking() {
		parts = append(parts, "typechecking=1")
	} else {
		parts = append(parts, "typechecking=0")
	}

	var depKeys []string
	deps := h.DynamicDependencies()
	for k := range deps {
		depKeys = append(depKeys, k)
	}
	sort.Strings(depKeys)
	for _, k := range depKeys {
		parts = append(parts, "dep:"+k+"="+strings.Join(sortedCopy(deps[k]), ","))
	}

	var leafKeys []model.MID
	leaves := h.DynamicDependenciesAtLeaves()
	for k := range leaves {
		leafKeys = append(leafKeys, k)
	}
	sort.Slice(leafKeys, func(i, j int) bool { return leafKeys[i] < leafKeys[j] })
	for _, k := range leafKeys {
		targets := make([]string, len(leaves[k]))
		for i, t := range leaves[k] {
			targets[i] = string(t)
		}
		parts = append(parts, "leaf:"+string(k)+"="+strings.Join(sortedCopy(targets), ","))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// FileHooks is a Hooks implementation backed by a JSON configuration file,
// for when overrides are supplied from the command line (the CLI's --hook
// flag) rather than compiled in.
type FileHooks struct {
	Roots            []string                   `json:"sourceRoots"`
	Ignore           []string                   `json:"ignorePatterns"`
	Typechecking     bool                       `json:"includeTypechecking"`
	Dependencies     map[string][]string        `json:"dynamicDependencies"`
	LeafDependencies map[model.MID][]model.MID `json:"dynamicDependenciesAtLeaves"`
}

func (f *FileHooks) SourceRoots() []string                    { return f.Roots }
func (f *FileHooks) IgnorePatterns() []string                 { return f.Ignore }
func (f *FileHooks) IncludeTypechecking() bool                { return f.Typechecking }
func (f *FileHooks) DynamicDependencies() map[string][]string { return f.Dependencies }
func (f *FileHooks) DynamicDependenciesAtLeaves() map[model.MID][]model.MID {
	return f.LeafDependencies
}

// FromFile loads a FileHooks from the JSON document at path.
func FromFile(path string) (Hooks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hooks: reading %s: %w", path, err)
	}
	var fh FileHooks
	if err := json.Unmarshal(data, &fh); err != nil {
		return nil, fmt.Errorf("hooks: parsing %s: %w", path, err)
	}
	return &fh, nil
}
