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

// Package graph implements the Graph Store: the in-memory directed graph of
// module dependencies, with a maintained reverse index and deterministic,
// cycle-safe transitive closure queries.
//
// Traversal uses iterative worklists over bitbucket.org/creachadair/stringset
// rather than recursion. The graph is kept resident in memory with an
// explicit reverse index, since closure_in is a hot path for test
// selection rather than an occasional reporting query.
package graph

import (
	"sync"

	"bitbucket.org/creachadair/stringset"
	"github.com/importprune/prune/model"
)

// A Graph is a directed graph of module dependencies. The zero value is not
// usable; construct one with New. A Graph is safe for concurrent use: reads
// (Out, In, ClosureOut, ClosureIn, AffectedTests) may run in parallel with
// each other, and are serialized against mutations (AddEdge, RemoveEdge) by
// an RWMutex, so a build's write phase and a query's read phase never race.
type Graph struct {
	mu sync.RWMutex

	nodes stringset.Set
	tests stringset.Set
	out   map[model.MID]stringset.Set
	in    map[model.MID]stringset.Set

	// preHooks/postHooks implement dynamic-dependency augmentation hooks.
	// preHooks are virtual extra successors consulted only during closure
	// expansion, never exposed by Out. postHooks name extra MIDs folded
	// into a closure result whenever that result already contains the
	// hooked node.
	preHooks  map[model.MID]stringset.Set
	postHooks map[model.MID]stringset.Set

	// closureInCache memoizes ClosureIn per single-node query; invalidated
	// wholesale on any edge or hook mutation. cacheMu guards its entries
	// among concurrent readers holding mu's read lock.
	cacheMu        sync.Mutex
	closureInCache map[model.MID]stringset.Set
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:          stringset.New(),
		tests:          stringset.New(),
		out:            make(map[model.MID]stringset.Set),
		in:             make(map[model.MID]stringset.Set),
		preHooks:       make(map[model.MID]stringset.Set),
		postHooks:      make(map[model.MID]stringset.Set),
		closureInCache: make(map[model.MID]stringset.Set),
	}
}

// AddNode registers mid as a known node, even if it has no edges yet.
func (g *Graph) AddNode(mid model.MID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes.Add(string(mid))
}

// MarkTest records mid as belonging to the registered test-file set used by
// AffectedTests.
func (g *Graph) MarkTest(mid model.MID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes.Add(string(mid))
	g.tests.Add(string(mid))
}

// IsTest reports whether mid was registered via MarkTest.
func (g *Graph) IsTest(mid model.MID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tests.Contains(string(mid))
}

// AddEdge records a dependency from -> to. Idempotent.
func (g *Graph) AddEdge(from, to model.MID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes.Add(string(from))
	g.nodes.Add(string(to))
	g.addOut(from, to)
	g.addIn(to, from)
	g.invalidateClosureCache()
}

func (g *Graph) addOut(from, to model.MID) {
	set, ok := g.out[from]
	if !ok {
		set = stringset.New()
		g.out[from] = set
	}
	set.Add(string(to))
}

func (g *Graph) addIn(to, from model.MID) {
	set, ok := g.in[to]
	if !ok {
		set = stringset.New()
		g.in[to] = set
	}
	set.Add(string(from))
}

// RemoveEdge deletes the edge from -> to. No-op if the edge is absent.
func (g *Graph) RemoveEdge(from, to model.MID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.out[from]; ok {
		set.Discard(string(to))
	}
	if set, ok := g.in[to]; ok {
		set.Discard(string(from))
	}
	g.invalidateClosureCache()
}

func (g *Graph) invalidateClosureCache() {
	g.closureInCache = make(map[model.MID]stringset.Set)
}

// Out returns the direct successors of node.
func (g *Graph) Out(node model.MID) stringset.Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.out[node].Clone()
}

// In returns the direct predecessors of node.
func (g *Graph) In(node model.MID) stringset.Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.in[node].Clone()
}

// SetPreClosureHook installs extra forward reference payloads for mid,
// consulted whenever closure expansion visits mid, before any other
// successor edges. Passing no payloads removes the hook. A second call for
// a MID that already has a hook installed composes by union rather than
// replacing it, so independent hook sources naming the same MID accumulate.
func (g *Graph) SetPreClosureHook(mid model.MID, payloads ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(payloads) == 0 {
		delete(g.preHooks, mid)
		g.invalidateClosureCache()
		return
	}
	if existing, ok := g.preHooks[mid]; ok {
		existing.Add(payloads...)
	} else {
		g.preHooks[mid] = stringset.New(payloads...)
	}
	g.invalidateClosureCache()
}

// SetPostClosureHook installs extra MIDs to be folded into the closure
// result of any seed whose closure already reaches mid. Passing no targets
// removes the hook. A second call for a MID that already has a hook
// installed composes by union rather than replacing it, so independent
// hook sources naming the same MID accumulate.
func (g *Graph) SetPostClosureHook(mid model.MID, targets ...model.MID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(targets) == 0 {
		delete(g.postHooks, mid)
		g.invalidateClosureCache()
		return
	}
	existing, ok := g.postHooks[mid]
	if !ok {
		existing = stringset.New()
		g.postHooks[mid] = existing
	}
	for _, t := range targets {
		existing.Add(string(t))
	}
	g.invalidateClosureCache()
}

// ClosureOut computes the transitive forward closure of seeds: every node
// reachable from any seed by following dependency edges (plus pre-closure
// hooks), augmented by any post-closure hooks whose hooked node is reached.
// Traversal is an iterative worklist and tolerates cycles.
func (g *Graph) ClosureOut(seeds ...model.MID) stringset.Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closure(seeds, g.out)
}

// ClosureIn computes the transitive reverse closure of seeds: every node
// that can reach any seed by following dependency edges. A single-seed
// result is cached until the next mutation.
func (g *Graph) ClosureIn(seeds ...model.MID) stringset.Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(seeds) == 1 {
		g.cacheMu.Lock()
		cached, ok := g.closureInCache[seeds[0]]
		g.cacheMu.Unlock()
		if ok {
			return cached.Clone()
		}
		result := g.closure(seeds, g.in)
		g.cacheMu.Lock()
		g.closureInCache[seeds[0]] = result
		g.cacheMu.Unlock()
		return result.Clone()
	}
	return g.closure(seeds, g.in)
}

// closure runs the shared iterative worklist traversal over adj (either
// g.out for forward closure or g.in for reverse closure), then applies
// post-closure augmentation to a fixed point.
func (g *Graph) closure(seeds []model.MID, adj map[model.MID]stringset.Set) stringset.Set {
	seen := stringset.New()
	queue := append([]model.MID(nil), seeds...)
	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if seen.Contains(string(next)) {
			continue
		}
		seen.Add(string(next))

		for _, succ := range adj[next].Elements() {
			if !seen.Contains(succ) {
				queue = append(queue, model.MID(succ))
			}
		}
		if hook, ok := g.preHooks[next]; ok {
			for _, succ := range hook.Elements() {
				if !seen.Contains(succ) {
					queue = append(queue, model.MID(succ))
				}
			}
		}
	}

	// Post-closure augmentation to a fixed point: an added node may itself
	// be a hooked node.
	for changed := true; changed; {
		changed = false
		for hooked, extra := range g.postHooks {
			if !seen.Contains(string(hooked)) {
				continue
			}
			for _, e := range extra.Elements() {
				if !seen.Contains(e) {
					seen.Add(e)
					changed = true
				}
			}
		}
	}
	return seen
}

// AffectedTests resolves each changed MID to its reverse closure, unions
// the results, and intersects with the registered test-file set. Seeds not
// present in the graph contribute no nodes but are not an error; callers
// implementing a full-suite fallback detect an unresolved changed file
// before calling AffectedTests.
func (g *Graph) AffectedTests(changed ...model.MID) stringset.Set {
	reached := g.ClosureIn(changed...)
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := stringset.New()
	for _, mid := range reached.Elements() {
		if g.tests.Contains(mid) {
			result.Add(mid)
		}
	}
	// A changed file that is itself a test is affected by its own change.
	for _, c := range changed {
		if g.tests.Contains(string(c)) {
			result.Add(string(c))
		}
	}
	return result
}

// Nodes returns every node registered in the graph, whether by AddEdge,
// AddNode, or MarkTest.
func (g *Graph) Nodes() stringset.Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes.Clone()
}

// HasNode reports whether mid has been registered in the graph.
func (g *Graph) HasNode(mid model.MID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes.Contains(string(mid))
}

// An EdgePair is a single (from, to) dependency edge, used by Dump/Load to
// move a graph's contents through the Graph Serializer.
type EdgePair struct{ From, To model.MID }

// Dump returns every node, every test node, and every edge currently in g,
// for use by the Graph Serializer. The order of all three is unspecified;
// callers that need a stable on-disk encoding sort before writing.
func (g *Graph) Dump() (nodes []model.MID, tests []model.MID, edges []EdgePair) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes.Elements() {
		nodes = append(nodes, model.MID(n))
	}
	for _, t := range g.tests.Elements() {
		tests = append(tests, model.MID(t))
	}
	for from, succs := range g.out {
		for _, to := range succs.Elements() {
			edges = append(edges, EdgePair{From: from, To: model.MID(to)})
		}
	}
	return nodes, tests, edges
}

// Load replaces g's contents with the given nodes, test nodes, and edges,
// as produced by a prior Dump (typically via the Graph Serializer). Any
// existing hooks and cache entries are cleared.
func (g *Graph) Load(nodes, tests []model.MID, edges []EdgePair) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = stringset.New()
	g.tests = stringset.New()
	g.out = make(map[model.MID]stringset.Set)
	g.in = make(map[model.MID]stringset.Set)
	g.preHooks = make(map[model.MID]stringset.Set)
	g.postHooks = make(map[model.MID]stringset.Set)
	g.closureInCache = make(map[model.MID]stringset.Set)

	for _, n := range nodes {
		g.nodes.Add(string(n))
	}
	for _, t := range tests {
		g.nodes.Add(string(t))
		g.tests.Add(string(t))
	}
	for _, e := range edges {
		g.nodes.Add(string(e.From))
		g.nodes.Add(string(e.To))
		g.addOut(e.From, e.To)
		g.addIn(e.To, e.From)
	}
}
