// Package rpc exposes the core invocation surface (build, load, save,
// select, validate) as a github.com/creachadair/jrpc2 service, for
// test-runner plugins and CLI front-ends to call over any jrpc2 channel
// (stdio, unix socket, etc).
//
// A Server struct holds open storage handles plus an Options struct,
// methods return *jrpc2.Error results built from registered error codes,
// and New validates required options and opens the backing store.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/code"
	"github.com/creachadair/jrpc2/handler"

	"github.com/importprune/prune/build"
	"github.com/importprune/prune/hooks"
	"github.com/importprune/prune/model"
	"github.com/importprune/prune/resolve"
	"github.com/importprune/prune/selection"
	"github.com/importprune/prune/serialize"
	"github.com/importprune/prune/storage"
	"github.com/importprune/prune/validate"
)

// GraphNotFound is the error code returned when a requested graph snapshot
// key is not present in storage.
var GraphNotFound = code.Register(404, "graph not found")

// Options control the behavior of a Server.
type Options struct {
	// GraphDB is the path to the BadgerDB-backed snapshot store (required).
	GraphDB string

	// ReadOnly opens GraphDB without permitting Save.
	ReadOnly bool

	// Concurrency is stored with the server but not consulted by Build or
	// Validate; each of those uses the Concurrency field of its own request.
	Concurrency int
}

// New constructs a Server from opts, opening its snapshot store. The
// caller must call Close when the server is no longer needed.
func New(opts Options) (*Server, error) {
	if opts.GraphDB == "" {
		return nil, errors.New("rpc: no graph database")
	}
	mode := storage.ReadWrite
	if opts.ReadOnly {
		mode = storage.ReadOnly
	}
	st, err := storage.Open(opts.GraphDB, mode)
	if err != nil {
		return nil, fmt.Errorf("rpc: opening graph database: %v", err)
	}
	return &Server{opts: opts, store: st}, nil
}

// Server implements the core invocation surface as jrpc2-compatible
// methods, one exported method per RPC.
type Server struct {
	opts  Options
	store *storage.Store

	mu     sync.Mutex
	graphs map[string]*build.Result // key -> most recently built/loaded graph
}

// Close releases the server's storage handles.
func (s *Server) Close() error { return s.store.Close() }

// Methods returns the jrpc2 assigner for s's exported methods, suitable
// for server.Loop(acc, s.Methods(), ...).
func (s *Server) Methods() jrpc2.Assigner { return handler.NewService(s) }

func (s *Server) cache(key string) *build.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graphs == nil {
		return nil
	}
	return s.graphs[key]
}

func (s *Server) setCache(key string, r *build.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graphs == nil {
		s.graphs = make(map[string]*build.Result)
	}
	s.graphs[key] = r
}

// BuildReq is the request parameter to Build.
type BuildReq struct {
	Key            string   `json:"key"`            // snapshot key to save under, optional
	Roots          []string `json:"roots"`          // source roots to scan
	IgnorePatterns []string `json:"ignorePatterns"` // ignore globs
	Concurrency    int      `json:"concurrency"`
	Save           bool     `json:"save"` // persist the result under Key
}

// BuildRsp is the response from a successful Build call.
type BuildRsp struct {
	Key        string `json:"key"`
	NumNodes   int    `json:"numNodes"`
	NumTests   int    `json:"numTests"`
	NumEdges   int    `json:"numEdges"`
	NumWarning int    `json:"numWarnings"`
}

// Build scans req.Roots into a fresh graph and, if req.Save is set,
// persists the resulting snapshot under req.Key.
func (s *Server) Build(ctx context.Context, req *BuildReq) (*BuildRsp, error) {
	if len(req.Roots) == 0 {
		return nil, jrpc2.Errorf(code.InvalidParams, "no source roots given")
	}
	res, err := build.BuildGraph(ctx, build.Config{
		Roots:          req.Roots,
		IgnorePatterns: req.IgnorePatterns,
		Concurrency:    req.Concurrency,
		Hooks:          hooks.None,
	})
	if err != nil {
		return nil, jrpc2.Errorf(code.SystemError, "build: %v", err)
	}
	nodes, tests, edges := res.Graph.Dump()

	key := req.Key
	if key == "" {
		key = req.Roots[0]
	}
	s.setCache(key, res)

	if req.Save {
		sg := serialize.FromGraph(res.Graph, res.SummaryHash, serialize.Metadata{
			SourceRoots:    req.Roots,
			IgnorePatterns: req.IgnorePatterns,
		})
		if err := s.store.StoreGraph(ctx, key, sg); err != nil {
			return nil, jrpc2.Errorf(code.SystemError, "save: %v", err)
		}
	}

	return &BuildRsp{
		Key:        key,
		NumNodes:   len(nodes),
		NumTests:   len(tests),
		NumEdges:   len(edges),
		NumWarning: len(res.Warnings),
	}, nil
}

// LoadReq is the request parameter to Load.
type LoadReq struct {
	Key string `json:"key"`
}

// LoadRsp is the response from a successful Load call.
type LoadRsp struct {
	Key      string `json:"key"`
	NumNodes int    `json:"numNodes"`
	NumTests int    `json:"numTests"`
	NumEdges int    `json:"numEdges"`
}

// Load fetches the snapshot stored under req.Key and makes it the
// server's active graph for that key.
func (s *Server) Load(ctx context.Context, req *LoadReq) (*LoadRsp, error) {
	if req.Key == "" {
		return nil, jrpc2.Errorf(code.InvalidParams, "missing key")
	}
	sg, err := s.store.LoadGraph(ctx, req.Key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, jrpc2.Errorf(GraphNotFound, "no snapshot for key %q", req.Key)
	} else if err != nil {
		return nil, jrpc2.Errorf(code.SystemError, "load: %v", err)
	}
	g := sg.ToGraph()
	// A loaded snapshot carries no file-path mapping (only MIDs round-trip
	// through the serialized form); an empty Index makes every changed
	// path unresolved, which correctly triggers Select's full-suite
	// fallback rather than a nil-pointer panic.
	s.setCache(req.Key, &build.Result{Graph: g, Index: resolve.NewIndex(nil), SummaryHash: sg.SummaryHash})
	return &LoadRsp{Key: req.Key, NumNodes: len(sg.Nodes), NumTests: len(sg.Tests), NumEdges: len(sg.Edges)}, nil
}

// SelectReq is the request parameter to Select.
type SelectReq struct {
	Key     string   `json:"key"`
	Changed []string `json:"changed"`
}

// Select runs test selection against the cached graph for req.Key.
func (s *Server) Select(ctx context.Context, req *SelectReq) (*selection.Result, error) {
	r := s.cache(req.Key)
	if r == nil {
		return nil, jrpc2.Errorf(GraphNotFound, "no active graph for key %q; call Build or Load first", req.Key)
	}
	res, err := selection.Select(r.Graph, r.Index, testMIDs(r), req.Changed)
	if err != nil && !isFullSuite(res) {
		return nil, jrpc2.Errorf(code.SystemError, "select: %v", err)
	}
	return res, nil
}

func isFullSuite(r *selection.Result) bool { return r != nil && r.FullSuite }

func testMIDs(r *build.Result) []model.MID {
	var out []model.MID
	for _, m := range r.Graph.Nodes().Elements() {
		mid := model.MID(m)
		if r.Graph.IsTest(mid) {
			out = append(out, mid)
		}
	}
	return out
}

// ValidateReq is the request parameter to Validate.
type ValidateReq struct {
	Key         string `json:"key"`
	Mode        string `json:"mode"` // "strict", "warn", or "disabled"
	Concurrency int    `json:"concurrency"`
}

// Validate cross-checks the cached graph for req.Key against a dynamic
// trace, using the adapter registered for the current process via
// RegisterLoader.
func (s *Server) Validate(ctx context.Context, req *ValidateReq) (*validate.Report, error) {
	r := s.cache(req.Key)
	if r == nil {
		return nil, jrpc2.Errorf(GraphNotFound, "no active graph for key %q; call Build or Load first", req.Key)
	}
	loader := CurrentLoader()
	if loader == nil {
		return nil, jrpc2.Errorf(code.SystemError, "validate: no loader adapter registered for this host runtime")
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		return nil, jrpc2.Errorf(code.InvalidParams, "%v", err)
	}
	report, err := validate.Run(ctx, r.Graph, loader, testMIDs(r), validate.Options{
		Mode:        mode,
		Concurrency: req.Concurrency,
	})
	if err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return report, jrpc2.DataErrorf(code.SystemError, report, "%v", err)
		}
		return nil, jrpc2.Errorf(code.SystemError, "validate: %v", err)
	}
	return report, nil
}

func parseMode(s string) (validate.Mode, error) {
	switch s {
	case "", "warn":
		return validate.Warn, nil
	case "strict":
		return validate.Strict, nil
	case "disabled":
		return validate.Disabled, nil
	default:
		return 0, fmt.Errorf("unknown validation mode %q", s)
	}
}
