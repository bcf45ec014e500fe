// Package extract implements the Import Extractor: a full syntactic parser
// for the target language that yields the raw import references nested
// anywhere in a source file, including inside hinted always-false guards
// and typechecker-only guards.
//
// Parsing is done with a real grammar (tree-sitter's Python grammar) rather
// than ad hoc text scanning, so comments, strings, and other lookalike
// text never produce a spurious import. A pooled parser, an embedded
// tree-sitter query, and a capture-walking pass over each match drive the
// extraction.
package extract

import (
	"context"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/importprune/prune/model"
	ts "github.com/tree-sitter/go-tree-sitter"
	tspython "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

//go:embed queries/python/imports.scm
var queryFS embed.FS

var pythonLanguage = ts.NewLanguage(tspython.Language())

var parserPool = sync.Pool{
	New: func() any {
		p := ts.NewParser()
		if err := p.SetLanguage(pythonLanguage); err != nil {
			panic(fmt.Sprintf("extract: setting python language: %v", err))
		}
		return p
	},
}

func getParser() *ts.Parser {
	return parserPool.Get().(*ts.Parser)
}

func putParser(p *ts.Parser) {
	p.Reset()
	parserPool.Put(p)
}

var importsQuery = sync.OnceValues(func() (*ts.Query, error) {
	data, err := queryFS.ReadFile("queries/python/imports.scm")
	if err != nil {
		return nil, err
	}
	q, qerr := ts.NewQuery(pythonLanguage, string(data))
	if qerr != nil {
		return nil, fmt.Errorf("compiling import query: %w", qerr)
	}
	return q, nil
})

// Result is the outcome of extracting a single file.
type Result struct {
	Imports []model.RawImport
	// ParseError is set when the file failed to parse; Imports is empty
	// in that case and the file is still registered as a graph node with
	// no edges.
	ParseError string
}

// Extract parses the content of a single source file and returns every
// import reference found anywhere in it, including within hinted guards.
//
// If opts.ParseTimeoutMillis is nonzero and parsing exceeds it, Extract
// returns a Result carrying a ParseError rather than blocking indefinitely.
func Extract(ctx context.Context, path string, content []byte, opts *model.Options) (*Result, error) {
	query, err := importsQuery()
	if err != nil {
		return nil, err
	}

	deadline := time.Duration(0)
	if opts != nil && opts.ParseTimeoutMillis > 0 {
		deadline = time.Duration(opts.ParseTimeoutMillis) * time.Millisecond
	}

	parser := getParser()
	defer putParser(parser)

	type parseOut struct {
		tree *ts.Tree
	}
	done := make(chan parseOut, 1)
	go func() {
		done <- parseOut{tree: parser.Parse(content, nil)}
	}()

	var tree *ts.Tree
	if deadline > 0 {
		select {
		case out := <-done:
			tree = out.tree
		case <-time.After(deadline):
			return &Result{ParseError: fmt.Sprintf("parse timeout after %s", deadline)}, nil
		case <-ctx.Done():
			return &Result{ParseError: ctx.Err().Error()}, nil
		}
	} else {
		select {
		case out := <-done:
			tree = out.tree
		case <-ctx.Done():
			return &Result{ParseError: ctx.Err().Error()}, nil
		}
	}
	if tree == nil {
		return &Result{ParseError: fmt.Sprintf("%s: failed to parse", path)}, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return &Result{ParseError: fmt.Sprintf("%s: syntax error", path)}, nil
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(query, root, content)

	var hintRanges, typecheckRanges []byteRange
	var raw []pendingImport

	for {
		m := matches.Next()
		if m == nil {
			break
		}
		classifyMatch(m, query, content, &hintRanges, &typecheckRanges, &raw)
	}

	imports := make([]model.RawImport, 0, len(raw))
	for _, p := range raw {
		ri := p.imp
		ri.Hinted = within(hintRanges, p.start)
		ri.TypecheckOnly = within(typecheckRanges, p.start)
		imports = append(imports, ri)
	}
	return &Result{Imports: imports}, nil
}

type byteRange struct{ start, end uint }

func within(ranges []byteRange, pos uint) bool {
	for _, r := range ranges {
		if pos >= r.start && pos < r.end {
			return true
		}
	}
	return false
}

type pendingImport struct {
	imp   model.RawImport
	start uint
}

func classifyMatch(
	m *ts.QueryMatch,
	query *ts.Query,
	content []byte,
	hintRanges, typecheckRanges *[]byteRange,
	raw *[]pendingImport,
) {
	captures := make(map[string]ts.Node, len(m.Captures))
	for _, c := range m.Captures {
		name := query.CaptureNames()[c.Index]
		captures[name] = c.Node
	}

	switch {
	case has(captures, "guard.hint.body"):
		n := captures["guard.hint.body"]
		*hintRanges = append(*hintRanges, byteRange{n.StartByte(), n.EndByte()})
		return

	case has(captures, "guard.typecheck.body"):
		n := captures["guard.typecheck.body"]
		*typecheckRanges = append(*typecheckRanges, byteRange{n.StartByte(), n.EndByte()})
		return
	case has(captures, "guard.typecheck.body2"):
		n := captures["guard.typecheck.body2"]
		*typecheckRanges = append(*typecheckRanges, byteRange{n.StartByte(), n.EndByte()})
		return

	case has(captures, "import.absolute.name"):
		n := captures["import.absolute.name"]
		alias := ""
		if a, ok := captures["import.absolute.alias"]; ok {
			alias = text(a, content)
		}
		*raw = append(*raw, pendingImport{
			imp: model.RawImport{
				Kind:    model.Absolute,
				Payload: text(n, content),
				Aliased: alias,
				Line:    line(content, n.StartByte()),
			},
			start: n.StartByte(),
		})

	case has(captures, "import.from.module"):
		mod := text(captures["import.from.module"], content)
		if n, ok := captures["import.from.wildcard"]; ok {
			*raw = append(*raw, pendingImport{
				imp: model.RawImport{
					Kind:    model.Wildcard,
					Payload: mod,
					Line:    line(content, n.StartByte()),
				},
				start: n.StartByte(),
			})
			return
		}
		n := captures["import.from.name"]
		alias := ""
		if a, ok := captures["import.from.alias"]; ok {
			alias = text(a, content)
		}
		*raw = append(*raw, pendingImport{
			imp: model.RawImport{
				Kind:    model.Absolute,
				Payload: mod,
				Name:    text(n, content),
				Aliased: alias,
				Line:    line(content, n.StartByte()),
			},
			start: n.StartByte(),
		})

	case has(captures, "import.relfrom.module"):
		relNode := captures["import.relfrom.module"]
		level, suffix := splitRelative(text(relNode, content))
		if n, ok := captures["import.relfrom.wildcard"]; ok {
			*raw = append(*raw, pendingImport{
				imp: model.RawImport{
					Kind:    model.Wildcard,
					Payload: suffix,
					Level:   level,
					Line:    line(content, n.StartByte()),
				},
				start: n.StartByte(),
			})
			return
		}
		n := captures["import.relfrom.name"]
		alias := ""
		if a, ok := captures["import.relfrom.alias"]; ok {
			alias = text(a, content)
		}
		*raw = append(*raw, pendingImport{
			imp: model.RawImport{
				Kind:    model.Relative,
				Payload: suffix,
				Name:    text(n, content),
				Level:   level,
				Aliased: alias,
				Line:    line(content, n.StartByte()),
			},
			start: n.StartByte(),
		})

	case has(captures, "import.relonly.module"):
		// This pattern matches every relative from-import statement, in a
		// match of its own. The imported names are already recorded by
		// the import.relfrom matches above, so nothing is added here.

	case has(captures, "import.reflective.target"):
		n := captures["import.reflective.target"]
		target := text(n, content)
		kind, level, payload := classifyLiteralTarget(target)
		*raw = append(*raw, pendingImport{
			imp: model.RawImport{
				Kind:    kind,
				Payload: payload,
				Level:   level,
				Line:    line(content, n.StartByte()),
			},
			start: n.StartByte(),
		})

	case has(captures, "import.dunder.target"):
		n := captures["import.dunder.target"]
		target := text(n, content)
		kind, level, payload := classifyLiteralTarget(target)
		*raw = append(*raw, pendingImport{
			imp: model.RawImport{
				Kind:    kind,
				Payload: payload,
				Level:   level,
				Line:    line(content, n.StartByte()),
			},
			start: n.StartByte(),
		})
	}
}

func classifyLiteralTarget(target string) (model.ImportKind, int, string) {
	level := 0
	for level < len(target) && target[level] == '.' {
		level++
	}
	if level == 0 {
		return model.Absolute, 0, target
	}
	return model.Relative, level, target[level:]
}

// splitRelative splits the text of a relative_import node ("...", ".pkg",
// "..pkg.sub") into its leading-dot count and trailing dotted-name suffix.
func splitRelative(s string) (level int, suffix string) {
	for level < len(s) && s[level] == '.' {
		level++
	}
	return level, s[level:]
}

func has(m map[string]ts.Node, key string) bool {
	_, ok := m[key]
	return ok
}

func text(n ts.Node, content []byte) string {
	return n.Utf8Text(content)
}

func line(content []byte, offset uint) int {
	ln := 1
	for i, b := range content {
		if uint(i) >= offset {
			break
		}
		if b == '\n' {
			ln++
		}
	}
	return ln
}
