// Package serialize implements the Graph Serializer: a compact, versioned
// binary encoding for a dependency graph, used to persist and reload the
// result of a build without rescanning a repository.
//
// The encoding is bespoke rather than protobuf-based, since regenerating a
// protoc-compiled message from a .proto source is outside this module's
// build. The varint-prefixed length framing below uses
// encoding/binary.PutUvarint and binary.ReadUvarint.
package serialize

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

// Magic identifies a prune graph file. FormatVersion is bumped whenever the
// on-disk layout changes incompatibly; a mismatch is a hard error, never a
// silent fallback.
const (
	Magic         uint32 = 0x50525531 // "PRU1"
	FormatVersion uint32 = 1
)

// Metadata is the block of configuration the graph was built under. It is
// round-tripped alongside the graph contents so a loader can decide whether
// a cached graph is still applicable.
type Metadata struct {
	SourceRoots    []string
	IgnorePatterns []string
	HookSignatures []string
}

// Graph is the persisted form of a graph.Graph: its nodes, test nodes, and
// edges, plus the metadata and content-hash summary recorded at build time.
type Graph struct {
	SummaryHash []byte
	Metadata    Metadata
	Nodes       []model.MID
	Tests       []model.MID
	Edges       []graph.EdgePair
}

// FromGraph captures g's contents into a Graph ready for Write.
func FromGraph(g *graph.Graph, summaryHash []byte, meta Metadata) *Graph {
	nodes, tests, edges := g.Dump()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	sort.Slice(tests, func(i, j int) bool { return tests[i] < tests[j] })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return &Graph{
		SummaryHash: summaryHash,
		Metadata:    meta,
		Nodes:       nodes,
		Tests:       tests,
		Edges:       edges,
	}
}

// ToGraph reconstructs a live graph.Graph from the persisted contents.
func (g *Graph) ToGraph() *graph.Graph {
	out := graph.New()
	out.Load(g.Nodes, g.Tests, g.Edges)
	return out
}

// Trusted reports whether g's recorded summary hash matches the hash of the
// current repository scan: a loaded graph is only used as-is if the hashes
// agree; otherwise a full rebuild is triggered by the caller.
func (g *Graph) Trusted(currentSummaryHash []byte) bool {
	if len(g.SummaryHash) != len(currentSummaryHash) {
		return false
	}
	for i := range g.SummaryHash {
		if g.SummaryHash[i] != currentSummaryHash[i] {
			return false
		}
	}
	return true
}

// VersionError is returned by Read when the file's format version does not
// match FormatVersion. This is always a hard error.
type VersionError struct {
	Got, Want uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("serialize: format version %d unsupported (want %d)", e.Got, e.Want)
}

// Write encodes g to w: header, string table, RLE edge list, metadata.
func Write(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)

	table, index := buildStringTable(g)
	if err := writeHeader(bw, g); err != nil {
		return err
	}
	if err := writeStringTable(bw, table); err != nil {
		return err
	}
	if err := writeNodeSets(bw, g, index); err != nil {
		return err
	}
	if err := writeEdges(bw, g, index); err != nil {
		return err
	}
	if err := writeMetadata(bw, g.Metadata); err != nil {
		return err
	}
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, g *Graph) error {
	if err := writeUint32(w, Magic); err != nil {
		return err
	}
	if err := writeUint32(w, FormatVersion); err != nil {
		return err
	}
	return writeBytes(w, g.SummaryHash)
}

func buildStringTable(g *Graph) (strs []string, index map[model.MID]uint64) {
	index = make(map[model.MID]uint64)
	add := func(mid model.MID) {
		if _, ok := index[mid]; ok {
			return
		}
		index[mid] = uint64(len(strs))
		strs = append(strs, string(mid))
	}
	for _, n := range g.Nodes {
		add(n)
	}
	for _, t := range g.Tests {
		add(t)
	}
	for _, e := range g.Edges {
		add(e.From)
		add(e.To)
	}
	return strs, index
}

func writeStringTable(w *bufio.Writer, strs []string) error {
	if err := writeUvarint(w, uint64(len(strs))); err != nil {
		return err
	}
	for _, s := range strs {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func writeNodeSets(w *bufio.Writer, g *Graph, index map[model.MID]uint64) error {
	if err := writeUvarint(w, uint64(len(g.Nodes))); err != nil {
		return err
	}
	for _, n := range g.Nodes {
		if err := writeUvarint(w, index[n]); err != nil {
			return err
		}
	}
	if err := writeUvarint(w, uint64(len(g.Tests))); err != nil {
		return err
	}
	for _, t := range g.Tests {
		if err := writeUvarint(w, index[t]); err != nil {
			return err
		}
	}
	return nil
}

// writeEdges run-length-encodes the edge list by source: each distinct From
// is written once followed by its successor count and successor indices.
func writeEdges(w *bufio.Writer, g *Graph, index map[model.MID]uint64) error {
	type run struct {
		from model.MID
		tos  []model.MID
	}
	var runs []run
	for _, e := range g.Edges {
		if len(runs) > 0 && runs[len(runs)-1].from == e.From {
			runs[len(runs)-1].tos = append(runs[len(runs)-1].tos, e.To)
		} else {
			runs = append(runs, run{from: e.From, tos: []model.MID{e.To}})
		}
	}
	if err := writeUvarint(w, uint64(len(runs))); err != nil {
		return err
	}
	for _, r := range runs {
		if err := writeUvarint(w, index[r.from]); err != nil {
			return err
		}
		if err := writeUvarint(w, uint64(len(r.tos))); err != nil {
			return err
		}
		for _, to := range r.tos {
			if err := writeUvarint(w, index[to]); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMetadata(w *bufio.Writer, m Metadata) error {
	if err := writeStringSlice(w, m.SourceRoots); err != nil {
		return err
	}
	if err := writeStringSlice(w, m.IgnorePatterns); err != nil {
		return err
	}
	return writeStringSlice(w, m.HookSignatures)
}

// Read decodes a Graph previously written by Write. A format-version
// mismatch or truncation is returned as an error; there is no silent
// fallback to a partial result.
func Read(r io.Reader) (*Graph, error) {
	br := bufio.NewReader(r)

	magic, err := readUint32(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: reading magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("serialize: not a prune graph file (magic %#x)", magic)
	}
	version, err := readUint32(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: reading version: %w", err)
	}
	if version != FormatVersion {
		return nil, &VersionError{Got: version, Want: FormatVersion}
	}
	summary, err := readBytes(br)
	if err != nil {
		return nil, fmt.Errorf("serialize: reading summary hash: %w", err)
	}

	strs, err := readStringTable(br)
	if err != nil {
		return nil, err
	}

	nodes, tests, err := readNodeSets(br, strs)
	if err != nil {
		return nil, err
	}
	edges, err := readEdges(br, strs)
	if err != nil {
		return nil, err
	}
	meta, err := readMetadata(br)
	if err != nil {
		return nil, err
	}

	return &Graph{
		SummaryHash: summary,
		Metadata:    meta,
		Nodes:       nodes,
		Tests:       tests,
		Edges:       edges,
	}, nil
}

func readStringTable(r *bufio.Reader) ([]string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("serialize: reading string table size: %w", err)
	}
	strs := make([]string, n)
	for i := range strs {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("serialize: reading string table entry %d: %w", i, err)
		}
		strs[i] = s
	}
	return strs, nil
}

func readNodeSets(r *bufio.Reader, strs []string) (nodes, tests []model.MID, err error) {
	nodes, err = readMIDList(r, strs)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize: reading node list: %w", err)
	}
	tests, err = readMIDList(r, strs)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize: reading test list: %w", err)
	}
	return nodes, tests, nil
}

func readMIDList(r *bufio.Reader, strs []string) ([]model.MID, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	mids := make([]model.MID, n)
	for i := range mids {
		idx, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(strs)) {
			return nil, fmt.Errorf("string table index %d out of range", idx)
		}
		mids[i] = model.MID(strs[idx])
	}
	return mids, nil
}

func readEdges(r *bufio.Reader, strs []string) ([]graph.EdgePair, error) {
	runCount, err := readUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("serialize: reading edge run count: %w", err)
	}
	var edges []graph.EdgePair
	for i := uint64(0); i < runCount; i++ {
		fromIdx, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		if fromIdx >= uint64(len(strs)) {
			return nil, fmt.Errorf("string table index %d out of range", fromIdx)
		}
		from := model.MID(strs[fromIdx])

		count, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < count; j++ {
			toIdx, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			if toIdx >= uint64(len(strs)) {
				return nil, fmt.Errorf("string table index %d out of range", toIdx)
			}
			edges = append(edges, graph.EdgePair{From: from, To: model.MID(strs[toIdx])})
		}
	}
	return edges, nil
}

func readMetadata(r *bufio.Reader) (Metadata, error) {
	roots, err := readStringSlice(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("serialize: reading source roots: %w", err)
	}
	ignore, err := readStringSlice(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("serialize: reading ignore patterns: %w", err)
	}
	hooks, err := readStringSlice(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("serialize: reading hook signatures: %w", err)
	}
	return Metadata{SourceRoots: roots, IgnorePatterns: ignore, HookSignatures: hooks}, nil
}

// --- low-level primitives ---

func writeUint32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeUvarint(w *bufio.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readUvarint(r *bufio.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := writeUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w *bufio.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r *bufio.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStringSlice(w *bufio.Writer, ss []string) error {
	if err := writeUvarint(w, uint64(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r *bufio.Reader) ([]string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	ss := make([]string, n)
	for i := range ss {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		ss[i] = s
	}
	return ss, nil
}
