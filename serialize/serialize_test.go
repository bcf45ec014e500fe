package serialize

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

func buildTestGraph() *graph.Graph {
	g := graph.New()
	g.AddEdge("pkg.a", "pkg.b")
	g.AddEdge("pkg.b", "pkg.a")
	g.AddEdge("test_foo", "pkg.a")
	g.MarkTest("test_foo")
	return g
}

func TestRoundTrip(t *testing.T) {
	g := buildTestGraph()
	persisted := FromGraph(g, []byte{1, 2, 3}, Metadata{
		SourceRoots:    []string{"/src"},
		IgnorePatterns: []string{"vendor/**"},
		HookSignatures: []string{"sig1"},
	})

	var buf bytes.Buffer
	if err := Write(&buf, persisted); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	sortMIDs(persisted.Nodes)
	sortMIDs(loaded.Nodes)
	sortMIDs(persisted.Tests)
	sortMIDs(loaded.Tests)
	sortEdges(persisted.Edges)
	sortEdges(loaded.Edges)

	if diff := cmp.Diff(persisted.Nodes, loaded.Nodes); diff != "" {
		t.Errorf("nodes differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(persisted.Tests, loaded.Tests); diff != "" {
		t.Errorf("tests differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(persisted.Edges, loaded.Edges); diff != "" {
		t.Errorf("edges differ (-want +got):\n%s", diff)
	}
	if !bytes.Equal(persisted.SummaryHash, loaded.SummaryHash) {
		t.Errorf("summary hash mismatch")
	}
	if diff := cmp.Diff(persisted.Metadata, loaded.Metadata); diff != "" {
		t.Errorf("metadata differs (-want +got):\n%s", diff)
	}
}

func TestRoundTripGraphEquality(t *testing.T) {
	g := buildTestGraph()
	persisted := FromGraph(g, []byte{9}, Metadata{})

	var buf bytes.Buffer
	if err := Write(&buf, persisted); err != nil {
		t.Fatal(err)
	}
	loaded, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	g2 := loaded.ToGraph()

	wantOut := g.ClosureOut("pkg.a").Elements()
	gotOut := g2.ClosureOut("pkg.a").Elements()
	sort.Strings(wantOut)
	sort.Strings(gotOut)
	if diff := cmp.Diff(wantOut, gotOut); diff != "" {
		t.Errorf("closure_out differs after round trip (-want +got):\n%s", diff)
	}

	wantIn := g.ClosureIn("pkg.a").Elements()
	gotIn := g2.ClosureIn("pkg.a").Elements()
	sort.Strings(wantIn)
	sort.Strings(gotIn)
	if diff := cmp.Diff(wantIn, gotIn); diff != "" {
		t.Errorf("closure_in differs after round trip (-want +got):\n%s", diff)
	}
}

func TestVersionMismatchIsHardError(t *testing.T) {
	g := buildTestGraph()
	persisted := FromGraph(g, nil, Metadata{})

	var buf bytes.Buffer
	if err := Write(&buf, persisted); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	// Format version is the second 4-byte big-endian field, right after magic.
	raw[4], raw[5], raw[6], raw[7] = 0, 0, 0, 99

	_, err := Read(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected a version mismatch error")
	}
	if _, ok := err.(*VersionError); !ok {
		t.Fatalf("expected *VersionError, got %T: %v", err, err)
	}
}

func TestTrustedSummaryHash(t *testing.T) {
	g := FromGraph(buildTestGraph(), []byte{1, 2, 3}, Metadata{})
	if !g.Trusted([]byte{1, 2, 3}) {
		t.Errorf("expected matching hash to be trusted")
	}
	if g.Trusted([]byte{9, 9, 9}) {
		t.Errorf("expected mismatched hash to be untrusted")
	}
}

func sortMIDs(m []model.MID) {
	sort.Slice(m, func(i, j int) bool { return m[i] < m[j] })
}

func sortEdges(e []graph.EdgePair) {
	sort.Slice(e, func(i, j int) bool {
		if e[i].From != e[j].From {
			return e[i].From < e[j].From
		}
		return e[i].To < e[j].To
	})
}
