package selection

import (
	"testing"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
	"github.com/importprune/prune/resolve"
)

func buildFixture(t *testing.T) (*graph.Graph, *resolve.Index) {
	t.Helper()
	g := graph.New()
	ix := resolve.NewIndex([]string{"/src"})

	ix.Register("/src", "pkg.a", false, "/src/pkg/a.py")
	ix.Register("/src", "pkg.b", false, "/src/pkg/b.py")
	ix.Register("/src", "other", false, "/src/other.py")
	ix.Register("/src", "test_foo", false, "/src/test_foo.py")

	g.AddEdge("test_foo", "other")
	g.AddEdge("other", "pkg.a")
	g.MarkTest("test_foo")

	return g, ix
}

func TestSelectAffectedByChange(t *testing.T) {
	g, ix := buildFixture(t)
	res, err := Select(g, ix, []model.MID{"test_foo"}, []string{"/src/pkg/a.py"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tests) != 1 || res.Tests[0] != "/src/test_foo.py" {
		t.Fatalf("tests = %v, want [/src/test_foo.py]", res.Tests)
	}
	if res.FullSuite {
		t.Errorf("expected FullSuite = false")
	}
}

func TestSelectNoChanges(t *testing.T) {
	g, ix := buildFixture(t)
	res, err := Select(g, ix, []model.MID{"test_foo"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tests) != 0 {
		t.Fatalf("tests = %v, want empty", res.Tests)
	}
}

func TestSelectUnresolvedTriggersFullSuite(t *testing.T) {
	g, ix := buildFixture(t)
	res, err := Select(g, ix, []model.MID{"test_foo"}, []string{"/src/deleted.py"})
	if err == nil {
		t.Fatalf("expected an error for unresolved changed file")
	}
	if !res.FullSuite {
		t.Errorf("expected FullSuite = true")
	}
	if len(res.Tests) != 1 || res.Tests[0] != "/src/test_foo.py" {
		t.Fatalf("tests = %v, want full suite [/src/test_foo.py]", res.Tests)
	}
}
