package hooks

import (
	"testing"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

type fixture struct {
	Defaults
	dynamic map[string][]string
	leaves  map[model.MID][]model.MID
}

func (f fixture) DynamicDependencies() map[string][]string            { return f.dynamic }
func (f fixture) DynamicDependenciesAtLeaves() map[model.MID][]model.MID { return f.leaves }

func TestApplyInstallsHooks(t *testing.T) {
	g := graph.New()
	g.AddEdge("a", "b")

	h := fixture{
		dynamic: map[string][]string{"a": {"c"}},
		leaves:  map[model.MID][]model.MID{"b": {"d"}},
	}
	Apply(h, g)

	out := g.ClosureOut("a")
	if !out.Contains("c") {
		t.Errorf("expected pre-closure hook payload c in closure, got %v", out.Elements())
	}
	if !out.Contains("d") {
		t.Errorf("expected post-closure hook target d in closure, got %v", out.Elements())
	}
}

func TestSignatureStableAndSensitive(t *testing.T) {
	h1 := fixture{dynamic: map[string][]string{"a": {"x", "y"}}}
	h2 := fixture{dynamic: map[string][]string{"a": {"y", "x"}}}
	if Signature(h1) != Signature(h2) {
		t.Errorf("signature should not depend on slice order")
	}

	h3 := fixture{dynamic: map[string][]string{"a": {"x"}}}
	if Signature(h1) == Signature(h3) {
		t.Errorf("signature should change when dependencies change")
	}
}

func TestNoneIsNoop(t *testing.T) {
	if len(None.SourceRoots()) != 0 || None.IncludeTypechecking() {
		t.Errorf("expected None to be all defaults")
	}
}
