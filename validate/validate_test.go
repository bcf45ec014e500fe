package validate

import (
	"context"
	"testing"

	"github.com/importprune/prune/graph"
	"github.com/importprune/prune/model"
)

type fakeLoader struct {
	edges map[model.MID][]RecordedEdge
}

func (f *fakeLoader) DriveOne(ctx context.Context, test model.MID) ([]RecordedEdge, error) {
	return f.edges[test], nil
}

func TestRunDisabledSkipsLoader(t *testing.T) {
	g := graph.New()
	report, err := Run(context.Background(), g, &fakeLoader{}, []model.MID{"test_x"}, Options{Mode: Disabled})
	if err != nil {
		t.Fatal(err)
	}
	if report.HasDiagnostics() {
		t.Errorf("expected no diagnostics in disabled mode")
	}
}

func TestRunWarnReportsMissingEdge(t *testing.T) {
	g := graph.New()
	g.AddEdge("test_x", "pkg.a")

	loader := &fakeLoader{edges: map[model.MID][]RecordedEdge{
		"test_x": {
			{Importer: "test_x", Imported: "pkg.a"},
			{Importer: "test_x", Imported: "pkg.hidden"},
		},
	}}
	report, err := Run(context.Background(), g, loader, []model.MID{"test_x"}, Options{Mode: Warn})
	if err != nil {
		t.Fatalf("warn mode should never fail: %v", err)
	}
	if len(report.Diagnostics) != 1 || report.Diagnostics[0].Imported != "pkg.hidden" {
		t.Fatalf("diagnostics = %+v", report.Diagnostics)
	}
}

func TestRunStrictFailsOnMissingEdge(t *testing.T) {
	g := graph.New()
	g.AddEdge("test_x", "pkg.a")

	loader := &fakeLoader{edges: map[model.MID][]RecordedEdge{
		"test_x": {{Importer: "test_x", Imported: "pkg.hidden"}},
	}}
	_, err := Run(context.Background(), g, loader, []model.MID{"test_x"}, Options{Mode: Strict})
	if err == nil {
		t.Fatal("expected strict mode to fail")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestRunNoDiagnosticsWhenClosureCovers(t *testing.T) {
	g := graph.New()
	g.AddEdge("test_x", "pkg.a")
	g.AddEdge("pkg.a", "pkg.b")

	loader := &fakeLoader{edges: map[model.MID][]RecordedEdge{
		"test_x": {{Importer: "test_x", Imported: "pkg.b"}},
	}}
	report, err := Run(context.Background(), g, loader, []model.MID{"test_x"}, Options{Mode: Strict})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.HasDiagnostics() {
		t.Errorf("expected no diagnostics, got %+v", report.Diagnostics)
	}
}
