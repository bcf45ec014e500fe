package extract

import (
	"context"
	"testing"

	"github.com/importprune/prune/model"
)

func findPayload(t *testing.T, imports []model.RawImport, payload string) model.RawImport {
	t.Helper()
	for _, imp := range imports {
		if imp.Payload == payload {
			return imp
		}
	}
	t.Fatalf("no import with payload %q in %+v", payload, imports)
	return model.RawImport{}
}

func TestExtractAbsoluteImport(t *testing.T) {
	res, err := Extract(context.Background(), "a.py", []byte("import pkg.sub\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", res.ParseError)
	}
	imp := findPayload(t, res.Imports, "pkg.sub")
	if imp.Kind != model.Absolute {
		t.Errorf("kind = %v, want Absolute", imp.Kind)
	}
}

func TestExtractAliasedImport(t *testing.T) {
	res, err := Extract(context.Background(), "a.py", []byte("import pkg.sub as s\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "pkg.sub")
	if imp.Aliased != "s" {
		t.Errorf("aliased = %q, want s", imp.Aliased)
	}
}

func TestExtractFromImport(t *testing.T) {
	res, err := Extract(context.Background(), "a.py", []byte("from pkg.sub import thing\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "pkg.sub")
	if imp.Kind != model.Absolute {
		t.Errorf("kind = %v, want Absolute", imp.Kind)
	}
	if imp.Name != "thing" {
		t.Errorf("name = %q, want thing", imp.Name)
	}
}

func TestExtractWildcardImport(t *testing.T) {
	res, err := Extract(context.Background(), "a.py", []byte("from pkg.sub import *\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "pkg.sub")
	if imp.Kind != model.Wildcard {
		t.Errorf("kind = %v, want Wildcard", imp.Kind)
	}
}

func TestExtractRelativeImports(t *testing.T) {
	cases := []struct {
		src     string
		level   int
		payload string
		name    string
	}{
		{"from . import x\n", 1, "", "x"},
		{"from .. import x\n", 2, "", "x"},
		{"from ..pkg.sub import x\n", 2, "pkg.sub", "x"},
	}
	for _, c := range cases {
		res, err := Extract(context.Background(), "a.py", []byte(c.src), nil)
		if err != nil {
			t.Fatal(err)
		}
		var imp model.RawImport
		var found bool
		for _, i := range res.Imports {
			if i.Payload == c.payload && i.Name == c.name {
				imp, found = i, true
				break
			}
		}
		if !found {
			t.Fatalf("%q: no matching import in %+v", c.src, res.Imports)
		}
		if imp.Kind != model.Relative {
			t.Errorf("%q: kind = %v, want Relative", c.src, imp.Kind)
		}
		if imp.Level != c.level {
			t.Errorf("%q: level = %d, want %d", c.src, imp.Level, c.level)
		}
	}
}

func TestExtractHintedGuard(t *testing.T) {
	src := "if False:\n    import hinted.module\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "hinted.module")
	if !imp.Hinted {
		t.Errorf("expected Hinted=true")
	}
}

func TestExtractHintedGuardZeroLiteral(t *testing.T) {
	src := "if 0:\n    import hinted.module\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "hinted.module")
	if !imp.Hinted {
		t.Errorf("expected Hinted=true")
	}
}

func TestExtractTypeCheckingGuard(t *testing.T) {
	src := "if TYPE_CHECKING:\n    import only_typed\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "only_typed")
	if !imp.TypecheckOnly {
		t.Errorf("expected TypecheckOnly=true")
	}
}

func TestExtractTypeCheckingAttributeGuard(t *testing.T) {
	src := "if typing.TYPE_CHECKING:\n    import only_typed\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "only_typed")
	if !imp.TypecheckOnly {
		t.Errorf("expected TypecheckOnly=true")
	}
}

func TestExtractReflectiveImportModule(t *testing.T) {
	src := "importlib.import_module(\"pkg.sub\")\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	findPayload(t, res.Imports, "pkg.sub")
}

func TestExtractDunderImport(t *testing.T) {
	src := "__import__(\"pkg.sub\")\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	findPayload(t, res.Imports, "pkg.sub")
}

func TestExtractSyntaxError(t *testing.T) {
	src := "def broken(:\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ParseError == "" {
		t.Fatalf("expected a parse error for malformed source")
	}
	if len(res.Imports) != 0 {
		t.Errorf("expected no imports on parse error, got %+v", res.Imports)
	}
}

func TestExtractLineNumbers(t *testing.T) {
	src := "x = 1\nimport pkg.sub\n"
	res, err := Extract(context.Background(), "a.py", []byte(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	imp := findPayload(t, res.Imports, "pkg.sub")
	if imp.Line != 2 {
		t.Errorf("line = %d, want 2", imp.Line)
	}
}
