package walk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkDiscoversSourceFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(dir, "pkg", "a.py"), "import pkg.b")
	writeFile(t, filepath.Join(dir, "pkg", "sub", "x.py"), "")
	writeFile(t, filepath.Join(dir, "pkg", "sub", "__pycache__", "x.pyc"), "")
	writeFile(t, filepath.Join(dir, "pkg", "data.json"), "{}")

	res, err := Walk(context.Background(), Options{Roots: []string{dir}})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	var got []string
	for _, f := range res.Files {
		rel, _ := filepath.Rel(dir, f.Path)
		got = append(got, rel)
	}
	sort.Strings(got)
	want := []string{
		filepath.Join("pkg", "__init__.py"),
		filepath.Join("pkg", "a.py"),
		filepath.Join("pkg", "sub", "x.py"),
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("Walk found %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("Walk found %v, want %v", got, want)
			break
		}
	}
}

func TestWalkIgnoresPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pkg", "a.py"), "")
	writeFile(t, filepath.Join(dir, "vendor", "b.py"), "")

	res, err := Walk(context.Background(), Options{
		Roots:          []string{dir},
		IgnorePatterns: []string{"vendor/**"},
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	for _, f := range res.Files {
		if filepath.Base(filepath.Dir(f.Path)) == "vendor" {
			t.Errorf("Walk did not ignore %q", f.Path)
		}
	}
}

func TestWalkStableOrdering(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.py", "a.py", "b.py"} {
		writeFile(t, filepath.Join(dir, name), "")
	}
	res, err := Walk(context.Background(), Options{Roots: []string{dir}})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	for i := 1; i < len(res.Files); i++ {
		if res.Files[i-1].Path > res.Files[i].Path {
			t.Fatalf("Walk result not sorted: %v", res.Files)
		}
	}
}
