package model

import "testing"

func TestMIDAncestor(t *testing.T) {
	tests := []struct {
		mid  MID
		n    int
		want MID
		ok   bool
	}{
		{"a.b.c.d", 0, "a.b.c.d", true},
		{"a.b.c.d", 1, "a.b.c", true},
		{"a.b.c.d", 3, "a", true},
		{"a.b.c.d", 4, "", false},
		{"a.b.c.d", 5, "", false},
	}
	for _, test := range tests {
		got, ok := test.mid.Ancestor(test.n)
		if got != test.want || ok != test.ok {
			t.Errorf("MID(%q).Ancestor(%d) = (%q, %v), want (%q, %v)",
				test.mid, test.n, got, ok, test.want, test.ok)
		}
	}
}

func TestMIDJoin(t *testing.T) {
	if got, want := MID("pkg").Join("sub"), MID("pkg.sub"); got != want {
		t.Errorf("Join = %q, want %q", got, want)
	}
	if got, want := MID("").Join("sub"), MID("sub"); got != want {
		t.Errorf("Join on empty parent = %q, want %q", got, want)
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"pkg/test_x.py", true},
		{"pkg/x_test.py", true},
		{"pkg/a.py", false},
	}
	for _, test := range tests {
		sf := &SourceFile{Path: test.path}
		if got := sf.IsTestFile(); got != test.want {
			t.Errorf("IsTestFile(%q) = %v, want %v", test.path, got, test.want)
		}
	}
}
