package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanMissingDirIsEmpty(t *testing.T) {
	t.Parallel()
	got, err := Scan(filepath.Join(t.TempDir(), "nope"), nil)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestScanFiltersAndSorts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir,
		"com.example.b.plist",
		"com.example.a.plist",
		"com.other.job.plist",
		"readme.txt",
		"notes.md",
	)
	if err := os.Mkdir(filepath.Join(dir, "com.example.dir.plist"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Scan(dir, []string{"com.example."})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "com.example.a.plist"),
		filepath.Join(dir, "com.example.b.plist"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestScanPatternHandling(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, "com.a.x.plist", "com.b.y.PLIST", "com.c.z.plist")

	tests := []struct {
		name     string
		patterns []string
		want     int
	}{
		{name: "nil patterns match all", patterns: nil, want: 3},
		{name: "blank patterns match all", patterns: []string{"", "  "}, want: 3},
		{name: "one prefix", patterns: []string{"com.a."}, want: 1},
		{name: "multiple prefixes", patterns: []string{"com.a.", "com.c."}, want: 2},
		{name: "no match", patterns: []string{"org."}, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Scan(dir, tt.patterns)
			if err != nil {
				t.Fatalf("Scan error: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d files %v, want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestScanExtensionCaseInsensitive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, "com.a.upper.PLIST")
	got, err := Scan(dir, nil)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %v, want the .PLIST file", got)
	}
}
