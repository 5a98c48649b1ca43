package walker

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestWalk_FiltersAndSorts(t *testing.T) {
	root := writeTree(t, map[string]string{
		"rfc/rfc8033.txt":         "PIE: A Lightweight Control Scheme",
		"p4/basic.p4":             "control MyIngress() {}",
		"notes/README.md":         "# Notes",
		"build/out.md":            "generated",
		".git/config":             "[core]",
		"images/fig1.png":         "\x89PNG\x00\x00",
		".paper2code/vectors.txt": "internal",
		"empty.md":                "",
	})

	files, err := Walk(Config{
		RootDir: root,
		Include: []string{"**/*.md", "**/*.txt", "**/*.p4", "*.png"},
		Exclude: []string{"build/**"},
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}

	want := []string{"notes/README.md", "p4/basic.p4", "rfc/rfc8033.txt"}
	if len(files) != len(want) {
		t.Fatalf("got %d files %v, want %v", len(files), files, want)
	}
	for i, f := range files {
		if f.RelPath != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, f.RelPath, want[i])
		}
		if len(f.ContentHash) != 64 {
			t.Errorf("%s: unexpected hash %q", f.RelPath, f.ContentHash)
		}
	}
	if files[1].Kind != KindP4 {
		t.Errorf("expected p4 kind, got %q", files[1].Kind)
	}
}

func TestWalk_MaxFileSize(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.md": "ok",
		"large.md": "this one is longer than the limit",
	})

	files, err := Walk(Config{RootDir: root, MaxFileSize: 10})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "small.md" {
		t.Errorf("expected only small.md, got %v", files)
	}
}

func TestWalk_RejectsMissingRoot(t *testing.T) {
	if _, err := Walk(Config{RootDir: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestMatchesIncludeExclude(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"docs/a.md", []string{"**/*.md"}, true},
		{"a.md", []string{"*.md"}, true},
		{"deep/nested/a.md", []string{"*.md"}, true},
		{"docs/a.txt", []string{"**/*.md"}, false},
		{"build/x/y.md", []string{"build/**"}, true},
	}
	for _, tt := range tests {
		if got := MatchesInclude(tt.path, tt.patterns); got != tt.want {
			t.Errorf("MatchesInclude(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
	if !MatchesInclude("x", nil) {
		t.Error("empty include list should include everything")
	}
	if MatchesExclude("x", nil) {
		t.Error("empty exclude list should exclude nothing")
	}
}

func TestDetectKind(t *testing.T) {
	cases := map[string]Kind{
		"README.MD":    KindMarkdown,
		"tcp-cubic.cc": KindNS3,
		"switch.p4":    KindP4,
		"sim.py":       KindPython,
		"rfc.txt":      KindText,
		"Makefile":     KindOther,
	}
	for name, want := range cases {
		if got := DetectKind(name); got != want {
			t.Errorf("DetectKind(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestHashContent(t *testing.T) {
	if HashContent([]byte("a")) == HashContent([]byte("b")) {
		t.Error("expected distinct hashes")
	}
}
