package localfs

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWalker_Walk(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":              "a",
		"docs/b.md":          "bb",
		"docs/debug.log":     "x",
		"docs/deep/c.txt":    "ccc",
		"cache/blob":         "x",
		".dmsignore":         "cache/\n",
		"build/output/o.bin": "x",
	})
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatal(err)
	}

	entries, err := NewWalker([]string{"*.log", "build/output"}).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	var got []string
	for _, e := range entries {
		got = append(got, e.RelPath)
	}
	want := []string{"a.txt", "build", "docs", "docs/b.md", "docs/deep", "docs/deep/c.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Walk() = %v, want %v", got, want)
	}

	byPath := make(map[string]Entry)
	for _, e := range entries {
		byPath[e.RelPath] = e
	}
	if e := byPath["docs/deep/c.txt"]; e.Size != 3 || e.IsDir || e.Dir() != "docs/deep" || e.Name() != "c.txt" {
		t.Errorf("c.txt entry = %+v", e)
	}
	if e := byPath["docs"]; !e.IsDir || e.Size != 0 || e.Dir() != "" {
		t.Errorf("docs entry = %+v", e)
	}
}

func TestWalker_Walk_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWalker(nil)
	if _, err := w.Walk(file); err == nil {
		t.Error("Walk(file) expected error")
	}
	if _, err := w.Walk(filepath.Join(dir, "missing")); err == nil {
		t.Error("Walk(missing) expected error")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, map[string]string{"sub/f.txt": "hello"})

	entries, err := NewWalker(nil).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	if _, err := Open(entries[0]); err == nil {
		t.Error("Open(directory) expected error")
	}
	rc, err := Open(entries[1])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}
