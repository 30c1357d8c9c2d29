// Package localfs reads a local directory tree for bulk import.
package localfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry is a directory or regular file found under the import root.
type Entry struct {
	RelPath string // slash-separated, relative to the root
	AbsPath string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Dir returns the slash-separated relative path of the entry's parent, "" at the root.
func (e Entry) Dir() string {
	d := filepath.ToSlash(filepath.Dir(filepath.FromSlash(e.RelPath)))
	if d == "." {
		return ""
	}
	return d
}

// Name returns the entry's base name.
func (e Entry) Name() string {
	return filepath.Base(e.AbsPath)
}

// Walker lists importable entries of a directory tree.
type Walker struct {
	ignore []string
}

// NewWalker creates a Walker applying the given ignore patterns in addition
// to those in the root's ignore file.
func NewWalker(ignore []string) *Walker {
	return &Walker{ignore: ignore}
}

// Walk returns every directory and regular file below root in lexical order,
// each directory before its contents. Symlinks, devices, pipes and sockets
// are skipped.
func (w *Walker) Walk(root string) ([]Entry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat import root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import root is not a directory: %s", abs)
	}

	fileLines, err := ReadIgnoreFile(filepath.Join(abs, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(append(append([]string(nil), w.ignore...), fileLines...))

	var entries []Entry
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == abs {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		e := Entry{
			RelPath: filepath.ToSlash(rel),
			AbsPath: p,
			IsDir:   d.IsDir(),
			ModTime: fi.ModTime(),
		}
		if !e.IsDir {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return entries, nil
}

// Open opens a file entry for reading.
func Open(e Entry) (io.ReadCloser, error) {
	if e.IsDir {
		return nil, fmt.Errorf("cannot open directory as file: %s", e.AbsPath)
	}
	return os.Open(e.AbsPath)
}
