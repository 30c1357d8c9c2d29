package localfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is read from the root of an imported directory.
const IgnoreFileName = ".dmsignore"

type ignorePattern struct {
	glob      string
	matchPath bool // glob contains '/': match the whole relative path
	dirOnly   bool // written with a trailing '/'
}

// IgnoreMatcher decides which entries of an imported tree are skipped.
//
// A pattern without '/' matches an entry's base name at any depth. A pattern
// containing '/' matches the slash-separated path relative to the import root.
// A trailing '/' restricts the pattern to directories. An ignored directory
// is skipped together with everything below it.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines, '#' comments and
// malformed globs are dropped. The ignore file itself is always ignored.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range append([]string{IgnoreFileName}, lines...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := ignorePattern{}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		raw = strings.TrimPrefix(raw, "/")
		if raw == "" {
			continue
		}
		if _, err := path.Match(raw, ""); err != nil {
			continue
		}
		p.glob = raw
		p.matchPath = strings.Contains(raw, "/")
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Match reports whether the entry at relPath (relative to the import root,
// OS separators allowed) is ignored.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	rel := filepath.ToSlash(relPath)
	if rel == "" || rel == "." {
		return false
	}
	base := path.Base(rel)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.matchPath {
			subject = rel
		}
		if ok, _ := path.Match(p.glob, subject); ok {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the lines of an ignore file, or nil when it does not exist.
func ReadIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
