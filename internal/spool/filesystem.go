package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// NewFileSystemSpooler creates a spooler that buffers uploads as temp files
// in spoolDir:
//
//	<spool_dir>/
//	  upload-<random>    (one file per in-flight upload)
func NewFileSystemSpooler(spoolDir string, maxSize int64) (*Spooler, error) {
	if err := os.MkdirAll(spoolDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spooler{store: fileSystemStore{dir: spoolDir}, maxSize: maxSize}, nil
}

type fileSystemStore struct {
	dir string
}

func (s fileSystemStore) Create() (spoolFile, error) {
	f, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return nil, err
	}
	return &fileSystemFile{f: f, path: f.Name()}, nil
}

type fileSystemFile struct {
	f    *os.File
	path string
}

func (f *fileSystemFile) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

func (f *fileSystemFile) Seal() error {
	return f.f.Close()
}

func (f *fileSystemFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Remove deletes the spool file. Removing twice is not an error.
func (f *fileSystemFile) Remove() error {
	f.f.Close()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}
