package spool

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dms-go/internal/config"
	"dms-go/internal/dms"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func readAll(t *testing.T, c dms.SpooledContent) string {
	t.Helper()
	rc, err := c.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(data)
}

func TestSpooler(t *testing.T) {
	variants := map[string]func(t *testing.T, max int64) *Spooler{
		"memory": func(t *testing.T, max int64) *Spooler {
			return NewMemorySpooler(max)
		},
		"filesystem": func(t *testing.T, max int64) *Spooler {
			s, err := NewFileSystemSpooler(t.TempDir(), max)
			if err != nil {
				t.Fatalf("NewFileSystemSpooler() error = %v", err)
			}
			return s
		},
	}

	for name, newSpooler := range variants {
		name, newSpooler := name, newSpooler
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tests := []struct {
				name      string
				input     string
				wantType  string
				wantError bool
			}{
				{name: "plain text", input: "meeting notes", wantType: "text/plain; charset=utf-8"},
				{name: "pdf", input: "%PDF-1.7\n...", wantType: "application/pdf"},
				{name: "empty", input: "", wantType: "text/plain; charset=utf-8"},
				{name: "exactly at limit", input: strings.Repeat("a", 64), wantType: "text/plain; charset=utf-8"},
				{name: "over limit", input: strings.Repeat("a", 65), wantError: true},
			}

			for _, tt := range tests {
				tt := tt
				t.Run(tt.name, func(t *testing.T) {
					s := newSpooler(t, 64)
					c, err := s.Spool(strings.NewReader(tt.input))
					if tt.wantError {
						if !errors.Is(err, dms.ErrValidation) {
							t.Fatalf("Spool() error = %v, want validation error", err)
						}
						return
					}
					if err != nil {
						t.Fatalf("Spool() error = %v", err)
					}
					defer c.Release()

					if c.Size() != int64(len(tt.input)) {
						t.Errorf("Size() = %d, want %d", c.Size(), len(tt.input))
					}
					if c.Checksum() != sha256Hex(tt.input) {
						t.Errorf("Checksum() = %s, want %s", c.Checksum(), sha256Hex(tt.input))
					}
					if c.SniffedType() != tt.wantType {
						t.Errorf("SniffedType() = %q, want %q", c.SniffedType(), tt.wantType)
					}

					// Open twice: the content must be re-readable.
					for i := 0; i < 2; i++ {
						if got := readAll(t, c); got != tt.input {
							t.Errorf("Open() #%d read %q, want %q", i+1, got, tt.input)
						}
					}
				})
			}
		})
	}
}

func TestFileSystemSpooler_Cleanup(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSystemSpooler(dir, 16)
	if err != nil {
		t.Fatalf("NewFileSystemSpooler() error = %v", err)
	}

	countFiles := func() int {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir() error = %v", err)
		}
		return len(entries)
	}

	t.Run("rejected upload leaves no file", func(t *testing.T) {
		if _, err := s.Spool(bytes.NewReader(make([]byte, 17))); err == nil {
			t.Fatal("Spool() expected error")
		}
		if n := countFiles(); n != 0 {
			t.Errorf("spool dir has %d files, want 0", n)
		}
	})

	t.Run("release removes file", func(t *testing.T) {
		c, err := s.Spool(strings.NewReader("small"))
		if err != nil {
			t.Fatalf("Spool() error = %v", err)
		}
		if n := countFiles(); n != 1 {
			t.Errorf("spool dir has %d files, want 1", n)
		}
		if err := c.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := c.Release(); err != nil {
			t.Errorf("second Release() error = %v", err)
		}
		if n := countFiles(); n != 0 {
			t.Errorf("spool dir has %d files after release, want 0", n)
		}
	})
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSpooler_ReadError(t *testing.T) {
	s := NewMemorySpooler(1024)
	_, err := s.Spool(brokenReader{})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Spool() error = %v, want read error", err)
	}
	if errors.Is(err, dms.ErrValidation) {
		t.Error("read error reported as validation error")
	}
}

func TestMemorySpooler_OpenAfterRelease(t *testing.T) {
	c, err := NewMemorySpooler(1024).Spool(strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Spool() error = %v", err)
	}
	c.Release()
	if _, err := c.Open(); err == nil {
		t.Error("Open() after Release expected error")
	}
}

func TestNewSpoolerFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SpoolConfig
		wantMax int64
		wantErr bool
	}{
		{name: "memory default size", cfg: config.SpoolConfig{Type: "memory"}, wantMax: config.DefaultMaxUploadSize},
		{name: "memory custom size", cfg: config.SpoolConfig{Type: "memory", MaxSize: 10}, wantMax: 10},
		{name: "filesystem", cfg: config.SpoolConfig{Type: "filesystem", SpoolDir: filepath.Join(t.TempDir(), "spool")}, wantMax: config.DefaultMaxUploadSize},
		{name: "filesystem without dir", cfg: config.SpoolConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.SpoolConfig{Type: "tape"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSpoolerFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSpoolerFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if max := got.(*Spooler).MaxSize(); max != tt.wantMax {
				t.Errorf("MaxSize() = %d, want %d", max, tt.wantMax)
			}
		})
	}
}
