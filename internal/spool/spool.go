// Package spool buffers incoming uploads so the core learns their size,
// checksum and content type before anything is written to the blob store.
package spool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"dms-go/internal/dms"
)

// sniffLen is the number of leading bytes http.DetectContentType considers.
const sniffLen = 512

// spoolFile is one buffered upload inside a spoolStore.
type spoolFile interface {
	io.Writer
	// Seal ends writing. Open may only be called after Seal.
	Seal() error
	Open() (io.ReadCloser, error)
	Remove() error
}

// spoolStore creates spool files. Memory and filesystem variants differ only here.
type spoolStore interface {
	Create() (spoolFile, error)
}

// Spooler implements dms.Spooler on top of a spoolStore.
type Spooler struct {
	store   spoolStore
	maxSize int64
}

var _ dms.Spooler = (*Spooler)(nil)

// Spool copies r into a new spool file while hashing it and capturing the
// leading bytes for content sniffing.
func (s *Spooler) Spool(r io.Reader) (dms.SpooledContent, error) {
	// 1. Create the spool file
	f, err := s.store.Create()
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}

	// 2. Copy at most maxSize+1 bytes so an oversized upload is detected without reading it all
	h := sha256.New()
	head := &headBuffer{limit: sniffLen}
	n, err := io.Copy(io.MultiWriter(f, h, head), io.LimitReader(r, s.maxSize+1))
	if err != nil {
		f.Remove()
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	if n > s.maxSize {
		f.Remove()
		return nil, &dms.ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("exceeds maximum upload size of %s", humanize.IBytes(uint64(s.maxSize))),
		}
	}

	// 3. Seal and describe the content
	if err := f.Seal(); err != nil {
		f.Remove()
		return nil, fmt.Errorf("sealing spool file: %w", err)
	}

	return &spooledContent{
		file:     f,
		size:     n,
		checksum: hex.EncodeToString(h.Sum(nil)),
		sniffed:  http.DetectContentType(head.buf),
	}, nil
}

// MaxSize returns the largest upload accepted, in bytes.
func (s *Spooler) MaxSize() int64 {
	return s.maxSize
}

type spooledContent struct {
	file     spoolFile
	size     int64
	checksum string
	sniffed  string
}

var _ dms.SpooledContent = (*spooledContent)(nil)

func (c *spooledContent) Size() int64         { return c.size }
func (c *spooledContent) Checksum() string    { return c.checksum }
func (c *spooledContent) SniffedType() string { return c.sniffed }

func (c *spooledContent) Open() (io.ReadCloser, error) {
	return c.file.Open()
}

func (c *spooledContent) Release() error {
	return c.file.Remove()
}

// headBuffer keeps the first limit bytes written to it and discards the rest.
type headBuffer struct {
	buf   []byte
	limit int
}

func (b *headBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}
