package dms

import "io"

// Spooler buffers an incoming upload before it is written to the blob store.
// Spooling gives the core a known size, a content checksum and a sniffed
// content type, and enforces the maximum upload size.
type Spooler interface {
	// Spool reads r to the end. Content larger than the configured limit is
	// rejected with a *ValidationError and nothing is retained.
	Spool(r io.Reader) (SpooledContent, error)
}

// SpooledContent is a fully buffered upload. Callers must Release it.
type SpooledContent interface {
	// Size returns the number of bytes spooled.
	Size() int64

	// Checksum returns the hex-encoded SHA-256 of the content.
	Checksum() string

	// SniffedType returns the content type detected from the leading bytes.
	SniffedType() string

	// Open returns a fresh reader over the content. It may be called more than once.
	Open() (io.ReadCloser, error)

	// Release discards the buffered content.
	Release() error
}
