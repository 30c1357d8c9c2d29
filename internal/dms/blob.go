package dms

import (
	"context"
	"io"
)

// BlobStore is the key-addressed binary storage the registry writes content to.
// All operations stream through io.Reader/io.Writer so large files are never
// held in memory by the core.
type BlobStore interface {
	// Put stores the content read from r under key. size is -1 when the
	// length is not known up front. Writing the same key twice is
	// last-writer-wins.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get writes the content stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete removes the content under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the URL at which the content under key is reachable.
	PublicURL(key string) string
}

// IdentityProvider supplies the current actor and resolves actor ids to
// display-ready identities.
type IdentityProvider interface {
	// CurrentActor returns the actor performing the request.
	CurrentActor(ctx context.Context) (Actor, error)

	// ResolveActor returns the identity for id. Unknown ids resolve to a
	// placeholder identity rather than an error.
	ResolveActor(ctx context.Context, id string) (Actor, error)
}
