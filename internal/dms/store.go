package dms

import (
	"context"
	"time"
)

// NodeStore persists the node tree. Lookups return nil, nil when the row does not exist.
// Update methods report whether a row was matched.
type NodeStore interface {
	// InsertNode persists a new node row.
	InsertNode(ctx context.Context, node *Node) error

	// GetNode returns a node by id.
	GetNode(ctx context.Context, id string) (*Node, error)

	// FindNodeByName returns the sibling with the given name under parentID for an owner.
	FindNodeByName(ctx context.Context, ownerID string, parentID *string, name string) (*Node, error)

	// ListNodes returns nodes matching the query in the requested order.
	ListNodes(ctx context.Context, q NodeQuery) ([]*Node, error)

	// ListChildIDs returns the ids of every direct child of a folder regardless of owner or archive state.
	ListChildIDs(ctx context.Context, parentID string) ([]string, error)

	// SetNodeFlag sets a boolean flag. updated_at only moves when the value changes.
	SetNodeFlag(ctx context.Context, id string, flag NodeFlag, value bool, at time.Time) (bool, error)

	// UpdateNodeContent points a file at new content and replaces its metadata in one write.
	UpdateNodeContent(ctx context.Context, id string, storageKey string, size int64, md Metadata, at time.Time) (bool, error)

	// UpdateNodeMetadata replaces the metadata bag.
	UpdateNodeMetadata(ctx context.Context, id string, md Metadata, at time.Time) (bool, error)

	// TouchNode stamps last_accessed_at.
	TouchNode(ctx context.Context, id string, at time.Time) error

	// DeleteNode removes the node row. Shares and versions of the node go with it.
	DeleteNode(ctx context.Context, id string) error
}

// NodeFlag names a mutable boolean flag of a node.
type NodeFlag int

const (
	FlagFavorite NodeFlag = iota + 1
	FlagArchived
)

// ShareStore persists grants. Lookups return nil, nil when the row does not exist.
type ShareStore interface {
	// UpsertShare creates the grant for (FileID, SharedWithID) or updates its level.
	// The returned share carries the persisted id.
	UpsertShare(ctx context.Context, share *Share) (*Share, error)

	GetShare(ctx context.Context, id string) (*Share, error)
	FindShare(ctx context.Context, fileID, sharedWithID string) (*Share, error)
	ListSharesForFile(ctx context.Context, fileID string) ([]*Share, error)
	ListSharesForActor(ctx context.Context, actorID string) ([]*Share, error)
	UpdateSharePermission(ctx context.Context, id string, level PermissionLevel, at time.Time) (bool, error)
	DeleteShare(ctx context.Context, id string) (bool, error)
}

// VersionStore persists the append-only version history.
type VersionStore interface {
	// AppendVersion inserts a version, assigning VersionNumber as max+1 for the file
	// in a single atomic step. Concurrent callers never receive the same number.
	AppendVersion(ctx context.Context, v *Version) (*Version, error)

	GetVersion(ctx context.Context, id string) (*Version, error)

	// ListVersions returns the file's versions ordered by version_number descending.
	ListVersions(ctx context.Context, fileID string) ([]*Version, error)
}

// ActorDirectory looks up actor identity records.
type ActorDirectory interface {
	// FindActor returns nil, nil when the actor is unknown.
	FindActor(ctx context.Context, id string) (*Actor, error)
}
