package dms

import (
	"fmt"
	"sort"
	"time"
)

// Node is a file or folder record in the registry.
type Node struct {
	ID             string
	Name           string
	Path           string  // Directory path of the parent chain, "" at root level
	IsFolder       bool    // Immutable after creation
	ParentID       *string // nil = root level
	OwnerID        string  // Immutable
	Size           int64   // Always 0 for folders
	StorageKey     string  // Empty for folders
	InitialKey     string  // Key of the first upload, never changes
	IsFavorite     bool
	IsArchived     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time
	Metadata       Metadata
}

// ChildPath returns the path that children of this folder carry.
func (n *Node) ChildPath() string {
	if n.Path == "" {
		return n.Name
	}
	return n.Path + "/" + n.Name
}

// ContentType returns the content type recorded in the metadata bag, if any.
func (n *Node) ContentType() string {
	s, _ := n.Metadata[MetaContentType].(string)
	return s
}

// Share is a grant of a permission level on a node to another actor.
type Share struct {
	ID              string
	FileID          string
	OwnerID         string
	SharedWithID    string
	PermissionLevel PermissionLevel
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Version is an immutable, numbered snapshot of a file's content pointer.
type Version struct {
	ID            string
	FileID        string
	VersionNumber int64 // Assigned by the store, never by the caller
	StorageKey    string
	Size          int64
	CreatedBy     string
	Comment       string
	CreatedAt     time.Time
}

// Actor is an identity that can own nodes and receive grants.
type Actor struct {
	ID          string
	Email       string
	DisplayName string
}

// ShareWithActor is a share joined with the grantee's identity.
type ShareWithActor struct {
	*Share
	Actor Actor
}

// VersionWithActor is a version joined with its creator's identity.
type VersionWithActor struct {
	*Version
	Actor Actor
}

// SharedNode is a node shared with the current actor, carrying the grant for UI badges.
type SharedNode struct {
	*Node
	ShareID         string
	SharedBy        string
	PermissionLevel PermissionLevel
}

// Well-known metadata keys.
const (
	MetaContentType      = "contentType"
	MetaURL              = "url"
	MetaChecksum         = "checksum"
	MetaProcessingStatus = "processing_status"
	MetaAnalysis         = "analysis"
)

// Metadata is an open key/value bag attached to a node.
// Values must be JSON-compatible: string, bool, numbers, nil,
// []any or map[string]any of the same.
type Metadata map[string]any

// Validate checks that every key is non-empty and every value is JSON-compatible.
func (m Metadata) Validate() error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "" {
			return &ValidationError{Field: "metadata", Reason: "empty key"}
		}
		if err := validateMetaValue(m[k]); err != nil {
			return &ValidationError{Field: "metadata." + k, Reason: err.Error()}
		}
	}
	return nil
}

func validateMetaValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		for _, item := range val {
			if err := validateMetaValue(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, item := range val {
			if err := validateMetaValue(item); err != nil {
				return err
			}
		}
		return nil
	case Metadata:
		return validateMetaValue(map[string]any(val))
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

// Merge returns a copy of m with the entries of other applied on top.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// NodeQuery filters a node listing.
type NodeQuery struct {
	OwnerID  string
	ParentID *string // used when non-nil
	Path     *string // used when ParentID is nil and Path is non-nil
	Root     bool    // parent_id IS NULL; used when ParentID and Path are nil
	Archived *bool
	Favorite *bool
	Order    NodeOrder
}

// NodeOrder selects the ordering of a node listing.
type NodeOrder int

const (
	// OrderFoldersFirst sorts folders before files, then by name ascending.
	OrderFoldersFirst NodeOrder = iota
	// OrderRecentlyUpdated sorts by updated_at descending.
	OrderRecentlyUpdated
	// OrderFoldersByPath sorts folders before files, then by path and name.
	OrderFoldersByPath
)
