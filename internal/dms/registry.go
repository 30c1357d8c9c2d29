package dms

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Registry owns the canonical node tree. It is a pure data layer: it has no
// notion of the acting user beyond the owner id it is handed.
type Registry struct {
	nodes  NodeStore
	blobs  BlobStore
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewRegistry creates a Registry over the given node store and blob store.
func NewRegistry(nodes NodeStore, blobs BlobStore, logger Logger, clock Clock, idgen IDGenerator) *Registry {
	return &Registry{
		nodes:  nodes,
		blobs:  blobs,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// UploadParams describes new file content to register.
type UploadParams struct {
	Name        string
	ParentID    *string
	OwnerID     string
	Content     io.Reader
	Size        int64
	ContentType string
	Metadata    Metadata // extra entries merged into the node's metadata
}

// ListQuery selects the children listing of a directory.
type ListQuery struct {
	OwnerID  string  // "" lists every owner's nodes (shared folders)
	ParentID *string // takes precedence over Path
	Path     string  // used when ParentID is nil; "" means the root level
	Archived bool    // list the archive view instead of live nodes
}

// KeyLister returns additional blob keys belonging to a file, such as the
// keys of its historical versions.
type KeyLister func(ctx context.Context, fileID string) ([]string, error)

// CreateFolder creates an empty folder under parentID (nil for the root level).
func (r *Registry) CreateFolder(ctx context.Context, name string, parentID *string, ownerID string) (*Node, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateActorID(ownerID); err != nil {
		return nil, err
	}

	dir, err := r.resolveParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := r.checkSiblingName(ctx, ownerID, parentID, name); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	node := &Node{
		ID:             r.idgen.New(),
		Name:           name,
		Path:           dir,
		IsFolder:       true,
		ParentID:       parentID,
		OwnerID:        ownerID,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		Metadata:       Metadata{},
	}
	if err := r.nodes.InsertNode(ctx, node); err != nil {
		return nil, fmt.Errorf("inserting folder: %w", err)
	}

	r.logger.Info("folder created", "id", node.ID, "path", node.ChildPath())
	return node, nil
}

// UploadContent writes the content to the blob store and then records the node.
// Metadata is only written once the blob write has succeeded, so a failed
// upload never leaves a node row behind.
func (r *Registry) UploadContent(ctx context.Context, p UploadParams) (*Node, error) {
	name, err := validateName(p.Name)
	if err != nil {
		return nil, err
	}
	if err := ValidateActorID(p.OwnerID); err != nil {
		return nil, err
	}
	if p.Size < 0 {
		return nil, &ValidationError{Field: "size", Reason: "must not be negative"}
	}
	if err := p.Metadata.Validate(); err != nil {
		return nil, err
	}

	dir, err := r.resolveParent(ctx, p.ParentID)
	if err != nil {
		return nil, err
	}
	if err := r.checkSiblingName(ctx, p.OwnerID, p.ParentID, name); err != nil {
		return nil, err
	}

	// 1. Blob first.
	id := r.idgen.New()
	key := uploadKey(p.OwnerID, dir, name, id)
	if err := r.blobs.Put(ctx, key, p.Content, p.Size, p.ContentType); err != nil {
		return nil, &StorageWriteError{Key: key, Err: err}
	}

	// 2. Metadata row.
	now := r.clock.Now()
	node := &Node{
		ID:             id,
		Name:           name,
		Path:           dir,
		ParentID:       p.ParentID,
		OwnerID:        p.OwnerID,
		Size:           p.Size,
		StorageKey:     key,
		InitialKey:     key,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		Metadata: p.Metadata.Merge(Metadata{
			MetaContentType: p.ContentType,
			MetaURL:         r.blobs.PublicURL(key),
		}),
	}
	if err := r.nodes.InsertNode(ctx, node); err != nil {
		// Compensate: the blob is useless without its row.
		if delErr := r.blobs.Delete(ctx, key); delErr != nil {
			r.logger.Warn("orphaned blob after failed insert", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("inserting file: %w", err)
	}

	r.logger.Info("file uploaded", "id", node.ID, "key", key, "size", node.Size)
	return node, nil
}

// PutRevision writes new content for an existing file under a fresh key and
// returns that key. The node itself is not modified.
func (r *Registry) PutRevision(ctx context.Context, node *Node, content io.Reader, size int64, checksum, contentType string) (string, error) {
	if node.IsFolder {
		return "", &ValidationError{Field: "file_id", Reason: "folders have no content"}
	}
	if checksum == "" {
		return "", &ValidationError{Field: "checksum", Reason: "must not be empty"}
	}

	key := revisionKey(node.OwnerID, node.Path, node.Name, node.ID, checksum)
	if err := r.blobs.Put(ctx, key, content, size, contentType); err != nil {
		return "", &StorageWriteError{Key: key, Err: err}
	}
	return key, nil
}

// SetContent points a file at the content stored under key. The metadata
// patch is merged into the node's bag and the public URL is refreshed.
func (r *Registry) SetContent(ctx context.Context, node *Node, key string, size int64, patch Metadata) (*Node, error) {
	if node.IsFolder {
		return nil, &ValidationError{Field: "file_id", Reason: "folders have no content"}
	}
	if key == "" {
		return nil, &ValidationError{Field: "storage_key", Reason: "must not be empty"}
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	// The checksum describes the replaced content; the patch may supply a new one.
	md := node.Metadata.Merge(nil)
	delete(md, MetaChecksum)
	md = md.Merge(patch)
	md[MetaURL] = r.blobs.PublicURL(key)

	now := r.clock.Now()
	ok, err := r.nodes.UpdateNodeContent(ctx, node.ID, key, size, md, now)
	if err != nil {
		return nil, fmt.Errorf("updating file content: %w", err)
	}
	if !ok {
		return nil, notFound("node", node.ID)
	}

	updated := *node
	updated.StorageKey = key
	updated.Size = size
	updated.Metadata = md
	updated.UpdatedAt = now
	return &updated, nil
}

// UpdateMetadata merges patch into the node's metadata bag.
func (r *Registry) UpdateMetadata(ctx context.Context, id string, patch Metadata) (*Node, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	node, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	md := node.Metadata.Merge(patch)
	now := r.clock.Now()
	ok, err := r.nodes.UpdateNodeMetadata(ctx, id, md, now)
	if err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}
	if !ok {
		return nil, notFound("node", id)
	}
	node.Metadata = md
	node.UpdatedAt = now
	return node, nil
}

// GetByID returns the node or a NotFoundError.
func (r *Registry) GetByID(ctx context.Context, id string) (*Node, error) {
	node, err := r.nodes.GetNode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding node: %w", err)
	}
	if node == nil {
		return nil, notFound("node", id)
	}
	return node, nil
}

// ListChildren lists a directory: folders first, then by name.
// Archived nodes are hidden unless the archive view is requested.
func (r *Registry) ListChildren(ctx context.Context, q ListQuery) ([]*Node, error) {
	archived := q.Archived
	nq := NodeQuery{
		OwnerID:  q.OwnerID,
		Archived: &archived,
		Order:    OrderFoldersFirst,
	}
	switch {
	case q.ParentID != nil:
		nq.ParentID = q.ParentID
	case q.Path != "":
		p := strings.Trim(q.Path, "/")
		nq.Path = &p
	default:
		nq.Root = true
	}

	nodes, err := r.nodes.ListNodes(ctx, nq)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return nodes, nil
}

// ListArchived returns every archived node of the owner, most recently updated first.
func (r *Registry) ListArchived(ctx context.Context, ownerID string) ([]*Node, error) {
	archived := true
	nodes, err := r.nodes.ListNodes(ctx, NodeQuery{OwnerID: ownerID, Archived: &archived, Order: OrderRecentlyUpdated})
	if err != nil {
		return nil, fmt.Errorf("listing archived nodes: %w", err)
	}
	return nodes, nil
}

// ListAll returns every live node of the owner at any depth, folders first,
// then by path and name.
func (r *Registry) ListAll(ctx context.Context, ownerID string) ([]*Node, error) {
	archived := false
	nodes, err := r.nodes.ListNodes(ctx, NodeQuery{OwnerID: ownerID, Archived: &archived, Order: OrderFoldersByPath})
	if err != nil {
		return nil, fmt.Errorf("listing all nodes: %w", err)
	}
	return nodes, nil
}

// ListFavorites returns the owner's live favorites, most recently updated first.
func (r *Registry) ListFavorites(ctx context.Context, ownerID string) ([]*Node, error) {
	archived, favorite := false, true
	nodes, err := r.nodes.ListNodes(ctx, NodeQuery{OwnerID: ownerID, Archived: &archived, Favorite: &favorite, Order: OrderRecentlyUpdated})
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	return nodes, nil
}

// ToggleFavorite sets the favorite flag. Repeating the call is a no-op.
func (r *Registry) ToggleFavorite(ctx context.Context, id string, value bool) error {
	return r.setFlag(ctx, id, FlagFavorite, value)
}

// SetArchived moves a node into or out of the archive. Repeating the call is a no-op.
func (r *Registry) SetArchived(ctx context.Context, id string, value bool) error {
	return r.setFlag(ctx, id, FlagArchived, value)
}

func (r *Registry) setFlag(ctx context.Context, id string, flag NodeFlag, value bool) error {
	ok, err := r.nodes.SetNodeFlag(ctx, id, flag, value, r.clock.Now())
	if err != nil {
		return fmt.Errorf("updating node flag: %w", err)
	}
	if !ok {
		return notFound("node", id)
	}
	return nil
}

// Download writes the file's current content to w and stamps lastAccessedAt.
func (r *Registry) Download(ctx context.Context, node *Node, w io.Writer) error {
	if node.IsFolder {
		return &ValidationError{Field: "file_id", Reason: "cannot download a folder"}
	}
	if node.StorageKey == "" {
		return &ValidationError{Field: "file_id", Reason: "file has no content"}
	}

	if err := r.blobs.Get(ctx, node.StorageKey, w); err != nil {
		return &StorageReadError{Key: node.StorageKey, Err: err}
	}

	if err := r.nodes.TouchNode(ctx, node.ID, r.clock.Now()); err != nil {
		r.logger.Warn("failed to stamp last access", "id", node.ID, "error", err)
	}
	return nil
}

// Delete removes a node. Folders are deleted post-order: every descendant
// before its parent. Blob removal is best-effort: a failed blob delete is
// logged, the metadata row is still removed, and the failure is reported
// through a *PartialDeleteError once the whole tree is gone.
// extraKeys, when non-nil, lists further blobs owned by each file.
func (r *Registry) Delete(ctx context.Context, node *Node, extraKeys KeyLister) error {
	var failures []BlobFailure
	if err := r.deleteTree(ctx, node, extraKeys, &failures); err != nil {
		return err
	}
	if len(failures) > 0 {
		return &PartialDeleteError{Failures: failures}
	}
	return nil
}

func (r *Registry) deleteTree(ctx context.Context, node *Node, extraKeys KeyLister, failures *[]BlobFailure) error {
	if node.IsFolder {
		childIDs, err := r.nodes.ListChildIDs(ctx, node.ID)
		if err != nil {
			return fmt.Errorf("listing children of %s: %w", node.ID, err)
		}
		for _, id := range childIDs {
			child, err := r.nodes.GetNode(ctx, id)
			if err != nil {
				return fmt.Errorf("finding child %s: %w", id, err)
			}
			if child == nil {
				continue // removed concurrently
			}
			if err := r.deleteTree(ctx, child, extraKeys, failures); err != nil {
				return err
			}
		}
	}

	keys, err := r.blobKeys(ctx, node, extraKeys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.blobs.Delete(ctx, key); err != nil {
			r.logger.Warn("blob cleanup failed", "id", node.ID, "key", key, "error", err)
			*failures = append(*failures, BlobFailure{NodeID: node.ID, Key: key, Err: err})
		}
	}

	if err := r.nodes.DeleteNode(ctx, node.ID); err != nil {
		return fmt.Errorf("deleting node %s: %w", node.ID, err)
	}
	r.logger.Info("node deleted", "id", node.ID, "name", node.Name)
	return nil
}

// blobKeys returns the distinct blob keys a node owns, current content first.
// Deleting a key that was never written is harmless for every store.
func (r *Registry) blobKeys(ctx context.Context, node *Node, extraKeys KeyLister) ([]string, error) {
	if node.IsFolder {
		return nil, nil
	}

	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	add(node.StorageKey)
	// The first upload is not versioned; its blob outlives later updates.
	add(node.InitialKey)
	if extraKeys != nil {
		extra, err := extraKeys(ctx, node.ID)
		if err != nil {
			return nil, fmt.Errorf("listing blob keys of %s: %w", node.ID, err)
		}
		for _, k := range extra {
			add(k)
		}
	}
	return keys, nil
}

// resolveParent validates parentID and returns the directory path children of it carry.
func (r *Registry) resolveParent(ctx context.Context, parentID *string) (string, error) {
	if parentID == nil {
		return "", nil
	}
	parent, err := r.nodes.GetNode(ctx, *parentID)
	if err != nil {
		return "", fmt.Errorf("finding parent: %w", err)
	}
	if parent == nil {
		return "", &ValidationError{Field: "parent_id", Reason: fmt.Sprintf("parent %s does not exist", *parentID)}
	}
	if !parent.IsFolder {
		return "", &ValidationError{Field: "parent_id", Reason: fmt.Sprintf("parent %s is not a folder", *parentID)}
	}
	return parent.ChildPath(), nil
}

func (r *Registry) checkSiblingName(ctx context.Context, ownerID string, parentID *string, name string) error {
	existing, err := r.nodes.FindNodeByName(ctx, ownerID, parentID, name)
	if err != nil {
		return fmt.Errorf("checking for existing name: %w", err)
	}
	if existing != nil {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q already exists", name)}
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	case name == "." || name == "..":
		return "", &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is reserved", name)}
	case strings.ContainsAny(name, "/\\"):
		return "", &ValidationError{Field: "name", Reason: "must not contain path separators"}
	}
	return name, nil
}
