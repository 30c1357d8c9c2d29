package dms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrAnalyzerUnavailable is returned by analysis operations when no analysis
// service is configured.
var ErrAnalyzerUnavailable = errors.New("analysis service not configured")

// Processing states recorded under MetaProcessingStatus.
const (
	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
)

// Search defaults used when a query leaves them unset.
const (
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 10
)

// resolveConcurrency bounds concurrent identity lookups.
const resolveConcurrency = 8

// DocumentService is the single entry point the application uses. It resolves
// the current actor, enforces permissions and runs the multi-step operations
// across the registry, ledger and chain.
type DocumentService struct {
	registry *Registry
	ledger   *Ledger
	chain    *Chain
	spooler  Spooler
	identity IdentityProvider
	analyzer Analyzer
	logger   Logger
}

// NewDocumentService creates the façade. analyzer may be nil, in which case
// ProcessDocument and SearchDocuments return ErrAnalyzerUnavailable.
func NewDocumentService(registry *Registry, ledger *Ledger, chain *Chain, spooler Spooler, identity IdentityProvider, analyzer Analyzer, logger Logger) *DocumentService {
	return &DocumentService{
		registry: registry,
		ledger:   ledger,
		chain:    chain,
		spooler:  spooler,
		identity: identity,
		analyzer: analyzer,
		logger:   logger,
	}
}

// UploadRequest is a new file upload.
type UploadRequest struct {
	Name        string
	ParentID    *string
	Content     io.Reader
	ContentType string // sniffed from the content when empty
	Metadata    Metadata
}

// UpdateRequest replaces the content of an existing file.
type UpdateRequest struct {
	FileID      string
	Content     io.Reader
	ContentType string // sniffed from the content when empty
	Comment     string // defaults to DefaultUpdateComment
}

// UpdateResult is the outcome of a content update.
type UpdateResult struct {
	Node    *Node
	Version *Version
}

// CurrentActor returns the actor requests are performed as.
func (s *DocumentService) CurrentActor(ctx context.Context) (Actor, error) {
	actor, err := s.identity.CurrentActor(ctx)
	if err != nil {
		return Actor{}, fmt.Errorf("resolving current actor: %w", err)
	}
	if actor.ID == "" {
		return Actor{}, &ValidationError{Field: "actor", Reason: "no current actor"}
	}
	return actor, nil
}

// CreateFolder creates a folder owned by the current actor.
func (s *DocumentService) CreateFolder(ctx context.Context, name string, parentID *string) (*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireParent(ctx, actor.ID, parentID); err != nil {
		return nil, err
	}
	return s.registry.CreateFolder(ctx, name, parentID, actor.ID)
}

// UploadFile stores a new file owned by the current actor. No version is
// recorded for the initial content; history starts at the first update.
func (s *DocumentService) UploadFile(ctx context.Context, req UploadRequest) (*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireParent(ctx, actor.ID, req.ParentID); err != nil {
		return nil, err
	}

	spooled, err := s.spooler.Spool(req.Content)
	if err != nil {
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	defer s.release(spooled)

	content, err := spooled.Open()
	if err != nil {
		return nil, fmt.Errorf("opening spooled upload: %w", err)
	}
	defer content.Close()

	return s.registry.UploadContent(ctx, UploadParams{
		Name:        req.Name,
		ParentID:    req.ParentID,
		OwnerID:     actor.ID,
		Content:     content,
		Size:        spooled.Size(),
		ContentType: contentTypeOr(req.ContentType, spooled),
		Metadata:    req.Metadata.Merge(Metadata{MetaChecksum: spooled.Checksum()}),
	})
}

// UpdateFileContent replaces a file's content. The new blob is written, the
// node is pointed at it, and only then is a version recorded for the new key.
func (s *DocumentService) UpdateFileContent(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	node, err := s.authorize(ctx, actor.ID, req.FileID, PermissionEdit)
	if err != nil {
		return nil, err
	}
	if node.IsFolder {
		return nil, &ValidationError{Field: "file_id", Reason: "folders have no content"}
	}

	spooled, err := s.spooler.Spool(req.Content)
	if err != nil {
		return nil, fmt.Errorf("spooling update: %w", err)
	}
	defer s.release(spooled)

	content, err := spooled.Open()
	if err != nil {
		return nil, fmt.Errorf("opening spooled update: %w", err)
	}
	defer content.Close()

	contentType := contentTypeOr(req.ContentType, spooled)

	// 1. Write the new blob.
	key, err := s.registry.PutRevision(ctx, node, content, spooled.Size(), spooled.Checksum(), contentType)
	if err != nil {
		return nil, err
	}

	// 2. Point the node at it.
	updated, err := s.registry.SetContent(ctx, node, key, spooled.Size(), Metadata{
		MetaChecksum:    spooled.Checksum(),
		MetaContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	// 3. Record the version the update introduced.
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		comment = DefaultUpdateComment
	}
	version, err := s.chain.CreateVersion(ctx, node.ID, key, spooled.Size(), actor.ID, comment)
	if err != nil {
		return nil, fmt.Errorf("content updated but version not recorded: %w", err)
	}

	return &UpdateResult{Node: updated, Version: version}, nil
}

// Download writes the current content of a file to w.
func (s *DocumentService) Download(ctx context.Context, fileID string, w io.Writer) (*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	node, err := s.authorize(ctx, actor.ID, fileID, PermissionView)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Download(ctx, node, w); err != nil {
		return nil, err
	}
	return node, nil
}

// GetNode returns a node the current actor may view.
func (s *DocumentService) GetNode(ctx context.Context, id string) (*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, actor.ID, id, PermissionView)
}

// ListChildren lists a directory of the current actor. Listing inside a
// folder owned by someone else requires view permission on that folder and
// shows every owner's children.
func (s *DocumentService) ListChildren(ctx context.Context, q ListQuery) ([]*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	q.OwnerID = actor.ID

	if q.ParentID != nil {
		parent, err := s.authorize(ctx, actor.ID, *q.ParentID, PermissionView)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder {
			return nil, &ValidationError{Field: "parent_id", Reason: fmt.Sprintf("%s is not a folder", parent.ID)}
		}
		if parent.OwnerID != actor.ID {
			q.OwnerID = ""
		}
	}
	return s.registry.ListChildren(ctx, q)
}

// ListAll returns every live node the current actor owns as one flat list.
// Nodes shared with the actor are not included.
func (s *DocumentService) ListAll(ctx context.Context) ([]*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.ListAll(ctx, actor.ID)
}

// ListFavorites returns the current actor's favorites.
func (s *DocumentService) ListFavorites(ctx context.Context) ([]*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.ListFavorites(ctx, actor.ID)
}

// ListArchived returns the current actor's archived nodes.
func (s *DocumentService) ListArchived(ctx context.Context) ([]*Node, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.ListArchived(ctx, actor.ID)
}

// SetFavorite marks or unmarks a node as favorite.
func (s *DocumentService) SetFavorite(ctx context.Context, id string, value bool) error {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, actor.ID, id, PermissionEdit); err != nil {
		return err
	}
	return s.registry.ToggleFavorite(ctx, id, value)
}

// SetArchived moves a node into or out of the archive.
func (s *DocumentService) SetArchived(ctx context.Context, id string, value bool) error {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, actor.ID, id, PermissionEdit); err != nil {
		return err
	}
	return s.registry.SetArchived(ctx, id, value)
}

// DeleteNode deletes a node, its descendants and their history. A
// *PartialDeleteError means the metadata is gone but some blobs remain.
func (s *DocumentService) DeleteNode(ctx context.Context, id string) error {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return err
	}
	node, err := s.authorize(ctx, actor.ID, id, PermissionEdit)
	if err != nil {
		return err
	}
	return s.registry.Delete(ctx, node, s.chain.StorageKeys)
}

// ShareDocument grants level on a node the current actor owns.
func (s *DocumentService) ShareDocument(ctx context.Context, fileID, sharedWithID string, level PermissionLevel) (*ShareWithActor, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	node, err := s.registry.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if node.OwnerID != actor.ID {
		return nil, &PermissionDeniedError{ActorID: actor.ID, NodeID: fileID, Required: PermissionEdit}
	}

	share, err := s.ledger.Share(ctx, fileID, actor.ID, sharedWithID, level)
	if err != nil {
		return nil, err
	}
	grantee, err := s.identity.ResolveActor(ctx, share.SharedWithID)
	if err != nil {
		return nil, fmt.Errorf("resolving grantee: %w", err)
	}
	return &ShareWithActor{Share: share, Actor: grantee}, nil
}

// ListShares returns the grants on a node with the grantees' identities.
func (s *DocumentService) ListShares(ctx context.Context, fileID string) ([]*ShareWithActor, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor.ID, fileID, PermissionView); err != nil {
		return nil, err
	}

	shares, err := s.ledger.ListShares(ctx, fileID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(shares))
	for i, sh := range shares {
		ids[i] = sh.SharedWithID
	}
	actors, err := s.resolveActors(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*ShareWithActor, len(shares))
	for i, sh := range shares {
		result[i] = &ShareWithActor{Share: sh, Actor: actors[sh.SharedWithID]}
	}
	return result, nil
}

// ListSharedWithMe returns the nodes shared with the current actor.
func (s *DocumentService) ListSharedWithMe(ctx context.Context) ([]*SharedNode, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListSharedWith(ctx, actor.ID)
}

// UpdateSharePermission changes the level of a grant the current actor made.
func (s *DocumentService) UpdateSharePermission(ctx context.Context, shareID string, level PermissionLevel) error {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return err
	}
	share, err := s.ledger.GetShare(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != actor.ID {
		return &PermissionDeniedError{ActorID: actor.ID, NodeID: share.FileID, Required: PermissionEdit}
	}
	return s.ledger.UpdatePermission(ctx, shareID, level)
}

// RemoveShare revokes a grant. The owner may revoke it, and the grantee may
// give it up.
func (s *DocumentService) RemoveShare(ctx context.Context, shareID string) error {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return err
	}
	share, err := s.ledger.GetShare(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != actor.ID && share.SharedWithID != actor.ID {
		return &PermissionDeniedError{ActorID: actor.ID, NodeID: share.FileID, Required: PermissionEdit}
	}
	return s.ledger.Remove(ctx, shareID)
}

// ListVersions returns a file's history, most recent first, with creator identities.
func (s *DocumentService) ListVersions(ctx context.Context, fileID string) ([]*VersionWithActor, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor.ID, fileID, PermissionView); err != nil {
		return nil, err
	}

	versions, err := s.chain.ListVersions(ctx, fileID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(versions))
	for i, v := range versions {
		ids[i] = v.CreatedBy
	}
	actors, err := s.resolveActors(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*VersionWithActor, len(versions))
	for i, v := range versions {
		result[i] = &VersionWithActor{Version: v, Actor: actors[v.CreatedBy]}
	}
	return result, nil
}

// GetVersion returns one version with its creator's identity.
func (s *DocumentService) GetVersion(ctx context.Context, versionID string) (*VersionWithActor, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.chain.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor.ID, v.FileID, PermissionView); err != nil {
		return nil, err
	}
	creator, err := s.identity.ResolveActor(ctx, v.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("resolving version creator: %w", err)
	}
	return &VersionWithActor{Version: v, Actor: creator}, nil
}

// RestoreVersion makes an earlier version current. See Chain.Restore for the
// failure modes.
func (s *DocumentService) RestoreVersion(ctx context.Context, versionID string) (*RestoreResult, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.chain.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor.ID, v.FileID, PermissionEdit); err != nil {
		return nil, err
	}
	return s.chain.Restore(ctx, versionID, actor.ID)
}

// CompleteRestore retries the node update of a restore that failed with
// *RestoreIncompleteError.
func (s *DocumentService) CompleteRestore(ctx context.Context, incomplete *RestoreIncompleteError) (*RestoreResult, error) {
	if incomplete == nil {
		return nil, &ValidationError{Field: "restore", Reason: "missing restore state"}
	}
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor.ID, incomplete.FileID, PermissionEdit); err != nil {
		return nil, err
	}
	return s.chain.CompleteRestore(ctx, incomplete)
}

// ProcessDocument asks the analysis service to annotate a file and records
// the outcome in the file's metadata.
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string) (*Node, error) {
	if s.analyzer == nil {
		return nil, ErrAnalyzerUnavailable
	}
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	node, err := s.authorize(ctx, actor.ID, fileID, PermissionEdit)
	if err != nil {
		return nil, err
	}
	if node.IsFolder {
		return nil, &ValidationError{Field: "file_id", Reason: "cannot analyse a folder"}
	}

	analysis, err := s.analyzer.Process(ctx, fileID)
	if err != nil {
		s.logger.Warn("document analysis failed", "file_id", fileID, "error", err)
		if _, mdErr := s.registry.UpdateMetadata(ctx, fileID, Metadata{MetaProcessingStatus: ProcessingFailed}); mdErr != nil {
			s.logger.Error("recording analysis failure", "file_id", fileID, "error", mdErr)
		}
		return nil, fmt.Errorf("analysing document: %w", err)
	}

	return s.registry.UpdateMetadata(ctx, fileID, Metadata{
		MetaProcessingStatus: ProcessingCompleted,
		MetaAnalysis:         analysis.toMetadata(),
	})
}

// SearchDocuments runs a similarity search and returns the hits the current
// actor may view, in the order the service ranked them.
func (s *DocumentService) SearchDocuments(ctx context.Context, q SearchQuery) ([]*SearchResult, error) {
	if s.analyzer == nil {
		return nil, ErrAnalyzerUnavailable
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if q.Threshold <= 0 {
		q.Threshold = DefaultSearchThreshold
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}

	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	hits, err := s.analyzer.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	var results []*SearchResult
	for _, hit := range hits {
		ok, err := s.ledger.HasPermission(ctx, hit.FileID, actor.ID, PermissionView)
		if errors.Is(err, ErrNotFound) {
			continue // index is ahead of the registry
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		node, err := s.registry.GetByID(ctx, hit.FileID)
		if err != nil {
			return nil, err
		}
		results = append(results, &SearchResult{Node: node, Similarity: hit.Similarity})
	}
	return results, nil
}

// authorize loads a node and checks that actorID holds required on it.
func (s *DocumentService) authorize(ctx context.Context, actorID, nodeID string, required PermissionLevel) (*Node, error) {
	node, err := s.registry.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.OwnerID == actorID {
		return node, nil
	}
	ok, err := s.ledger.HasPermission(ctx, nodeID, actorID, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &PermissionDeniedError{ActorID: actorID, NodeID: nodeID, Required: required}
	}
	return node, nil
}

// requireParent checks that actorID may create nodes under parentID.
// A missing parent is a validation failure of the request, not a lookup miss.
func (s *DocumentService) requireParent(ctx context.Context, actorID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	_, err := s.authorize(ctx, actorID, *parentID, PermissionEdit)
	if errors.Is(err, ErrNotFound) {
		return &ValidationError{Field: "parent_id", Reason: fmt.Sprintf("parent %s does not exist", *parentID)}
	}
	return err
}

// resolveActors resolves the distinct ids concurrently.
func (s *DocumentService) resolveActors(ctx context.Context, ids []string) (map[string]Actor, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	resolved := make([]Actor, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range unique {
		i, id := i, id
		g.Go(func() error {
			a, err := s.identity.ResolveActor(gctx, id)
			if err != nil {
				return fmt.Errorf("resolving actor %s: %w", id, err)
			}
			resolved[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Actor, len(unique))
	for i, id := range unique {
		out[id] = resolved[i]
	}
	return out, nil
}

func (s *DocumentService) release(c SpooledContent) {
	if err := c.Release(); err != nil {
		s.logger.Warn("releasing spooled content", "error", err)
	}
}

func contentTypeOr(declared string, c SpooledContent) string {
	if declared != "" {
		return declared
	}
	return c.SniffedType()
}
