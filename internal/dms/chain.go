package dms

import (
	"context"
	"fmt"
)

// Comments recorded on versions the core creates itself.
const (
	AutoBackupComment    = "Automatic backup before version restore"
	DefaultUpdateComment = "File updated"
)

// ContentTarget is the part of the registry the chain needs to read a file
// and point it at different content.
type ContentTarget interface {
	GetByID(ctx context.Context, id string) (*Node, error)
	SetContent(ctx context.Context, node *Node, key string, size int64, patch Metadata) (*Node, error)
}

var _ ContentTarget = (*Registry)(nil)

// Chain is the append-only version history of file content.
type Chain struct {
	versions VersionStore
	files    ContentTarget
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewChain creates a Chain. files is used by restore to repoint the node.
func NewChain(versions VersionStore, files ContentTarget, logger Logger, clock Clock, idgen IDGenerator) *Chain {
	return &Chain{
		versions: versions,
		files:    files,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Node   *Node    // node after the restore
	Target *Version // version whose content is now current
	Backup *Version // auto-backup of the pre-restore content
}

// CreateVersion appends a version for fileID. The version number is assigned
// by the store as one more than the current maximum.
func (c *Chain) CreateVersion(ctx context.Context, fileID, storageKey string, size int64, createdBy, comment string) (*Version, error) {
	switch {
	case fileID == "":
		return nil, &ValidationError{Field: "file_id", Reason: "must not be empty"}
	case storageKey == "":
		return nil, &ValidationError{Field: "storage_key", Reason: "must not be empty"}
	case size < 0:
		return nil, &ValidationError{Field: "size", Reason: "must not be negative"}
	}

	v, err := c.versions.AppendVersion(ctx, &Version{
		ID:         c.idgen.New(),
		FileID:     fileID,
		StorageKey: storageKey,
		Size:       size,
		CreatedBy:  createdBy,
		Comment:    comment,
		CreatedAt:  c.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("appending version: %w", err)
	}

	c.logger.Info("version created", "file_id", fileID, "version", v.VersionNumber, "key", storageKey)
	return v, nil
}

// ListVersions returns the history of a file, most recent first.
func (c *Chain) ListVersions(ctx context.Context, fileID string) ([]*Version, error) {
	versions, err := c.versions.ListVersions(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

// GetVersion returns the version or a NotFoundError.
func (c *Chain) GetVersion(ctx context.Context, id string) (*Version, error) {
	v, err := c.versions.GetVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if v == nil {
		return nil, notFound("version", id)
	}
	return v, nil
}

// StorageKeys returns the distinct blob keys referenced by a file's history.
func (c *Chain) StorageKeys(ctx context.Context, fileID string) ([]string, error) {
	versions, err := c.ListVersions(ctx, fileID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(versions))
	keys := make([]string, 0, len(versions))
	for _, v := range versions {
		if !seen[v.StorageKey] {
			seen[v.StorageKey] = true
			keys = append(keys, v.StorageKey)
		}
	}
	return keys, nil
}

// Restore makes the content of versionID current again.
//
// It runs in two steps that are not atomic together:
//  1. append an auto-backup version capturing the node's current content
//  2. point the node at the target version's content
//
// If step 2 fails the backup is kept and a *RestoreIncompleteError is
// returned; pass it to CompleteRestore to retry step 2 alone.
func (c *Chain) Restore(ctx context.Context, versionID, actorID string) (*RestoreResult, error) {
	target, err := c.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	node, err := c.files.GetByID(ctx, target.FileID)
	if err != nil {
		return nil, err
	}
	if node.StorageKey == "" {
		return nil, &ValidationError{Field: "file_id", Reason: "file has no current content to back up"}
	}

	// 1. Auto-backup of the current state.
	backup, err := c.CreateVersion(ctx, node.ID, node.StorageKey, node.Size, actorID, AutoBackupComment)
	if err != nil {
		return nil, fmt.Errorf("creating backup version: %w", err)
	}

	// 2. Swap the node's content.
	restored, err := c.files.SetContent(ctx, node, target.StorageKey, target.Size, nil)
	if err != nil {
		c.logger.Error("restore incomplete", "file_id", node.ID, "target", target.VersionNumber, "backup", backup.VersionNumber, "error", err)
		return nil, &RestoreIncompleteError{FileID: node.ID, Target: target, Backup: backup, Err: err}
	}

	c.logger.Info("version restored", "file_id", node.ID, "version", target.VersionNumber, "backup", backup.VersionNumber)
	return &RestoreResult{Node: restored, Target: target, Backup: backup}, nil
}

// CompleteRestore retries the node update of an incomplete restore. It never
// creates another backup version and is safe to call repeatedly.
func (c *Chain) CompleteRestore(ctx context.Context, incomplete *RestoreIncompleteError) (*RestoreResult, error) {
	if incomplete == nil || incomplete.Target == nil || incomplete.Backup == nil {
		return nil, &ValidationError{Field: "restore", Reason: "missing restore state"}
	}

	node, err := c.files.GetByID(ctx, incomplete.FileID)
	if err != nil {
		return nil, err
	}

	target := incomplete.Target
	restored, err := c.files.SetContent(ctx, node, target.StorageKey, target.Size, nil)
	if err != nil {
		return nil, &RestoreIncompleteError{FileID: node.ID, Target: target, Backup: incomplete.Backup, Err: err}
	}

	c.logger.Info("version restore completed", "file_id", node.ID, "version", target.VersionNumber)
	return &RestoreResult{Node: restored, Target: target, Backup: incomplete.Backup}, nil
}
