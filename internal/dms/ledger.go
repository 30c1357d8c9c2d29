package dms

import (
	"context"
	"fmt"
)

// maxAncestorDepth bounds the parent walk in permission resolution.
const maxAncestorDepth = 256

// Ledger records grants of permission on nodes to actors other than the owner.
// It does not check ownership when a grant is written; that is the façade's job.
type Ledger struct {
	shares ShareStore
	nodes  NodeStore
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewLedger creates a Ledger. The node store is read during permission resolution only.
func NewLedger(shares ShareStore, nodes NodeStore, logger Logger, clock Clock, idgen IDGenerator) *Ledger {
	return &Ledger{
		shares: shares,
		nodes:  nodes,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// Share grants level on fileID to sharedWithID. Sharing the same file with the
// same actor again updates the level of the existing grant and keeps its id.
func (l *Ledger) Share(ctx context.Context, fileID, ownerID, sharedWithID string, level PermissionLevel) (*Share, error) {
	switch {
	case fileID == "":
		return nil, &ValidationError{Field: "file_id", Reason: "must not be empty"}
	case sharedWithID == "":
		return nil, &ValidationError{Field: "shared_with_id", Reason: "must not be empty"}
	case sharedWithID == ownerID:
		return nil, &ValidationError{Field: "shared_with_id", Reason: "cannot share with the owner"}
	case !level.Valid():
		return nil, &ValidationError{Field: "permission_level", Reason: fmt.Sprintf("invalid level %d", int(level))}
	}

	now := l.clock.Now()
	share, err := l.shares.UpsertShare(ctx, &Share{
		ID:              l.idgen.New(),
		FileID:          fileID,
		OwnerID:         ownerID,
		SharedWithID:    sharedWithID,
		PermissionLevel: level,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("recording share: %w", err)
	}

	l.logger.Info("file shared", "file_id", fileID, "shared_with", sharedWithID, "level", level.String())
	return share, nil
}

// GetShare returns the share or a NotFoundError.
func (l *Ledger) GetShare(ctx context.Context, id string) (*Share, error) {
	share, err := l.shares.GetShare(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding share: %w", err)
	}
	if share == nil {
		return nil, notFound("share", id)
	}
	return share, nil
}

// ListShares returns the grants on a file.
func (l *Ledger) ListShares(ctx context.Context, fileID string) ([]*Share, error) {
	shares, err := l.shares.ListSharesForFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	return shares, nil
}

// ListSharedWith returns every node on which actorID holds a grant, with the grant level.
func (l *Ledger) ListSharedWith(ctx context.Context, actorID string) ([]*SharedNode, error) {
	shares, err := l.shares.ListSharesForActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("listing shares for actor: %w", err)
	}

	result := make([]*SharedNode, 0, len(shares))
	for _, s := range shares {
		node, err := l.nodes.GetNode(ctx, s.FileID)
		if err != nil {
			return nil, fmt.Errorf("finding shared node %s: %w", s.FileID, err)
		}
		if node == nil {
			continue
		}
		result = append(result, &SharedNode{
			Node:            node,
			ShareID:         s.ID,
			SharedBy:        s.OwnerID,
			PermissionLevel: s.PermissionLevel,
		})
	}
	return result, nil
}

// UpdatePermission changes the level of an existing grant.
func (l *Ledger) UpdatePermission(ctx context.Context, shareID string, level PermissionLevel) error {
	if !level.Valid() {
		return &ValidationError{Field: "permission_level", Reason: fmt.Sprintf("invalid level %d", int(level))}
	}
	ok, err := l.shares.UpdateSharePermission(ctx, shareID, level, l.clock.Now())
	if err != nil {
		return fmt.Errorf("updating share permission: %w", err)
	}
	if !ok {
		return notFound("share", shareID)
	}
	l.logger.Info("share permission updated", "share_id", shareID, "level", level.String())
	return nil
}

// Remove deletes a grant.
func (l *Ledger) Remove(ctx context.Context, shareID string) error {
	ok, err := l.shares.DeleteShare(ctx, shareID)
	if err != nil {
		return fmt.Errorf("removing share: %w", err)
	}
	if !ok {
		return notFound("share", shareID)
	}
	l.logger.Info("share removed", "share_id", shareID)
	return nil
}

// HasPermission reports whether actorID may act on fileID at the required level.
//
// The owner of the node, or of any folder above it, always has permission.
// Otherwise the nearest grant walking up the parent chain decides: a grant on
// the node itself overrides one on its folder. No grant anywhere is "no
// access", not an error. A missing node is a NotFoundError.
func (l *Ledger) HasPermission(ctx context.Context, fileID, actorID string, required PermissionLevel) (bool, error) {
	node, err := l.nodes.GetNode(ctx, fileID)
	if err != nil {
		return false, fmt.Errorf("finding node: %w", err)
	}
	if node == nil {
		return false, notFound("node", fileID)
	}

	var grant *Share
	for depth := 0; node != nil; depth++ {
		if depth >= maxAncestorDepth {
			return false, fmt.Errorf("parent chain of %s exceeds %d levels", fileID, maxAncestorDepth)
		}
		if node.OwnerID == actorID {
			return true, nil
		}
		if grant == nil {
			grant, err = l.shares.FindShare(ctx, node.ID, actorID)
			if err != nil {
				return false, fmt.Errorf("finding share: %w", err)
			}
		}
		if node.ParentID == nil {
			break
		}
		node, err = l.nodes.GetNode(ctx, *node.ParentID)
		if err != nil {
			return false, fmt.Errorf("finding parent: %w", err)
		}
	}

	if grant == nil {
		return false, nil
	}
	return grant.PermissionLevel.Satisfies(required), nil
}
