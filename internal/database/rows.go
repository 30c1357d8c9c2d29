package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"dms-go/internal/dms"
)

// This file is the only place that knows the snake_case row shape of the
// metadata tables. Every query selects one of the column lists below and
// scans through the matching scan function.

const nodeColumns = `id, name, path, is_folder, parent_id, owner_id, size, storage_key,
	is_favorite, is_archived, created_at, updated_at, last_accessed_at, metadata, initial_storage_key`

const shareColumns = `id, file_id, owner_id, shared_with_id, permission_level, created_at, updated_at`

const versionColumns = `id, file_id, version_number, storage_key, size, created_by, comment, created_at`

const operationColumns = `id, operation, parameters, actor_id, started_at, finished_at, status`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*dms.Node, error) {
	var (
		n          dms.Node
		parentID   sql.NullString
		storageKey sql.NullString
		metadata   string
		initialKey sql.NullString
	)
	err := s.Scan(&n.ID, &n.Name, &n.Path, &n.IsFolder, &parentID, &n.OwnerID, &n.Size, &storageKey,
		&n.IsFavorite, &n.IsArchived, &n.CreatedAt, &n.UpdatedAt, &n.LastAccessedAt, &metadata, &initialKey)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		n.ParentID = &parentID.String
	}
	n.StorageKey = storageKey.String
	n.InitialKey = initialKey.String
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	n.LastAccessedAt = n.LastAccessedAt.UTC()

	md, err := decodeMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	n.Metadata = md
	return &n, nil
}

// nodeArgs returns the insert arguments in nodeColumns order.
func nodeArgs(n *dms.Node) ([]any, error) {
	md, err := encodeMetadata(n.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{
		n.ID, n.Name, n.Path, n.IsFolder, nullString(n.ParentID), n.OwnerID, n.Size, nullIfEmpty(n.StorageKey),
		n.IsFavorite, n.IsArchived, n.CreatedAt.UTC(), n.UpdatedAt.UTC(), n.LastAccessedAt.UTC(), md,
		nullIfEmpty(n.InitialKey),
	}, nil
}

func scanShare(s scanner) (*dms.Share, error) {
	var (
		sh    dms.Share
		level string
	)
	if err := s.Scan(&sh.ID, &sh.FileID, &sh.OwnerID, &sh.SharedWithID, &level, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return nil, err
	}
	pl, err := dms.ParsePermissionLevel(level)
	if err != nil {
		return nil, fmt.Errorf("share %s: %w", sh.ID, err)
	}
	sh.PermissionLevel = pl
	sh.CreatedAt = sh.CreatedAt.UTC()
	sh.UpdatedAt = sh.UpdatedAt.UTC()
	return &sh, nil
}

func scanVersion(s scanner) (*dms.Version, error) {
	var v dms.Version
	if err := s.Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.StorageKey, &v.Size, &v.CreatedBy, &v.Comment, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func scanOperation(s scanner) (*Operation, error) {
	var (
		op       Operation
		finished sql.NullTime
	)
	if err := s.Scan(&op.ID, &op.Operation, &op.Parameters, &op.ActorID, &op.StartedAt, &finished, &op.Status); err != nil {
		return nil, err
	}
	op.StartedAt = op.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		op.FinishedAt = &t
	}
	return &op, nil
}

func encodeMetadata(md dms.Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (dms.Metadata, error) {
	md := dms.Metadata{}
	if s == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return md, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
