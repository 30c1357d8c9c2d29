package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dms-go/internal/dms"
)

func (s *SQLiteDatabase) InsertNode(ctx context.Context, node *dms.Node) error {
	args, err := nodeArgs(node)
	if err != nil {
		return err
	}
	query := `INSERT INTO nodes (` + nodeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetNode(ctx context.Context, id string) (*dms.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding node: %w", err)
	}
	return node, nil
}

func (s *SQLiteDatabase) FindNodeByName(ctx context.Context, ownerID string, parentID *string, name string) (*dms.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE owner_id = ? AND name = ? AND `
	args := []any{ownerID, name}
	if parentID == nil {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = ?`
		args = append(args, *parentID)
	}

	node, err := scanNode(s.db.QueryRowContext(ctx, query+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding node by name: %w", err)
	}
	return node, nil
}

// ListNodes builds the listing query from q. The parent filter precedes the
// path filter, which precedes the root filter.
func (s *SQLiteDatabase) ListNodes(ctx context.Context, q dms.NodeQuery) ([]*dms.Node, error) {
	var (
		where []string
		args  []any
	)
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	switch {
	case q.ParentID != nil:
		where = append(where, "parent_id = ?")
		args = append(args, *q.ParentID)
	case q.Path != nil:
		where = append(where, "path = ?")
		args = append(args, *q.Path)
	case q.Root:
		where = append(where, "parent_id IS NULL")
	}
	if q.Archived != nil {
		where = append(where, "is_archived = ?")
		args = append(args, *q.Archived)
	}
	if q.Favorite != nil {
		where = append(where, "is_favorite = ?")
		args = append(args, *q.Favorite)
	}

	query := `SELECT ` + nodeColumns + ` FROM nodes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	switch q.Order {
	case dms.OrderRecentlyUpdated:
		query += ` ORDER BY updated_at DESC, name ASC`
	case dms.OrderFoldersByPath:
		query += ` ORDER BY is_folder DESC, path ASC, name ASC`
	default:
		query += ` ORDER BY is_folder DESC, name ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var result []*dms.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		result = append(result, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) ListChildIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes WHERE parent_id = ? ORDER BY is_folder DESC, name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing child ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning child id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing child ids: %w", err)
	}
	return ids, nil
}

// SetNodeFlag only writes when the flag differs, so repeating a call leaves
// updated_at alone. It reports true whenever the node exists.
func (s *SQLiteDatabase) SetNodeFlag(ctx context.Context, id string, flag dms.NodeFlag, value bool, at time.Time) (bool, error) {
	var column string
	switch flag {
	case dms.FlagFavorite:
		column = "is_favorite"
	case dms.FlagArchived:
		column = "is_archived"
	default:
		return false, fmt.Errorf("unknown node flag %d", flag)
	}

	query := `UPDATE nodes SET ` + column + ` = ?, updated_at = ? WHERE id = ? AND ` + column + ` <> ?`
	res, err := s.db.ExecContext(ctx, query, value, at.UTC(), id, value)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", column, err)
	}
	changed, err := rowsAffected(res)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", column, err)
	}
	if changed {
		return true, nil
	}
	return s.nodeExists(ctx, id)
}

func (s *SQLiteDatabase) UpdateNodeContent(ctx context.Context, id string, storageKey string, size int64, md dms.Metadata, at time.Time) (bool, error) {
	encoded, err := encodeMetadata(md)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET storage_key = ?, size = ?, metadata = ?, updated_at = ? WHERE id = ? AND is_folder = 0`,
		storageKey, size, encoded, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("updating node content: %w", err)
	}
	return rowsAffected(res)
}

func (s *SQLiteDatabase) UpdateNodeMetadata(ctx context.Context, id string, md dms.Metadata, at time.Time) (bool, error) {
	encoded, err := encodeMetadata(md)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET metadata = ?, updated_at = ? WHERE id = ?`, encoded, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("updating node metadata: %w", err)
	}
	return rowsAffected(res)
}

func (s *SQLiteDatabase) TouchNode(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE nodes SET last_accessed_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("touching node: %w", err)
	}
	return nil
}

// DeleteNode removes one node row. Its shares and versions are removed by
// ON DELETE CASCADE. A folder that still has children is rejected by the
// parent_id foreign key.
func (s *SQLiteDatabase) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) nodeExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking node: %w", err)
	}
	return true, nil
}
