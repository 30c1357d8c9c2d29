package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dms-go/internal/dms"
)

// UpsertShare writes the grant for (FileID, SharedWithID). An existing grant
// keeps its id, owner and created_at; only the level and updated_at change.
func (s *SQLiteDatabase) UpsertShare(ctx context.Context, share *dms.Share) (*dms.Share, error) {
	level, err := share.PermissionLevel.MarshalText()
	if err != nil {
		return nil, err
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id, shared_with_id) DO UPDATE SET
			permission_level = excluded.permission_level,
			updated_at = excluded.updated_at
		RETURNING id`,
		share.ID, share.FileID, share.OwnerID, share.SharedWithID, string(level),
		share.CreatedAt.UTC(), share.UpdatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upserting share: %w", err)
	}

	stored, err := s.GetShare(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("share %s vanished after upsert", id)
	}
	return stored, nil
}

func (s *SQLiteDatabase) GetShare(ctx context.Context, id string) (*dms.Share, error) {
	share, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding share: %w", err)
	}
	return share, nil
}

func (s *SQLiteDatabase) FindShare(ctx context.Context, fileID, sharedWithID string) (*dms.Share, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE file_id = ? AND shared_with_id = ?`, fileID, sharedWithID)
	share, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding share: %w", err)
	}
	return share, nil
}

func (s *SQLiteDatabase) ListSharesForFile(ctx context.Context, fileID string) ([]*dms.Share, error) {
	return s.listShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE file_id = ? ORDER BY created_at, id`, fileID)
}

func (s *SQLiteDatabase) ListSharesForActor(ctx context.Context, actorID string) ([]*dms.Share, error) {
	return s.listShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE shared_with_id = ? ORDER BY updated_at DESC, id`, actorID)
}

func (s *SQLiteDatabase) listShares(ctx context.Context, query string, args ...any) ([]*dms.Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	var result []*dms.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning share: %w", err)
		}
		result = append(result, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) UpdateSharePermission(ctx context.Context, id string, level dms.PermissionLevel, at time.Time) (bool, error) {
	text, err := level.MarshalText()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE shares SET permission_level = ?, updated_at = ? WHERE id = ?`, string(text), at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("updating share permission: %w", err)
	}
	return rowsAffected(res)
}

func (s *SQLiteDatabase) DeleteShare(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting share: %w", err)
	}
	return rowsAffected(res)
}
