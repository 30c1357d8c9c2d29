package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"dms-go/internal/dms"
)

// maxAppendAttempts bounds retries when two writers race for the same version number.
const maxAppendAttempts = 5

// AppendVersion assigns the next version number and inserts the row in one
// statement. UNIQUE(file_id, version_number) rejects a writer that computed
// a number another writer already took; that writer retries with a fresh max.
func (s *SQLiteDatabase) AppendVersion(ctx context.Context, v *dms.Version) (*dms.Version, error) {
	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		var number int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO versions (`+versionColumns+`)
			SELECT ?, ?, COALESCE(MAX(version_number), 0) + 1, ?, ?, ?, ?, ?
			FROM versions WHERE file_id = ?
			RETURNING version_number`,
			v.ID, v.FileID, v.StorageKey, v.Size, v.CreatedBy, v.Comment, v.CreatedAt.UTC(), v.FileID,
		).Scan(&number)
		if err == nil {
			out := *v
			out.VersionNumber = number
			out.CreatedAt = v.CreatedAt.UTC()
			return &out, nil
		}
		if !isVersionConflict(err) {
			return nil, fmt.Errorf("appending version: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("appending version after %d attempts: %w", maxAppendAttempts, lastErr)
}

func (s *SQLiteDatabase) GetVersion(ctx context.Context, id string) (*dms.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) ListVersions(ctx context.Context, fileID string) ([]*dms.Version, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE file_id = ? ORDER BY version_number DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var result []*dms.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return result, nil
}

// isVersionConflict reports a unique violation on (file_id, version_number).
// A duplicate primary key is also a unique violation but retrying cannot fix it.
func isVersionConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
