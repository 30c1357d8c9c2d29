package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dms-go/internal/dms"
)

// FindActor returns the stored identity. DisplayName holds the stored name,
// which may be empty; display fallbacks are applied by the identity provider.
func (s *SQLiteDatabase) FindActor(ctx context.Context, id string) (*dms.Actor, error) {
	var a dms.Actor
	err := s.db.QueryRowContext(ctx, `SELECT id, email, name FROM actors WHERE id = ?`, id).Scan(&a.ID, &a.Email, &a.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding actor: %w", err)
	}
	return &a, nil
}

// UpsertActor records or updates an actor's email and name.
func (s *SQLiteDatabase) UpsertActor(ctx context.Context, a dms.Actor, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (id, email, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		a.ID, a.Email, a.DisplayName, at.UTC())
	if err != nil {
		return fmt.Errorf("upserting actor: %w", err)
	}
	return nil
}

// ListActors returns every known actor ordered by id.
func (s *SQLiteDatabase) ListActors(ctx context.Context) ([]*dms.Actor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, name FROM actors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	defer rows.Close()

	var result []*dms.Actor
	for rows.Next() {
		var a dms.Actor
		if err := rows.Scan(&a.ID, &a.Email, &a.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning actor: %w", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	return result, nil
}
