package database

import (
	"context"
	"fmt"
	"time"
)

// Operation is one row of the audit log of mutating commands.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	ActorID    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// CreateOperation records the start of an operation and returns it with its id.
func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters, actorID string, at time.Time) (*Operation, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (operation, parameters, actor_id, started_at, status) VALUES (?, ?, ?, ?, 'pending')`,
		operation, parameters, actorID, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return &Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		ActorID:    actorID,
		StartedAt:  at.UTC(),
		Status:     "pending",
	}, nil
}

// FinishOperation stamps finished_at and the final status.
func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`, at.UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if !ok {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+operationColumns+` FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return result, nil
}
