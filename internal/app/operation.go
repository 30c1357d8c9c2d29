package app

import (
	"errors"

	"dms-go/internal/dms"
)

// Operation statuses recorded in the operation log.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Operation tracks a CLI command that may mutate the metadata database.
// Operations are created in memory with ID=0. Only mutating commands
// persist them, which gives them an id from the database.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record folds the outcome of a step into the operation status and returns err
// unchanged. A failure is never downgraded by a later success.
func (op *Operation) Record(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, dms.ErrPartialDelete), errors.Is(err, dms.ErrRestoreIncomplete):
		if op.Status == StatusSuccess {
			op.Status = StatusPartial
		}
	default:
		op.Status = StatusError
	}
	return err
}
