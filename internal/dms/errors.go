package dms

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrStorageWrite      = errors.New("blob write failed")
	ErrStorageRead       = errors.New("blob read failed")
	ErrPartialDelete     = errors.New("partial delete")
	ErrRestoreIncomplete = errors.New("restore incomplete")
	ErrPermissionDenied  = errors.New("permission denied")
)

// ValidationError reports malformed input. Never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a referenced id that does not exist.
type NotFoundError struct {
	Kind string // "node", "share", "version"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageWriteError reports a blob store write failure.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("writing blob %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error        { return e.Err }
func (e *StorageWriteError) Is(target error) bool { return target == ErrStorageWrite }

// StorageReadError reports a blob store read failure.
type StorageReadError struct {
	Key string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("reading blob %s: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error        { return e.Err }
func (e *StorageReadError) Is(target error) bool { return target == ErrStorageRead }

// BlobFailure is one blob that could not be removed during a delete.
type BlobFailure struct {
	NodeID string
	Key    string
	Err    error
}

// PartialDeleteError reports that metadata was removed but some blobs were not.
// The user-visible deletion succeeded; callers may retry blob cleanup for Keys().
type PartialDeleteError struct {
	Failures []BlobFailure
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("metadata removed but %d blob(s) not deleted: %s", len(e.Failures), strings.Join(e.Keys(), ", "))
}

func (e *PartialDeleteError) Is(target error) bool { return target == ErrPartialDelete }

// Keys returns the storage keys that were not removed.
func (e *PartialDeleteError) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}

// RestoreIncompleteError reports that the auto-backup version was recorded
// but the node was not pointed at the restored content. Retry with
// DocumentService.CompleteRestore, never by re-running the whole restore.
type RestoreIncompleteError struct {
	FileID string
	Target *Version // version being restored
	Backup *Version // auto-backup already recorded
	Err    error
}

func (e *RestoreIncompleteError) Error() string {
	return fmt.Sprintf("restore of file %s to version %d incomplete (backup version %d recorded): %v",
		e.FileID, e.Target.VersionNumber, e.Backup.VersionNumber, e.Err)
}

func (e *RestoreIncompleteError) Unwrap() error        { return e.Err }
func (e *RestoreIncompleteError) Is(target error) bool { return target == ErrRestoreIncomplete }

// PermissionDeniedError reports an actor lacking the required capability.
type PermissionDeniedError struct {
	ActorID  string
	NodeID   string
	Required PermissionLevel
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("actor %s lacks %s permission on %s", e.ActorID, e.Required, e.NodeID)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
