// Package app is the application layer between the CLI and the document service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dms-go/internal/analysis"
	"dms-go/internal/blob"
	"dms-go/internal/config"
	"dms-go/internal/database"
	"dms-go/internal/dms"
	"dms-go/internal/encryption"
	"dms-go/internal/identity"
	"dms-go/internal/spool"
)

// SnapshotKey is the blob key metadata snapshots are stored under.
func SnapshotKey(instanceID string) string {
	return dms.SystemKey(instanceID, "metadata.db")
}

// DMSApp constructs all dependencies from config, exposes high-level
// operations that accept raw node references, and manages the database
// lifecycle on Close.
type DMSApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	blobs     dms.BlobStore
	encrypted *blob.EncryptedStore // nil unless blob.encrypt is set
	service   *dms.DocumentService
	clock     dms.Clock
	logger    *slog.Logger
	op        *Operation
	logFile   *os.File
}

// NewDMSApp creates a fully wired DMSApp from the given config.
// operation identifies the CLI command being run (e.g. "UploadFile", "ListChildren").
// The caller must call Close when done.
func NewDMSApp(ctx context.Context, cfg *config.Config, operation string) (*DMSApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'dms init'): %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a, err := newDMSApp(ctx, cfg, db, logger, operation)
	if err != nil {
		logFile.Close()
		db.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

// newDMSApp wires the service over an open, migrated database.
func newDMSApp(ctx context.Context, cfg *config.Config, db *database.SQLiteDatabase, logger *slog.Logger, operation string) (*DMSApp, error) {
	var enc dms.Encryptor
	if cfg.Blob.Encrypt {
		var err error
		enc, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	}

	blobs, err := blob.NewBlobStoreFromConfig(ctx, cfg.Blob, enc)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	encrypted, _ := blobs.(*blob.EncryptedStore)

	spooler, err := spool.NewSpoolerFromConfig(cfg.Spool)
	if err != nil {
		return nil, fmt.Errorf("creating spooler: %w", err)
	}

	clock := dms.RealClock{}
	ids := dms.UUIDGenerator{}
	log := &slogAdapter{l: logger}

	// The configured actor is recorded so other actors see its name.
	actor := dms.Actor{ID: cfg.Actor.ID, Email: cfg.Actor.Email, DisplayName: cfg.Actor.Name}
	if err := db.UpsertActor(ctx, actor, clock.Now()); err != nil {
		return nil, fmt.Errorf("registering actor: %w", err)
	}

	registry := dms.NewRegistry(db, blobs, log, clock, ids)
	ledger := dms.NewLedger(db, db, log, clock, ids)
	chain := dms.NewChain(db, registry, log, clock, ids)
	analyzer := analysis.NewAnalyzerFromConfig(cfg.Analysis, clock, log)
	svc := dms.NewDocumentService(registry, ledger, chain, spooler, identity.NewProvider(actor, db), analyzer, log)

	return &DMSApp{
		cfg:       cfg,
		db:        db,
		blobs:     blobs,
		encrypted: encrypted,
		service:   svc,
		clock:     clock,
		logger:    logger,
		op:        NewOperation(operation, ""),
	}, nil
}

// Service exposes the document service for read-only commands.
func (a *DMSApp) Service() *dms.DocumentService {
	return a.service
}

// NeedsPassphrase reports whether reading content requires Unlock first.
func (a *DMSApp) NeedsPassphrase() bool {
	return a.encrypted != nil && a.encrypted.Locked()
}

// Unlock unlocks the encrypted blob store for reads.
func (a *DMSApp) Unlock(passphrase string) error {
	if a.encrypted == nil {
		return nil
	}
	return a.encrypted.Unlock(passphrase)
}

// begin persists the operation before the first mutation. Read-only
// commands never call it and leave no trace in the log.
func (a *DMSApp) begin(ctx context.Context, parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	actor, err := a.service.CurrentActor(ctx)
	if err != nil {
		return err
	}
	a.op.Parameters = strings.Join(parameters, " ")
	row, err := a.db.CreateOperation(ctx, a.op.Name, a.op.Parameters, actor.ID, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = row.ID
	return nil
}

// Resolve turns a node reference into a node. A reference is a node id or
// a slash-separated path of names from the current actor's root; "" and
// "/" denote the root and resolve to nil.
func (a *DMSApp) Resolve(ctx context.Context, ref string) (*dms.Node, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "/" {
		return nil, nil
	}

	if !strings.Contains(ref, "/") {
		node, err := a.service.GetNode(ctx, ref)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, dms.ErrNotFound) {
			return nil, err
		}
	}

	var current *dms.Node
	for _, name := range strings.Split(strings.Trim(ref, "/"), "/") {
		if name == "" {
			continue
		}
		var parentID *string
		if current != nil {
			if !current.IsFolder {
				return nil, &dms.ValidationError{Field: "path", Reason: fmt.Sprintf("%s is not a folder", current.ChildPath())}
			}
			parentID = &current.ID
		}
		next, err := a.childByName(ctx, parentID, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &dms.NotFoundError{Kind: "node", ID: ref}
		}
		current = next
	}
	return current, nil
}

// resolveFolder resolves a parent reference to its id, nil for the root.
func (a *DMSApp) resolveFolder(ctx context.Context, ref string) (*string, error) {
	node, err := a.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	if !node.IsFolder {
		return nil, &dms.ValidationError{Field: "parent", Reason: fmt.Sprintf("%s is not a folder", node.ChildPath())}
	}
	return &node.ID, nil
}

// resolveNode resolves a reference that must name a node.
func (a *DMSApp) resolveNode(ctx context.Context, ref string) (*dms.Node, error) {
	node, err := a.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &dms.ValidationError{Field: "node", Reason: "the root is not a node"}
	}
	return node, nil
}

// CreateFolder creates a folder under parentRef.
func (a *DMSApp) CreateFolder(ctx context.Context, name, parentRef string) (*dms.Node, error) {
	if err := a.begin(ctx, name, parentRef); err != nil {
		return nil, err
	}
	parentID, err := a.resolveFolder(ctx, parentRef)
	if err != nil {
		return nil, a.op.Record(err)
	}
	node, err := a.service.CreateFolder(ctx, name, parentID)
	return node, a.op.Record(err)
}

// UploadFile uploads the local file at localPath under parentRef. name
// defaults to the local base name.
func (a *DMSApp) UploadFile(ctx context.Context, localPath, parentRef, name string, md dms.Metadata) (*dms.Node, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	if err := a.begin(ctx, localPath, parentRef); err != nil {
		return nil, err
	}
	parentID, err := a.resolveFolder(ctx, parentRef)
	if err != nil {
		return nil, a.op.Record(err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("opening %s: %w", localPath, err))
	}
	defer f.Close()

	node, err := a.service.UploadFile(ctx, dms.UploadRequest{
		Name:     name,
		ParentID: parentID,
		Content:  f,
		Metadata: md,
	})
	return node, a.op.Record(err)
}

// UpdateFile replaces the content of ref with the local file at localPath.
func (a *DMSApp) UpdateFile(ctx context.Context, ref, localPath, comment string) (*dms.UpdateResult, error) {
	if err := a.begin(ctx, ref, localPath); err != nil {
		return nil, err
	}
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, a.op.Record(err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("opening %s: %w", localPath, err))
	}
	defer f.Close()

	res, err := a.service.UpdateFileContent(ctx, dms.UpdateRequest{FileID: node.ID, Content: f, Comment: comment})
	return res, a.op.Record(err)
}

// Download writes the content of ref to w.
func (a *DMSApp) Download(ctx context.Context, ref string, w io.Writer) (*dms.Node, error) {
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.service.Download(ctx, node.ID, w)
}

// DownloadToFile writes the content of ref to dest through a temp file, so
// a failed download never leaves a truncated file behind.
func (a *DMSApp) DownloadToFile(ctx context.Context, ref, dest string) (*dms.Node, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".dms-download-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	node, err := a.Download(ctx, ref, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("installing %s: %w", dest, err)
	}
	return node, nil
}

// GetNode resolves and returns ref.
func (a *DMSApp) GetNode(ctx context.Context, ref string) (*dms.Node, error) {
	return a.resolveNode(ctx, ref)
}

// List lists the children of ref (the root when empty).
func (a *DMSApp) List(ctx context.Context, ref string, archived bool) ([]*dms.Node, error) {
	parentID, err := a.resolveFolder(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.service.ListChildren(ctx, dms.ListQuery{ParentID: parentID, Archived: archived})
}

// SetFavorite marks or unmarks ref as favorite.
func (a *DMSApp) SetFavorite(ctx context.Context, ref string, value bool) error {
	if err := a.begin(ctx, ref, fmt.Sprint(value)); err != nil {
		return err
	}
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return a.op.Record(err)
	}
	return a.op.Record(a.service.SetFavorite(ctx, node.ID, value))
}

// SetArchived moves ref into or out of the archive.
func (a *DMSApp) SetArchived(ctx context.Context, ref string, value bool) error {
	if err := a.begin(ctx, ref, fmt.Sprint(value)); err != nil {
		return err
	}
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return a.op.Record(err)
	}
	return a.op.Record(a.service.SetArchived(ctx, node.ID, value))
}

// Delete deletes ref with its descendants and history.
func (a *DMSApp) Delete(ctx context.Context, ref string) error {
	if err := a.begin(ctx, ref); err != nil {
		return err
	}
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return a.op.Record(err)
	}
	return a.op.Record(a.service.DeleteNode(ctx, node.ID))
}

// Share grants level (view, comment or edit) on ref to actorID.
func (a *DMSApp) Share(ctx context.Context, ref, actorID, level string) (*dms.ShareWithActor, error) {
	lvl, err := dms.ParsePermissionLevel(level)
	if err != nil {
		return nil, err
	}
	if err := a.begin(ctx, ref, actorID, lvl.String()); err != nil {
		return nil, err
	}
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, a.op.Record(err)
	}
	s, err := a.service.ShareDocument(ctx, node.ID, actorID, lvl)
	return s, a.op.Record(err)
}

// UpdateShare changes the level of a grant.
func (a *DMSApp) UpdateShare(ctx context.Context, shareID, level string) error {
	lvl, err := dms.ParsePermissionLevel(level)
	if err != nil {
		return err
	}
	if err := a.begin(ctx, shareID, lvl.String()); err != nil {
		return err
	}
	return a.op.Record(a.service.UpdateSharePermission(ctx, shareID, lvl))
}

// Unshare revokes a grant.
func (a *DMSApp) Unshare(ctx context.Context, shareID string) error {
	if err := a.begin(ctx, shareID); err != nil {
		return err
	}
	return a.op.Record(a.service.RemoveShare(ctx, shareID))
}

// Shares lists the grants on ref.
func (a *DMSApp) Shares(ctx context.Context, ref string) ([]*dms.ShareWithActor, error) {
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.service.ListShares(ctx, node.ID)
}

// Versions lists the history of ref.
func (a *DMSApp) Versions(ctx context.Context, ref string) ([]*dms.VersionWithActor, error) {
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.service.ListVersions(ctx, node.ID)
}

// maxRestoreAttempts bounds the retries of the node update of a restore.
const maxRestoreAttempts = 3

// Restore makes versionID current. When the node update fails after the
// backup was recorded, only the update is retried.
func (a *DMSApp) Restore(ctx context.Context, versionID string) (*dms.RestoreResult, error) {
	if err := a.begin(ctx, versionID); err != nil {
		return nil, err
	}

	res, err := a.service.RestoreVersion(ctx, versionID)
	for attempt := 1; attempt < maxRestoreAttempts; attempt++ {
		var incomplete *dms.RestoreIncompleteError
		if !errors.As(err, &incomplete) {
			break
		}
		a.logger.Warn("retrying restore", "file_id", incomplete.FileID, "attempt", attempt, "error", incomplete.Err)
		res, err = a.service.CompleteRestore(ctx, incomplete)
	}
	return res, a.op.Record(err)
}

// Process runs document analysis on ref.
func (a *DMSApp) Process(ctx context.Context, ref string) (*dms.Node, error) {
	if err := a.begin(ctx, ref); err != nil {
		return nil, err
	}
	processed, err := a.process(ctx, ref)
	return processed, a.op.Record(err)
}

// ProcessOutcome is the result of processing one reference of a batch.
type ProcessOutcome struct {
	Ref  string
	Node *dms.Node
	Err  error
}

// ProcessAll runs document analysis on each reference in order. A failed
// reference does not stop the batch; its outcome carries the error. The
// operation is partial when some references fail and an error when all do.
func (a *DMSApp) ProcessAll(ctx context.Context, refs []string) ([]ProcessOutcome, error) {
	if err := a.begin(ctx, refs...); err != nil {
		return nil, err
	}

	outcomes := make([]ProcessOutcome, 0, len(refs))
	failed := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return outcomes, a.op.Record(err)
		}
		node, err := a.process(ctx, ref)
		if err != nil {
			failed++
			a.logger.Warn("processing failed", "ref", ref, "error", err)
		}
		outcomes = append(outcomes, ProcessOutcome{Ref: ref, Node: node, Err: err})
	}

	switch {
	case failed == len(refs):
		a.op.Status = StatusError
	case failed > 0 && a.op.Status == StatusSuccess:
		a.op.Status = StatusPartial
	}
	return outcomes, nil
}

func (a *DMSApp) process(ctx context.Context, ref string) (*dms.Node, error) {
	node, err := a.resolveNode(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.service.ProcessDocument(ctx, node.ID)
}

// Search runs a similarity search over documents the current actor can view.
func (a *DMSApp) Search(ctx context.Context, text string, threshold float64, limit int) ([]*dms.SearchResult, error) {
	return a.service.SearchDocuments(ctx, dms.SearchQuery{Text: text, Threshold: threshold, Limit: limit})
}

// History returns the most recent operations.
func (a *DMSApp) History(ctx context.Context, limit int) ([]*database.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.db.ListOperations(ctx, limit)
}

// Snapshot copies the metadata database into the blob store and returns the key.
func (a *DMSApp) Snapshot(ctx context.Context) (string, error) {
	if err := a.begin(ctx); err != nil {
		return "", err
	}
	key, err := a.snapshot(ctx)
	return key, a.op.Record(err)
}

func (a *DMSApp) snapshot(ctx context.Context) (string, error) {
	// 1. Consistent copy into a fresh temp dir (VACUUM INTO needs a new file).
	dir, err := os.MkdirTemp("", "dms-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for snapshot: %w", err)
	}
	defer os.RemoveAll(dir)

	tmpPath := filepath.Join(dir, "metadata.db")
	if err := a.db.BackupTo(ctx, tmpPath); err != nil {
		return "", err
	}

	// 2. Upload.
	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	key := SnapshotKey(a.cfg.InstanceID)
	if err := a.blobs.Put(ctx, key, f, info.Size(), "application/vnd.sqlite3"); err != nil {
		return "", &dms.StorageWriteError{Key: key, Err: err}
	}
	a.logger.Info("metadata snapshot stored", "key", key, "size", info.Size())
	return key, nil
}

// Close finalizes the operation and closes all resources.
func (a *DMSApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
