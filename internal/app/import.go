package app

import (
	"context"
	"fmt"
	"time"

	"dms-go/internal/dms"
	"dms-go/internal/localfs"
)

// Metadata keys recorded on imported files.
const (
	MetaSourcePath       = "source_path"
	MetaSourceModifiedAt = "source_modified_at"
)

// ImportResult summarizes a directory import.
type ImportResult struct {
	Folders  int      `json:"folders" yaml:"folders"`
	Files    int      `json:"files" yaml:"files"`
	Bytes    int64    `json:"bytes" yaml:"bytes"`
	Skipped  []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Import mirrors the local directory dir under parentRef. Existing folders
// are reused and files whose name is already taken are skipped, so an
// interrupted import can be run again.
func (a *DMSApp) Import(ctx context.Context, dir, parentRef string) (*ImportResult, error) {
	if err := a.begin(ctx, dir, parentRef); err != nil {
		return nil, err
	}
	res, err := a.importDir(ctx, dir, parentRef)
	if err == nil && len(res.Failures) > 0 {
		a.op.Status = StatusPartial
	}
	return res, a.op.Record(err)
}

func (a *DMSApp) importDir(ctx context.Context, dir, parentRef string) (*ImportResult, error) {
	// 1. Resolve the destination and snapshot the local tree.
	rootID, err := a.resolveFolder(ctx, parentRef)
	if err != nil {
		return nil, err
	}
	entries, err := localfs.NewWalker(a.cfg.Import.Ignore).Walk(dir)
	if err != nil {
		return nil, err
	}

	// 2. Create folders and upload files. Entries arrive with every
	// directory before its contents, so parents are always known.
	folders := map[string]*string{"": rootID}
	res := &ImportResult{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parentID, ok := folders[e.Dir()]
		if !ok {
			// Parent was skipped.
			res.Skipped = append(res.Skipped, e.RelPath)
			continue
		}

		existing, err := a.childByName(ctx, parentID, e.Name())
		if err != nil {
			return res, err
		}

		if e.IsDir {
			switch {
			case existing == nil:
				folder, err := a.service.CreateFolder(ctx, e.Name(), parentID)
				if err != nil {
					return res, fmt.Errorf("creating folder %s: %w", e.RelPath, err)
				}
				folders[e.RelPath] = &folder.ID
				res.Folders++
			case existing.IsFolder:
				folders[e.RelPath] = &existing.ID
			default:
				res.Skipped = append(res.Skipped, e.RelPath)
			}
			continue
		}

		if existing != nil {
			res.Skipped = append(res.Skipped, e.RelPath)
			continue
		}
		if err := a.importFile(ctx, e, parentID); err != nil {
			a.logger.Warn("import failed", "path", e.RelPath, "error", err)
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", e.RelPath, err))
			continue
		}
		res.Files++
		res.Bytes += e.Size
	}

	a.logger.Info("import finished", "dir", dir, "folders", res.Folders, "files", res.Files, "skipped", len(res.Skipped), "failed", len(res.Failures))
	return res, nil
}

func (a *DMSApp) importFile(ctx context.Context, e localfs.Entry, parentID *string) error {
	f, err := localfs.Open(e)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = a.service.UploadFile(ctx, dms.UploadRequest{
		Name:     e.Name(),
		ParentID: parentID,
		Content:  f,
		Metadata: dms.Metadata{
			MetaSourcePath:       e.RelPath,
			MetaSourceModifiedAt: e.ModTime.UTC().Format(time.RFC3339),
		},
	})
	return err
}

// childByName returns the live child named name under parentID, or nil.
func (a *DMSApp) childByName(ctx context.Context, parentID *string, name string) (*dms.Node, error) {
	children, err := a.service.ListChildren(ctx, dms.ListQuery{ParentID: parentID})
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}
