package blob

import (
	"context"
	"fmt"

	"dms-go/internal/config"
	"dms-go/internal/dms"
)

// NewBlobStoreFromConfig creates a BlobStore based on the blob config type.
// With cfg.Encrypt set the store is wrapped in an EncryptedStore using enc.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.BlobConfig, enc dms.Encryptor) (dms.BlobStore, error) {
	var store dms.BlobStore
	switch cfg.Type {
	case "memory":
		store = NewMemoryStore(cfg.Name, cfg.PublicBaseURL)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires fs_root to be set")
		}
		fs, err := NewFileSystemStore(cfg.Name, cfg.FSRoot, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		store = fs
	case "s3":
		s3Store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}

	if !cfg.Encrypt {
		return store, nil
	}
	if enc == nil {
		return nil, fmt.Errorf("blob encryption enabled but no encryptor configured")
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("blob encryption enabled but keys are missing (run 'dms keys init')")
	}
	return NewEncryptedStore(store, enc), nil
}
