package spool

import (
	"fmt"

	"dms-go/internal/config"
	"dms-go/internal/dms"
)

// NewSpoolerFromConfig creates a Spooler based on the config type.
func NewSpoolerFromConfig(cfg config.SpoolConfig) (dms.Spooler, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxUploadSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemorySpooler(maxSize), nil
	case "filesystem":
		if cfg.SpoolDir == "" {
			return nil, fmt.Errorf("filesystem spool requires spool_dir to be set")
		}
		s, err := NewFileSystemSpooler(cfg.SpoolDir, maxSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown spool type: %q", cfg.Type)
	}
}
