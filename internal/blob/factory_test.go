package blob

import (
	"context"
	"path/filepath"
	"testing"

	"dms-go/internal/config"
	"dms-go/internal/encryption"
)

func TestNewBlobStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	unconfigured := encryption.NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(t.TempDir(), "missing.pub"),
		PrivateKeyPath: filepath.Join(t.TempDir(), "missing.key"),
	})

	tests := []struct {
		name    string
		cfg     config.BlobConfig
		enc     *encryption.AgeEncryptor
		test    bool
		wantErr bool
		check   func(t *testing.T, v any)
	}{
		{
			name: "memory",
			cfg:  config.BlobConfig{Type: "memory", Name: "m"},
			check: func(t *testing.T, v any) {
				if _, ok := v.(*MemoryStore); !ok {
					t.Errorf("got %T, want *MemoryStore", v)
				}
			},
		},
		{
			name: "filesystem",
			cfg:  config.BlobConfig{Type: "filesystem", Name: "fs", FSRoot: filepath.Join(t.TempDir(), "blobs")},
			check: func(t *testing.T, v any) {
				if _, ok := v.(*FileSystemStore); !ok {
					t.Errorf("got %T, want *FileSystemStore", v)
				}
			},
		},
		{
			name:    "filesystem without root",
			cfg:     config.BlobConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			cfg:     config.BlobConfig{Type: "s3"},
			wantErr: true,
		},
		{
			name: "encrypted memory",
			cfg:  config.BlobConfig{Type: "memory", Encrypt: true},
			test: true,
			check: func(t *testing.T, v any) {
				if _, ok := v.(*EncryptedStore); !ok {
					t.Errorf("got %T, want *EncryptedStore", v)
				}
			},
		},
		{
			name:    "encryption without encryptor",
			cfg:     config.BlobConfig{Type: "memory", Encrypt: true},
			wantErr: true,
		},
		{
			name:    "encryption without keys",
			cfg:     config.BlobConfig{Type: "memory", Encrypt: true},
			enc:     unconfigured,
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.BlobConfig{Type: "ftp"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store any
			var err error
			switch {
			case tt.test:
				store, err = NewBlobStoreFromConfig(ctx, tt.cfg, encryption.NewTestEncryptor())
			case tt.enc != nil:
				store, err = NewBlobStoreFromConfig(ctx, tt.cfg, tt.enc)
			default:
				store, err = NewBlobStoreFromConfig(ctx, tt.cfg, nil)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBlobStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, store)
			}
		})
	}
}
