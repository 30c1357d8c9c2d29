package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"dms-go/internal/config"
	"dms-go/internal/encryption"
)

func TestEncryptedStore_Locked(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore("test", "")
	s := NewEncryptedStore(inner, encryption.NewTestEncryptor())

	if !s.Locked() {
		t.Fatal("Locked() = false before Unlock")
	}
	if err := s.Put(ctx, "u1/a.txt", strings.NewReader("secret"), 6, "text/plain"); err != nil {
		t.Fatalf("Put() while locked error = %v", err)
	}

	var buf bytes.Buffer
	if err := s.Get(ctx, "u1/a.txt", &buf); !errors.Is(err, ErrLocked) {
		t.Errorf("Get() while locked error = %v, want ErrLocked", err)
	}

	var raw bytes.Buffer
	if err := inner.Get(ctx, "u1/a.txt", &raw); err != nil {
		t.Fatalf("inner Get() error = %v", err)
	}
	if raw.String() == "secret" {
		t.Error("inner store holds plaintext")
	}
}

func TestEncryptedStore_Age(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "dms.pub"),
		PrivateKeyPath: filepath.Join(dir, "dms.key"),
	})
	if err := enc.Setup("hunter2"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	inner := NewMemoryStore("test", "")
	s := NewEncryptedStore(inner, enc)

	content := strings.Repeat("confidential minutes\n", 5000)
	if err := s.Put(ctx, "u1/minutes.txt", strings.NewReader(content), int64(len(content)), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := s.Unlock("wrong"); err == nil {
		t.Fatal("Unlock() with wrong passphrase should fail")
	}
	if !s.Locked() {
		t.Fatal("store unlocked by wrong passphrase")
	}
	if err := s.Unlock("hunter2"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var buf bytes.Buffer
	if err := s.Get(ctx, "u1/minutes.txt", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != content {
		t.Errorf("Get() returned %d bytes, want %d", buf.Len(), len(content))
	}
}

func TestEncryptedStore_CorruptCiphertext(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore("test", "")
	if err := inner.Put(ctx, "u1/bad.bin", strings.NewReader("not encrypted at all"), -1, ""); err != nil {
		t.Fatalf("inner Put() error = %v", err)
	}

	s := NewEncryptedStore(inner, encryption.NewTestEncryptor())
	if err := s.Unlock("any"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var buf bytes.Buffer
	err := s.Get(ctx, "u1/bad.bin", &buf)
	if err == nil {
		t.Fatal("Get() expected decryption error")
	}
	if !strings.Contains(err.Error(), "decrypting blob") {
		t.Errorf("Get() error = %v, want decryption failure", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestEncryptedStore_SourceReadFailure(t *testing.T) {
	inner := NewMemoryStore("test", "")
	s := NewEncryptedStore(inner, encryption.NewTestEncryptor())

	err := s.Put(context.Background(), "u1/a.txt", failingReader{}, 10, "")
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("Put() error = %v, want source read error", err)
	}
	if len(inner.Keys()) != 0 {
		t.Errorf("inner Keys() = %v, want none", inner.Keys())
	}
}
