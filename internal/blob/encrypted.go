package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"dms-go/internal/dms"
)

// ErrLocked is returned by EncryptedStore.Get before Unlock has succeeded.
var ErrLocked = errors.New("blob store is locked (passphrase required)")

// errPipeAborted closes the pipe when the other side has stopped early.
var errPipeAborted = errors.New("pipe aborted")

// EncryptedStore wraps a dms.BlobStore and encrypts content before it
// reaches the inner store. Writes only need the public key; reads need the
// private key, unlocked once per session.
type EncryptedStore struct {
	inner     dms.BlobStore
	encryptor dms.Encryptor

	mu sync.RWMutex
	dc dms.DecryptionContext
}

// NewEncryptedStore wraps inner with encryptor.
func NewEncryptedStore(inner dms.BlobStore, encryptor dms.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, encryptor: encryptor}
}

// Unlock decrypts the private key so Get can decrypt content.
func (s *EncryptedStore) Unlock(passphrase string) error {
	dc, err := s.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking blob store: %w", err)
	}
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()
	return nil
}

// Locked reports whether Get still needs Unlock.
func (s *EncryptedStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dc == nil
}

// Put encrypts r on the fly into the inner store. The ciphertext length is
// not known up front, so the inner store receives size -1.
func (s *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := s.encryptor.Encrypt(r, pw)
		pw.CloseWithError(err)
		done <- err
	}()

	putErr := s.inner.Put(ctx, key, pr, -1, contentType)
	// Unblocks the encrypting goroutine if the inner store stopped reading early.
	pr.CloseWithError(errPipeAborted)
	encErr := <-done

	// A failed Encrypt surfaces through the pipe as the inner store's read error.
	if putErr != nil {
		return putErr
	}
	if encErr != nil {
		return fmt.Errorf("encrypting blob %s: %w", key, encErr)
	}
	return nil
}

// Get decrypts the content under key into w.
func (s *EncryptedStore) Get(ctx context.Context, key string, w io.Writer) error {
	s.mu.RLock()
	dc := s.dc
	s.mu.RUnlock()
	if dc == nil {
		return ErrLocked
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := s.inner.Get(ctx, key, pw)
		pw.CloseWithError(err)
		done <- err
	}()

	decErr := dc.Decrypt(pr, w)
	pr.CloseWithError(errPipeAborted)
	getErr := <-done

	if getErr != nil && !errors.Is(getErr, errPipeAborted) {
		return getErr
	}
	if decErr != nil {
		return fmt.Errorf("decrypting blob %s: %w", key, decErr)
	}
	return nil
}

// Delete removes the content under key from the inner store.
func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// PublicURL returns the inner store's URL. The content there is ciphertext.
func (s *EncryptedStore) PublicURL(key string) string {
	return s.inner.PublicURL(key)
}

// Compile-time check that EncryptedStore implements dms.BlobStore
var _ dms.BlobStore = (*EncryptedStore)(nil)
