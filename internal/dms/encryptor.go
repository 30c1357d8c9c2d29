package dms

import "io"

// Encryptor encrypts blob content at rest. Encryption needs only the public
// key; decryption needs the passphrase-protected private key, unlocked once
// per session into a DecryptionContext.
type Encryptor interface {
	// Setup generates the key pair. The private key is stored encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether the key pair exists.
	IsConfigured() bool

	// Recipient returns the public key in its textual form.
	Recipient() (string, error)
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
