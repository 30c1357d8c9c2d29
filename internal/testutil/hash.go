package testutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the SHA-256 of content as lowercase hex, the format the
// spooler records in node metadata.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
