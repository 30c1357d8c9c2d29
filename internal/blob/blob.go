// Package blob provides the key-addressed blob stores content is written to.
package blob

import (
	"errors"
	"net/url"
	"strings"
)

// ErrBlobNotFound is returned by Get when no content is stored under the key.
var ErrBlobNotFound = errors.New("blob not found")

// joinURL appends a slash-separated key to base, escaping each segment.
func joinURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
