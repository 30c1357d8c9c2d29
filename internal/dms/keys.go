package dms

import (
	"fmt"
	"path"
	"strings"
)

// uploadKey derives the blob key for a first upload: {ownerID}/{dir}/{name}@{nodeID}.
// Two owners' folders can resolve to the same directory path, so the node id
// keeps the key unique per node.
func uploadKey(ownerID, dir, name, nodeID string) string {
	return path.Join(ownerID, dir, name) + "@" + nodeID
}

// revisionKey derives the blob key for a content update. The checksum prefix
// ties the key to the content so each revision gets its own blob.
func revisionKey(ownerID, dir, name, nodeID, checksum string) string {
	short := checksum
	if len(short) > 12 {
		short = short[:12]
	}
	return uploadKey(ownerID, dir, name, nodeID) + "-" + short
}

// systemKeyRoot holds blob keys the system writes for itself. Actor ids may
// not start with an underscore, so no upload or revision key lands under it.
const systemKeyRoot = "_system"

// SystemKey derives a blob key in the system namespace.
func SystemKey(parts ...string) string {
	return path.Join(append([]string{systemKeyRoot}, parts...)...)
}

// ValidateActorID rejects ids that cannot own nodes: empty ones and ids
// starting with an underscore, which are reserved.
func ValidateActorID(id string) error {
	switch {
	case id == "":
		return &ValidationError{Field: "owner_id", Reason: "must not be empty"}
	case strings.HasPrefix(id, "_"):
		return &ValidationError{Field: "owner_id", Reason: fmt.Sprintf("%q is reserved", id)}
	}
	return nil
}
