package dms

import (
	"fmt"
	"strings"
)

// PermissionLevel is the capability a grant carries.
// Levels are totally ordered: view < comment < edit.
type PermissionLevel int

const (
	PermissionView PermissionLevel = iota + 1
	PermissionComment
	PermissionEdit
)

var permissionNames = map[PermissionLevel]string{
	PermissionView:    "view",
	PermissionComment: "comment",
	PermissionEdit:    "edit",
}

// ParsePermissionLevel parses "view", "comment" or "edit".
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "view":
		return PermissionView, nil
	case "comment":
		return PermissionComment, nil
	case "edit":
		return PermissionEdit, nil
	default:
		return 0, &ValidationError{Field: "permission_level", Reason: fmt.Sprintf("unknown permission level %q", s)}
	}
}

// Valid reports whether p is one of the defined levels.
func (p PermissionLevel) Valid() bool {
	_, ok := permissionNames[p]
	return ok
}

// Satisfies reports whether a grant of level p covers the required level.
func (p PermissionLevel) Satisfies(required PermissionLevel) bool {
	return p.Valid() && p >= required
}

func (p PermissionLevel) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PermissionLevel(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p PermissionLevel) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid permission level %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PermissionLevel) UnmarshalText(text []byte) error {
	level, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*p = level
	return nil
}
