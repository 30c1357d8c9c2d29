package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"dms-go/internal/blob"
	"dms-go/internal/database"
	"dms-go/internal/dms"
)

// Exit codes returned by the CLI.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitPermission = 4
	ExitStorage    = 5
	ExitPartial    = 6
)

// ExitCode maps an error to the process exit code of its category.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, dms.ErrPartialDelete), errors.Is(err, dms.ErrRestoreIncomplete):
		return ExitPartial
	case errors.Is(err, dms.ErrValidation):
		return ExitValidation
	case errors.Is(err, dms.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, dms.ErrPermissionDenied):
		return ExitPermission
	case errors.Is(err, dms.ErrStorageWrite), errors.Is(err, dms.ErrStorageRead), errors.Is(err, blob.ErrLocked):
		return ExitStorage
	default:
		return ExitFailure
	}
}

// Format selects how command results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses an --output flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", &dms.ValidationError{Field: "output", Reason: fmt.Sprintf("unknown format %q (want text, json or yaml)", s)}
	}
}

// Render writes v as JSON or YAML, or calls text for the text format.
func Render(w io.Writer, f Format, v any, text func(io.Writer) error) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// HumanSize renders a byte count, e.g. "1.5 MiB".
func HumanSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// HumanTime renders a timestamp relative to now, e.g. "3 minutes ago".
func HumanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// NodeView is the printable form of a node.
type NodeView struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Path        string         `json:"path" yaml:"path"`
	Type        string         `json:"type" yaml:"type"`
	Owner       string         `json:"owner" yaml:"owner"`
	Size        int64          `json:"size" yaml:"size"`
	ContentType string         `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Favorite    bool           `json:"favorite" yaml:"favorite"`
	Archived    bool           `json:"archived" yaml:"archived"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
	AccessedAt  time.Time      `json:"last_accessed_at" yaml:"last_accessed_at"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewNodeView converts a node.
func NewNodeView(n *dms.Node) NodeView {
	typ := "file"
	if n.IsFolder {
		typ = "folder"
	}
	return NodeView{
		ID:          n.ID,
		Name:        n.Name,
		Path:        n.ChildPath(),
		Type:        typ,
		Owner:       n.OwnerID,
		Size:        n.Size,
		ContentType: n.ContentType(),
		Favorite:    n.IsFavorite,
		Archived:    n.IsArchived,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		AccessedAt:  n.LastAccessedAt,
		Metadata:    n.Metadata,
	}
}

// NodeViews converts a listing.
func NodeViews(nodes []*dms.Node) []NodeView {
	out := make([]NodeView, len(nodes))
	for i, n := range nodes {
		out[i] = NewNodeView(n)
	}
	return out
}

// ProcessOutcomeView is one line of a batch analysis report. Exactly one of
// Node and Error is set.
type ProcessOutcomeView struct {
	Ref   string    `json:"ref" yaml:"ref"`
	Node  *NodeView `json:"node,omitempty" yaml:"node,omitempty"`
	Error string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewProcessOutcomeView converts a batch outcome.
func NewProcessOutcomeView(o ProcessOutcome) ProcessOutcomeView {
	v := ProcessOutcomeView{Ref: o.Ref}
	if o.Err != nil {
		v.Error = o.Err.Error()
		return v
	}
	node := NewNodeView(o.Node)
	v.Node = &node
	return v
}

// ShareView is the printable form of a grant.
type ShareView struct {
	ID         string    `json:"id" yaml:"id"`
	FileID     string    `json:"file_id" yaml:"file_id"`
	Owner      string    `json:"owner" yaml:"owner"`
	SharedWith string    `json:"shared_with" yaml:"shared_with"`
	Name       string    `json:"name" yaml:"name"`
	Email      string    `json:"email,omitempty" yaml:"email,omitempty"`
	Permission string    `json:"permission" yaml:"permission"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewShareView converts a grant with its grantee.
func NewShareView(s *dms.ShareWithActor) ShareView {
	return ShareView{
		ID:         s.ID,
		FileID:     s.FileID,
		Owner:      s.OwnerID,
		SharedWith: s.SharedWithID,
		Name:       s.Actor.DisplayName,
		Email:      s.Actor.Email,
		Permission: s.PermissionLevel.String(),
		UpdatedAt:  s.UpdatedAt,
	}
}

// SharedNodeView is a node shared with the current actor.
type SharedNodeView struct {
	NodeView   `yaml:",inline"`
	ShareID    string `json:"share_id" yaml:"share_id"`
	SharedBy   string `json:"shared_by" yaml:"shared_by"`
	Permission string `json:"permission" yaml:"permission"`
}

// NewSharedNodeView converts a shared node.
func NewSharedNodeView(n *dms.SharedNode) SharedNodeView {
	return SharedNodeView{
		NodeView:   NewNodeView(n.Node),
		ShareID:    n.ShareID,
		SharedBy:   n.SharedBy,
		Permission: n.PermissionLevel.String(),
	}
}

// VersionView is the printable form of a version.
type VersionView struct {
	ID         string    `json:"id" yaml:"id"`
	FileID     string    `json:"file_id" yaml:"file_id"`
	Number     int64     `json:"version" yaml:"version"`
	StorageKey string    `json:"storage_key" yaml:"storage_key"`
	Size       int64     `json:"size" yaml:"size"`
	CreatedBy  string    `json:"created_by" yaml:"created_by"`
	Creator    string    `json:"creator" yaml:"creator"`
	Comment    string    `json:"comment" yaml:"comment"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// NewVersionView converts a version. actor may be the zero value.
func NewVersionView(v *dms.Version, actor dms.Actor) VersionView {
	return VersionView{
		ID:         v.ID,
		FileID:     v.FileID,
		Number:     v.VersionNumber,
		StorageKey: v.StorageKey,
		Size:       v.Size,
		CreatedBy:  v.CreatedBy,
		Creator:    actor.DisplayName,
		Comment:    v.Comment,
		CreatedAt:  v.CreatedAt,
	}
}

// SearchResultView is a search hit.
type SearchResultView struct {
	NodeView   `yaml:",inline"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

// OperationView is one entry of the operation log.
type OperationView struct {
	ID         int64      `json:"id" yaml:"id"`
	Operation  string     `json:"operation" yaml:"operation"`
	Parameters string     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Actor      string     `json:"actor" yaml:"actor"`
	Status     string     `json:"status" yaml:"status"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewOperationView converts an operation log row.
func NewOperationView(op *database.Operation) OperationView {
	return OperationView{
		ID:         op.ID,
		Operation:  op.Operation,
		Parameters: op.Parameters,
		Actor:      op.ActorID,
		Status:     op.Status,
		StartedAt:  op.StartedAt,
		FinishedAt: op.FinishedAt,
	}
}

// NewSearchResultView converts a search hit.
func NewSearchResultView(r *dms.SearchResult) SearchResultView {
	return SearchResultView{NodeView: NewNodeView(r.Node), Similarity: r.Similarity}
}
