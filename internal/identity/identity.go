// Package identity supplies the acting actor and turns actor ids into
// display-ready identities.
package identity

import (
	"context"
	"fmt"
	"strings"

	"dms-go/internal/dms"
)

const (
	// UnknownDisplayName is shown for ids the directory does not know.
	UnknownDisplayName = "Unknown user"
	// DefaultDisplayName is used when an actor has neither name nor email.
	DefaultDisplayName = "User"
)

type actorKey struct{}

// WithActor returns a context that makes the provider act as actorID
// instead of the configured actor.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// Provider implements dms.IdentityProvider from a configured default actor
// and an actor directory.
type Provider struct {
	current   dms.Actor
	directory dms.ActorDirectory
}

var _ dms.IdentityProvider = (*Provider)(nil)

// NewProvider creates a Provider acting as current unless the context says otherwise.
func NewProvider(current dms.Actor, directory dms.ActorDirectory) *Provider {
	return &Provider{current: current, directory: directory}
}

// CurrentActor returns the acting actor. A context override is resolved
// through the directory; the configured actor is returned as configured.
func (p *Provider) CurrentActor(ctx context.Context) (dms.Actor, error) {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" && id != p.current.ID {
		return p.ResolveActor(ctx, id)
	}
	if p.current.ID == "" {
		return dms.Actor{}, fmt.Errorf("no current actor configured")
	}
	a := p.current
	a.DisplayName = DisplayName(a.DisplayName, a.Email)
	return a, nil
}

// ResolveActor looks id up in the directory. Unknown ids resolve to a
// placeholder identity rather than an error.
func (p *Provider) ResolveActor(ctx context.Context, id string) (dms.Actor, error) {
	if id == p.current.ID {
		return p.CurrentActor(context.Background())
	}

	found, err := p.directory.FindActor(ctx, id)
	if err != nil {
		return dms.Actor{}, fmt.Errorf("resolving actor %s: %w", id, err)
	}
	if found == nil {
		return dms.Actor{ID: id, DisplayName: UnknownDisplayName}, nil
	}

	a := *found
	a.DisplayName = DisplayName(a.DisplayName, a.Email)
	return a, nil
}

// DisplayName picks name, else the local part of email, else "User".
func DisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	if email != "" && !strings.Contains(email, "@") {
		return email
	}
	return DefaultDisplayName
}
