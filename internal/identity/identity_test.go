package identity

import (
	"context"
	"errors"
	"testing"

	"dms-go/internal/dms"
)

type mapDirectory struct {
	actors map[string]*dms.Actor
	err    error
}

func (d *mapDirectory) FindActor(ctx context.Context, id string) (*dms.Actor, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.actors[id], nil
}

func newTestProvider() *Provider {
	dir := &mapDirectory{actors: map[string]*dms.Actor{
		"u2": {ID: "u2", Email: "grace@example.com", DisplayName: "Grace Hopper"},
		"u3": {ID: "u3", Email: "linus@example.com"},
		"u4": {ID: "u4"},
	}}
	return NewProvider(dms.Actor{ID: "u1", Email: "ada@example.com"}, dir)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, email, want string
	}{
		{"Ada Lovelace", "ada@example.com", "Ada Lovelace"},
		{"  ", "ada@example.com", "ada"},
		{"", "ada@example.com", "ada"},
		{"", "@example.com", "User"},
		{"", "", "User"},
		{"", "localonly", "localonly"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.name, tt.email); got != tt.want {
			t.Errorf("DisplayName(%q, %q) = %q, want %q", tt.name, tt.email, got, tt.want)
		}
	}
}

func TestProvider_CurrentActor(t *testing.T) {
	t.Parallel()
	p := newTestProvider()

	t.Run("configured actor", func(t *testing.T) {
		a, err := p.CurrentActor(context.Background())
		if err != nil {
			t.Fatalf("CurrentActor() error = %v", err)
		}
		if a.ID != "u1" || a.DisplayName != "ada" {
			t.Errorf("CurrentActor() = %+v, want u1/ada", a)
		}
	})

	t.Run("context override", func(t *testing.T) {
		a, err := p.CurrentActor(WithActor(context.Background(), "u2"))
		if err != nil {
			t.Fatalf("CurrentActor() error = %v", err)
		}
		if a.ID != "u2" || a.DisplayName != "Grace Hopper" {
			t.Errorf("CurrentActor() = %+v, want u2/Grace Hopper", a)
		}
	})

	t.Run("no actor configured", func(t *testing.T) {
		empty := NewProvider(dms.Actor{}, &mapDirectory{})
		if _, err := empty.CurrentActor(context.Background()); err == nil {
			t.Error("CurrentActor() expected error with no actor")
		}
	})
}

func TestProvider_ResolveActor(t *testing.T) {
	t.Parallel()
	p := newTestProvider()
	ctx := context.Background()

	tests := []struct {
		id   string
		want string
	}{
		{"u1", "ada"},
		{"u2", "Grace Hopper"},
		{"u3", "linus"},
		{"u4", "User"},
		{"ghost", UnknownDisplayName},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			a, err := p.ResolveActor(ctx, tt.id)
			if err != nil {
				t.Fatalf("ResolveActor() error = %v", err)
			}
			if a.ID != tt.id {
				t.Errorf("ID = %q, want %q", a.ID, tt.id)
			}
			if a.DisplayName != tt.want {
				t.Errorf("DisplayName = %q, want %q", a.DisplayName, tt.want)
			}
		})
	}

	t.Run("directory failure", func(t *testing.T) {
		broken := NewProvider(dms.Actor{ID: "u1"}, &mapDirectory{err: errors.New("db closed")})
		if _, err := broken.ResolveActor(ctx, "u2"); err == nil {
			t.Error("ResolveActor() expected error")
		}
	})
}
