package testutil

import (
	"context"
	"fmt"
	"sync"

	"dms-go/internal/dms"
)

// StaticIdentity is an IdentityProvider over a fixed set of actors whose
// current actor can be switched between calls.
type StaticIdentity struct {
	mu      sync.Mutex
	current string
	actors  map[string]dms.Actor
}

var _ dms.IdentityProvider = (*StaticIdentity)(nil)

// NewStaticIdentity creates a provider knowing actors, acting as the first one.
func NewStaticIdentity(actors ...dms.Actor) *StaticIdentity {
	s := &StaticIdentity{actors: make(map[string]dms.Actor)}
	for i, a := range actors {
		if i == 0 {
			s.current = a.ID
		}
		s.actors[a.ID] = a
	}
	return s
}

// ActAs switches the current actor. Unknown ids are allowed.
func (s *StaticIdentity) ActAs(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
}

func (s *StaticIdentity) CurrentActor(ctx context.Context) (dms.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return dms.Actor{}, fmt.Errorf("no current actor")
	}
	if a, ok := s.actors[s.current]; ok {
		return a, nil
	}
	return dms.Actor{ID: s.current, DisplayName: s.current}, nil
}

func (s *StaticIdentity) ResolveActor(ctx context.Context, id string) (dms.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.actors[id]; ok {
		return a, nil
	}
	return dms.Actor{ID: id, DisplayName: "Unknown user"}, nil
}
