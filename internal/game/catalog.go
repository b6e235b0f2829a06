// Package game answers whether a game exists and accepts scores.
package game

import (
	"context"
	"sync"
)

// Static is an in-memory catalog of active games.
type Static struct {
	mu     sync.RWMutex
	active map[string]bool
}

func NewStatic(ids ...string) *Static {
	s := &Static{active: make(map[string]bool, len(ids))}
	for _, id := range ids {
		s.active[id] = true
	}
	return s
}

func (s *Static) Exists(_ context.Context, gameID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[gameID], nil
}

// Set marks the game active or inactive.
func (s *Static) Set(gameID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.active[gameID] = true
		return
	}
	delete(s.active, gameID)
}
