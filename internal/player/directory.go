// Package player resolves player ids to public profiles.
package player

import (
	"context"
	"sync"
)

// Profile is the public identity shown next to a score.
type Profile struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Directory looks up profiles in batches. Ids without a profile are absent
// from the result.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]Profile, error)
}

// Static is an in-memory directory.
type Static struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewStatic(profiles ...Profile) *Static {
	s := &Static{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.PlayerID] = p
	}
	return s
}

func (s *Static) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.PlayerID] = p
}

func (s *Static) Lookup(_ context.Context, ids []string) (map[string]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Unique returns ids without duplicates or empty values, keeping first-seen order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
