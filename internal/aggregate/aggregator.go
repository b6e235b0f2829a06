// Package aggregate keeps per-player totals across games, incrementally
// updated from score improvements.
package aggregate

import (
	"sync"

	"github.com/krishanu7/leaderboard-backend/internal/score"
	"github.com/krishanu7/leaderboard-backend/pkg/skiplist"
)

// Total is a player's cross-game aggregate.
type Total struct {
	PlayerID    string `json:"playerId"`
	TotalScore  int64  `json:"totalScore"`
	GamesPlayed int    `json:"gamesPlayed"`
}

// Ordering is total score descending, ties by ascending player id.
func higher(a, b Total) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.PlayerID < b.PlayerID
}

type player struct {
	total Total
	games map[string]int64
}

type Aggregator struct {
	mu      sync.RWMutex
	players map[string]*player
	order   *skiplist.List[Total]
}

func New() *Aggregator {
	return &Aggregator{
		players: make(map[string]*player),
		order:   skiplist.New(higher),
	}
}

// Apply folds an improvement into the player's total. The delta is taken
// against the last score seen for that game, so stale or replayed events
// leave the total unchanged. It reports whether the total changed.
func (a *Aggregator) Apply(ev score.Improved) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(ev.Current)
}

func (a *Aggregator) apply(e score.Entry) bool {
	p, ok := a.players[e.PlayerID]
	if !ok {
		p = &player{total: Total{PlayerID: e.PlayerID}, games: make(map[string]int64)}
		a.players[e.PlayerID] = p
	} else {
		a.order.Delete(p.total)
	}

	seen, played := p.games[e.GameID]
	changed := false
	switch {
	case !played:
		p.total.GamesPlayed++
		p.total.TotalScore += e.Score
		p.games[e.GameID] = e.Score
		changed = true
	case e.Score > seen:
		p.total.TotalScore += e.Score - seen
		p.games[e.GameID] = e.Score
		changed = true
	}
	a.order.Insert(p.total)
	return changed
}

// Top returns up to n players starting at 0-based offset, highest total first.
func (a *Aggregator) Top(offset, n int) []Total {
	if offset < 0 {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.order.Range(offset, n)
}

// Player returns the player's total and 1-based global position.
func (a *Aggregator) Player(playerID string) (Total, int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.players[playerID]
	if !ok {
		return Total{PlayerID: playerID}, 0, false
	}
	return p.total, a.order.CountLess(p.total) + 1, true
}

// Len returns the number of players with at least one entry.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.order.Len()
}

// Rebuild recomputes all totals from entries.
func (a *Aggregator) Rebuild(entries []score.Entry) {
	fresh := New()
	for _, e := range entries {
		fresh.apply(e)
	}
	a.mu.Lock()
	a.players = fresh.players
	a.order = fresh.order
	a.mu.Unlock()
}
