// Package rank maintains per-game orderings of best scores and answers rank
// and top-N queries in logarithmic time.
package rank

import (
	"sync"
	"time"

	"github.com/krishanu7/leaderboard-backend/internal/score"
	"github.com/krishanu7/leaderboard-backend/pkg/skiplist"
)

// ahead orders entries by score descending, then earlier AchievedAt, then
// player id so that every entry has a distinct position.
func ahead(a, b score.Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.AchievedAt.Equal(b.AchievedAt) {
		return a.AchievedAt.Before(b.AchievedAt)
	}
	return a.PlayerID < b.PlayerID
}

// Standing is a player's position on one game's leaderboard. Rank and Score
// are nil when the player has no entry.
type Standing struct {
	Rank         *int       `json:"rank"`
	Score        *int64     `json:"score"`
	AchievedAt   *time.Time `json:"achievedAt,omitempty"`
	TotalPlayers int        `json:"totalPlayers"`
	Percentile   *float64   `json:"percentile,omitempty"`
}

type board struct {
	mu       sync.RWMutex
	order    *skiplist.List[score.Entry]
	byPlayer map[string]score.Entry
}

func newBoard() *board {
	return &board{
		order:    skiplist.New(ahead),
		byPlayer: make(map[string]score.Entry),
	}
}

func (b *board) put(e score.Entry) bool {
	if cur, ok := b.byPlayer[e.PlayerID]; ok {
		if e.Score <= cur.Score {
			return false
		}
		b.order.Delete(cur)
	}
	b.byPlayer[e.PlayerID] = e
	b.order.Insert(e)
	return true
}

// Index holds one ordered board per game.
type Index struct {
	mu     sync.RWMutex
	boards map[string]*board
}

func NewIndex() *Index {
	return &Index{boards: make(map[string]*board)}
}

func (x *Index) board(gameID string) (*board, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	b, ok := x.boards[gameID]
	return b, ok
}

func (x *Index) boardForWrite(gameID string) *board {
	if b, ok := x.board(gameID); ok {
		return b
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.boards[gameID]
	if !ok {
		b = newBoard()
		x.boards[gameID] = b
	}
	return b
}

// Apply moves the event's player to its new position. Events that are not
// newer than the indexed entry are stale replays and are ignored; Apply
// reports whether the index changed.
func (x *Index) Apply(ev score.Improved) bool {
	b := x.boardForWrite(ev.Current.GameID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.put(ev.Current)
}

// Top returns up to n entries of the game starting at 0-based offset, best first.
func (x *Index) Top(gameID string, offset, n int) []score.Entry {
	b, ok := x.board(gameID)
	if !ok || offset < 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.order.Range(offset, n)
}

// Rank returns the player's standing in the game.
func (x *Index) Rank(gameID, playerID string) Standing {
	b, ok := x.board(gameID)
	if !ok {
		return Standing{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := b.order.Len()
	e, ok := b.byPlayer[playerID]
	if !ok {
		return Standing{TotalPlayers: total}
	}
	r := b.order.CountLess(e) + 1
	return standing(r, e, total)
}

// Position returns the rank e holds or would hold in its game, counting only
// entries ordered strictly ahead of it. The player's own indexed entry never
// counts, whether it is e itself or an older, lower score.
func (x *Index) Position(e score.Entry) (rank, total int) {
	b, ok := x.board(e.GameID)
	if !ok {
		return 1, 1
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	total = b.order.Len()
	if _, indexed := b.byPlayer[e.PlayerID]; !indexed {
		total++
	}
	return b.order.CountLess(e) + 1, total
}

// Len returns the number of players with an entry for the game.
func (x *Index) Len(gameID string) int {
	b, ok := x.board(gameID)
	if !ok {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.order.Len()
}

// Rebuild replaces the index contents with entries.
func (x *Index) Rebuild(entries []score.Entry) {
	boards := make(map[string]*board)
	for _, e := range entries {
		b, ok := boards[e.GameID]
		if !ok {
			b = newBoard()
			boards[e.GameID] = b
		}
		b.put(e)
	}
	x.mu.Lock()
	x.boards = boards
	x.mu.Unlock()
}

func standing(r int, e score.Entry, total int) Standing {
	sc := e.Score
	at := e.AchievedAt
	pct := Percentile(r, total)
	return Standing{
		Rank:         &r,
		Score:        &sc,
		AchievedAt:   &at,
		TotalPlayers: total,
		Percentile:   &pct,
	}
}

// Percentile is the share of the other players ranked below rank, in
// percent. A sole player is at the 100th percentile.
func Percentile(rank, total int) float64 {
	if total <= 1 {
		return 100
	}
	return float64(total-rank) / float64(total-1) * 100
}
