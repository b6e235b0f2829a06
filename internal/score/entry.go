package score

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
)

var (
	ErrInvalidScore = apperr.New(apperr.CodeInvalidArgument, "score must be a non-negative whole number")
	ErrMissingField = apperr.New(apperr.CodeInvalidArgument, "playerId and gameId are required")
	ErrUnknownGame  = apperr.New(apperr.CodeNotFound, "no active game found with that ID")
)

// Entry is the best score a player holds for a game.
type Entry struct {
	PlayerID   string    `json:"playerId"`
	GameID     string    `json:"gameId"`
	Score      int64     `json:"score"`
	AchievedAt time.Time `json:"achievedAt"`
}

// Key identifies an entry.
type Key struct {
	PlayerID string
	GameID   string
}

// String encodes the key with a length prefix on the game id, so ids that
// contain the separator cannot collide.
func (k Key) String() string {
	return strconv.Itoa(len(k.GameID)) + ":" + k.GameID + "|" + k.PlayerID
}

func (e Entry) Key() Key {
	return Key{PlayerID: e.PlayerID, GameID: e.GameID}
}

// Improved is emitted once per accepted submission. Previous is nil when the
// submission created the entry.
type Improved struct {
	Previous *Entry
	Current  Entry
}

// Delta is the change in the player's score for this game.
func (ev Improved) Delta() int64 {
	if ev.Previous == nil {
		return ev.Current.Score
	}
	return ev.Current.Score - ev.Previous.Score
}

// ParseScore converts a JSON number into a score, rejecting negative,
// fractional and out of range values.
func ParseScore(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		if v < 0 {
			return 0, ErrInvalidScore
		}
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidScore
	}
	if f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, ErrInvalidScore
	}
	return int64(f), nil
}
