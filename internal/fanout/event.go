package fanout

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
)

// Room names a channel of subscribers: game:<id> or player:<id>.
type Room string

const (
	gamePrefix   = "game:"
	playerPrefix = "player:"
)

func GameRoom(gameID string) Room     { return Room(gamePrefix + gameID) }
func PlayerRoom(playerID string) Room { return Room(playerPrefix + playerID) }

// ParseRoom validates a room key.
func ParseRoom(s string) (Room, error) {
	for _, p := range []string{gamePrefix, playerPrefix} {
		if id, ok := strings.CutPrefix(s, p); ok && id != "" {
			return Room(s), nil
		}
	}
	return "", fmt.Errorf("invalid room %q", s)
}

// IsGame reports whether r is a game room and returns the game id.
func (r Room) IsGame() (string, bool) {
	return strings.CutPrefix(string(r), gamePrefix)
}

// IsPlayer reports whether r is a player room and returns the player id.
func (r Room) IsPlayer() (string, bool) {
	return strings.CutPrefix(string(r), playerPrefix)
}

const (
	TypeScoreUpdated = "score_updated"
	TypeChatMessage  = "chat_message"
	TypePersonalBest = "personal_best"
)

// Event is the envelope delivered to subscribers and relayed between instances.
type Event struct {
	Room Room            `json:"room"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(room Room, typ string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Event{Room: room, Type: typ, Data: data}, nil
}

type ScoreUpdated struct {
	PlayerID  string    `json:"playerId"`
	GameID    string    `json:"gameId"`
	Score     int64     `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessage struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

const MaxChatLength = 500

var (
	ErrEmptyMessage = apperr.New(apperr.CodeInvalidArgument, "message is required")
	ErrLongMessage  = apperr.New(apperr.CodeInvalidArgument, "message is too long")
)

// NewChatEvent trims and validates message and wraps it for the game room.
// Chat is passed through as is; it is not checked against any score.
func NewChatEvent(gameID, playerID, displayName, message string, at time.Time) (Event, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Event{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxChatLength {
		return Event{}, ErrLongMessage
	}
	return NewEvent(GameRoom(gameID), TypeChatMessage, ChatMessage{
		PlayerID:    playerID,
		DisplayName: displayName,
		Message:     message,
		Timestamp:   at.UTC(),
	})
}

type PersonalBest struct {
	GameID        string    `json:"gameId"`
	Score         int64     `json:"score"`
	PreviousScore *int64    `json:"previousScore,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
