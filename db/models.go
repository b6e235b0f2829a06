package db

import "time"

// User is the slice of a users row the leaderboard reads.
type User struct {
	ID          string `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
	AvatarURL   string `json:"avatar_url" db:"avatar_url"`
}

// Name is the display name, or the username when none is set.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Score is one row of the scores table: a player's best score for a game.
type Score struct {
	PlayerID   string    `json:"player_id" db:"player_id"`
	GameID     string    `json:"game_id" db:"game_id"`
	Score      int64     `json:"score" db:"score"`
	AchievedAt time.Time `json:"achieved_at" db:"achieved_at"`
}
