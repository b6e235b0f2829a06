package player

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/krishanu7/leaderboard-backend/db"
)

// PostgresDirectory reads profiles from the users table.
type PostgresDirectory struct {
	conn *sql.DB
}

func NewPostgresDirectory(conn *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{conn: conn}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, ids []string) (map[string]Profile, error) {
	ids = Unique(ids)
	out := make(map[string]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, username, COALESCE(display_name, ''), COALESCE(avatar_url, '')
		FROM users
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		out[u.ID] = Profile{PlayerID: u.ID, DisplayName: u.Name(), AvatarURL: u.AvatarURL}
	}
	return out, rows.Err()
}
