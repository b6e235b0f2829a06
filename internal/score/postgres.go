package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/krishanu7/leaderboard-backend/db"
)

const uniqueViolation = "23505"

// PostgresRepository stores entries in the scores table, whose primary key
// is (player_id, game_id).
type PostgresRepository struct {
	conn *sql.DB
}

func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func entryFromRow(row db.Score) Entry {
	return Entry{
		PlayerID:   row.PlayerID,
		GameID:     row.GameID,
		Score:      row.Score,
		AchievedAt: row.AchievedAt.UTC(),
	}
}

func (r *PostgresRepository) Get(ctx context.Context, key Key) (Entry, bool, error) {
	row := db.Score{PlayerID: key.PlayerID, GameID: key.GameID}
	err := r.conn.QueryRowContext(ctx,
		"SELECT score, achieved_at FROM scores WHERE player_id = $1 AND game_id = $2",
		key.PlayerID, key.GameID,
	).Scan(&row.Score, &row.AchievedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get score: %w", err)
	}
	return entryFromRow(row), true, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, e Entry) error {
	_, err := r.conn.ExecContext(ctx,
		"INSERT INTO scores (player_id, game_id, score, achieved_at) VALUES ($1, $2, $3, $4)",
		e.PlayerID, e.GameID, e.Score, e.AchievedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Replace(ctx context.Context, prev, next Entry) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE scores SET score = $3, achieved_at = $4
		WHERE player_id = $1 AND game_id = $2 AND score = $5
	`, next.PlayerID, next.GameID, next.Score, next.AchievedAt, prev.Score)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errConflict
	}
	return nil
}

func (r *PostgresRepository) Scan(ctx context.Context, fn func(Entry) error) error {
	rows, err := r.conn.QueryContext(ctx,
		"SELECT player_id, game_id, score, achieved_at FROM scores ORDER BY game_id, player_id")
	if err != nil {
		return fmt.Errorf("failed to scan scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row db.Score
		if err := rows.Scan(&row.PlayerID, &row.GameID, &row.Score, &row.AchievedAt); err != nil {
			return fmt.Errorf("failed to read score row: %w", err)
		}
		if err := fn(entryFromRow(row)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}
