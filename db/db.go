// Package db opens the Postgres connection and owns the schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return conn, nil
}

// Schema creates the tables read and written by the leaderboard. The users
// and games tables are owned by other services; they are created here only
// so a fresh database is usable.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		username     TEXT NOT NULL UNIQUE,
		display_name TEXT,
		avatar_url   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id     TEXT PRIMARY KEY,
		title  TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		player_id   TEXT NOT NULL,
		game_id     TEXT NOT NULL,
		score       BIGINT NOT NULL CHECK (score >= 0),
		achieved_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (player_id, game_id)
	)`,
	`CREATE INDEX IF NOT EXISTS scores_game_rank_idx
		ON scores (game_id, score DESC, achieved_at ASC)`,
}

// Migrate applies Schema in one transaction.
func Migrate(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return tx.Commit()
}
