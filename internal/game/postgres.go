package game

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCatalog reads the games table.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Exists(ctx context.Context, gameID string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM games WHERE id = $1 AND status = 'active'
		)
	`, gameID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check game %s: %w", gameID, err)
	}
	return exists, nil
}
