package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/player"
	"github.com/krishanu7/leaderboard-backend/internal/score"
)

// EdgeRooms serves joins and chat in a process that does not own the score
// store. Chat goes straight to the shared publisher.
type EdgeRooms struct {
	games     score.GameCatalog
	players   player.Directory
	authz     auth.Authorizer
	publisher fanout.Publisher
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

func NewEdgeRooms(games score.GameCatalog, players player.Directory, authz auth.Authorizer, publisher fanout.Publisher, timeout time.Duration, logger *zap.SugaredLogger) *EdgeRooms {
	return &EdgeRooms{
		games:     games,
		players:   players,
		authz:     authz,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

func (e *EdgeRooms) CanJoin(ctx context.Context, caller auth.Caller, room fanout.Room) error {
	if id, ok := room.IsPlayer(); ok {
		if !e.authz.Check(ctx, caller, id) {
			return apperr.New(apperr.CodePermissionDenied, "not allowed to join this room")
		}
		return nil
	}
	id, _ := room.IsGame()
	return e.requireGame(ctx, id)
}

func (e *EdgeRooms) Chat(ctx context.Context, caller auth.Caller, gameID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.requireGame(ctx, gameID); err != nil {
		return err
	}

	var name string
	if profiles, err := e.players.Lookup(ctx, []string{caller.PlayerID}); err != nil {
		e.logger.Warnw("player lookup failed", "player", caller.PlayerID, "error", err)
	} else {
		name = profiles[caller.PlayerID].DisplayName
	}

	ev, err := fanout.NewChatEvent(gameID, caller.PlayerID, name, message, time.Now())
	if err != nil {
		return err
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "chat is unavailable", err)
	}
	return nil
}

func (e *EdgeRooms) requireGame(ctx context.Context, gameID string) error {
	ok, err := e.games.Exists(ctx, gameID)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "game catalog unavailable", err)
	}
	if !ok {
		return score.ErrUnknownGame
	}
	return nil
}
