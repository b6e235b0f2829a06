// Package leaderboard composes the score store, rank index, aggregator and
// fanout into the submit and query operations exposed to clients.
package leaderboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/aggregate"
	"github.com/krishanu7/leaderboard-backend/internal/apperr"
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/metrics"
	"github.com/krishanu7/leaderboard-backend/internal/player"
	"github.com/krishanu7/leaderboard-backend/internal/rank"
	"github.com/krishanu7/leaderboard-backend/internal/score"
)

const (
	DefaultGameLimit   = 10
	DefaultGlobalLimit = 20
	MaxLimit           = 100
)

var (
	ErrUnauthenticated = apperr.New(apperr.CodeUnauthenticated, "authentication required")
	ErrForbidden       = apperr.New(apperr.CodePermissionDenied, "not allowed to act for this player")
	ErrInvalidOffset   = apperr.New(apperr.CodeInvalidArgument, "offset must not be negative")
	ErrUnknownPlayer   = apperr.New(apperr.CodeNotFound, "player has no scores")
)

// Authorizer decides whether caller may act for playerID.
type Authorizer interface {
	Check(ctx context.Context, caller auth.Caller, playerID string) bool
}

type SubmitResult struct {
	Accepted      bool      `json:"accepted"`
	Rank          int       `json:"rank"`
	Score         int64     `json:"score"`
	PreviousScore *int64    `json:"previousScore,omitempty"`
	AchievedAt    time.Time `json:"achievedAt"`
	TotalPlayers  int       `json:"totalPlayers"`
}

type GameRow struct {
	Rank        int       `json:"rank"`
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Score       int64     `json:"score"`
	AchievedAt  time.Time `json:"achievedAt"`
}

type GlobalRow struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	TotalScore  int64  `json:"totalScore"`
	GamesPlayed int    `json:"gamesPlayed"`
}

type PlayerSummary struct {
	GlobalRow
	TotalPlayers int `json:"totalPlayers"`
}

type Config struct {
	Store       *score.Store
	Games       score.GameCatalog
	Ranks       *rank.Index
	Totals      *aggregate.Aggregator
	Pipeline    *Pipeline
	Players     player.Directory
	Authorizer  Authorizer
	Logger      *zap.SugaredLogger
	ReadTimeout time.Duration
}

type Service struct {
	store       *score.Store
	games       score.GameCatalog
	ranks       *rank.Index
	totals      *aggregate.Aggregator
	pipeline    *Pipeline
	players     player.Directory
	authz       Authorizer
	logger      *zap.SugaredLogger
	readTimeout time.Duration
}

func NewService(cfg Config) *Service {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		store:       cfg.Store,
		games:       cfg.Games,
		ranks:       cfg.Ranks,
		totals:      cfg.Totals,
		pipeline:    cfg.Pipeline,
		players:     cfg.Players,
		authz:       cfg.Authorizer,
		logger:      cfg.Logger,
		readTimeout: timeout,
	}
}

// SubmitScore records score for playerID, defaulting to the caller. The
// response returns once the store write succeeds; the rank is computed against
// the current index without waiting for the asynchronous update.
func (s *Service) SubmitScore(ctx context.Context, caller auth.Caller, gameID, playerID string, value int64) (SubmitResult, error) {
	if caller.PlayerID == "" {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return SubmitResult{}, ErrUnauthenticated
	}
	if playerID == "" {
		playerID = caller.PlayerID
	}
	if !s.authz.Check(ctx, caller, playerID) {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		s.logger.Infow("submission denied", "caller", caller.PlayerID, "player", playerID, "game", gameID)
		return SubmitResult{}, ErrForbidden
	}

	res, err := s.store.Submit(ctx, playerID, gameID, value)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnavailable {
			metrics.Submissions.WithLabelValues("error").Inc()
			s.logger.Errorw("score submission failed", "player", playerID, "game", gameID, "error", err)
		} else {
			metrics.Submissions.WithLabelValues("rejected").Inc()
		}
		return SubmitResult{}, err
	}

	pos, total := s.ranks.Position(res.Entry)
	out := SubmitResult{
		Accepted:     res.Accepted,
		Rank:         pos,
		Score:        res.Entry.Score,
		AchievedAt:   res.Entry.AchievedAt,
		TotalPlayers: total,
	}
	if res.Previous != nil {
		prev := res.Previous.Score
		out.PreviousScore = &prev
	}
	if res.Accepted {
		metrics.Submissions.WithLabelValues("accepted").Inc()
		s.logger.Debugw("score accepted", "player", playerID, "game", gameID, "score", value, "rank", pos)
	} else {
		metrics.Submissions.WithLabelValues("not_improved").Inc()
	}
	return out, nil
}

// GameLeaderboard returns up to limit rows of the game starting at offset.
func (s *Service) GameLeaderboard(ctx context.Context, gameID string, limit, offset int) ([]GameRow, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	if err := s.requireGame(ctx, gameID); err != nil {
		return nil, err
	}

	entries := s.ranks.Top(gameID, offset, clampLimit(limit, DefaultGameLimit))
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}
	profiles := s.lookup(ctx, ids)

	rows := make([]GameRow, len(entries))
	for i, e := range entries {
		p := profiles[e.PlayerID]
		rows[i] = GameRow{
			Rank:        offset + i + 1,
			PlayerID:    e.PlayerID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Score:       e.Score,
			AchievedAt:  e.AchievedAt,
		}
	}
	return rows, nil
}

// UserRank returns the standing of playerID, defaulting to the caller.
func (s *Service) UserRank(ctx context.Context, caller auth.Caller, gameID, playerID string) (rank.Standing, error) {
	if caller.PlayerID == "" {
		return rank.Standing{}, ErrUnauthenticated
	}
	if playerID == "" {
		playerID = caller.PlayerID
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	if err := s.requireGame(ctx, gameID); err != nil {
		return rank.Standing{}, err
	}
	return s.ranks.Rank(gameID, playerID), nil
}

// GlobalLeaderboard returns the players with the highest totals across games.
func (s *Service) GlobalLeaderboard(ctx context.Context, limit int) ([]GlobalRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	totals := s.totals.Top(0, clampLimit(limit, DefaultGlobalLimit))
	ids := make([]string, len(totals))
	for i, t := range totals {
		ids[i] = t.PlayerID
	}
	profiles := s.lookup(ctx, ids)

	rows := make([]GlobalRow, len(totals))
	for i, t := range totals {
		rows[i] = globalRow(i+1, t, profiles[t.PlayerID])
	}
	return rows, nil
}

// Player returns one player's aggregate and global position.
func (s *Service) Player(ctx context.Context, playerID string) (PlayerSummary, error) {
	t, pos, ok := s.totals.Player(playerID)
	if !ok {
		return PlayerSummary{}, ErrUnknownPlayer
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	profiles := s.lookup(ctx, []string{playerID})
	return PlayerSummary{
		GlobalRow:    globalRow(pos, t, profiles[playerID]),
		TotalPlayers: s.totals.Len(),
	}, nil
}

func globalRow(pos int, t aggregate.Total, p player.Profile) GlobalRow {
	return GlobalRow{
		Rank:        pos,
		PlayerID:    t.PlayerID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		TotalScore:  t.TotalScore,
		GamesPlayed: t.GamesPlayed,
	}
}

// Chat publishes a message from the caller to the game room.
func (s *Service) Chat(ctx context.Context, caller auth.Caller, gameID, message string) error {
	if caller.PlayerID == "" {
		return ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	if err := s.requireGame(ctx, gameID); err != nil {
		return err
	}

	profiles := s.lookup(ctx, []string{caller.PlayerID})
	ev, err := fanout.NewChatEvent(gameID, caller.PlayerID, profiles[caller.PlayerID].DisplayName, message, time.Now())
	if err != nil {
		return err
	}
	s.pipeline.Publish(ev)
	return nil
}

// CanJoin reports whether caller may subscribe to room. Game rooms need an
// active game; player rooms are limited to callers allowed to act for that
// player.
func (s *Service) CanJoin(ctx context.Context, caller auth.Caller, room fanout.Room) error {
	if caller.PlayerID == "" {
		return ErrUnauthenticated
	}
	if id, ok := room.IsPlayer(); ok {
		if !s.authz.Check(ctx, caller, id) {
			return ErrForbidden
		}
		return nil
	}
	id, _ := room.IsGame()
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	return s.requireGame(ctx, id)
}

// Reconcile rebuilds the derived indexes from the score store.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.pipeline.Reconcile(ctx, s.store)
}

// Health reports whether the score store is reachable.
func (s *Service) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *Service) requireGame(ctx context.Context, gameID string) error {
	if gameID == "" {
		return score.ErrMissingField
	}
	ok, err := s.games.Exists(ctx, gameID)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "game catalog unavailable", err)
	}
	if !ok {
		return score.ErrUnknownGame
	}
	return nil
}

// lookup enriches rows with profiles. A failing directory degrades to rows
// without display names rather than failing the read.
func (s *Service) lookup(ctx context.Context, ids []string) map[string]player.Profile {
	if len(ids) == 0 {
		return nil
	}
	profiles, err := s.players.Lookup(ctx, player.Unique(ids))
	if err != nil {
		s.logger.Warnw("player lookup failed", "count", len(ids), "error", err)
		return nil
	}
	return profiles
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
