// Package score holds the authoritative best score per (player, game).
package score

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
)

const (
	lockStripes = 256
	maxAttempts = 8

	// DefaultWriteTimeout bounds one submission's store round trips.
	DefaultWriteTimeout = 5 * time.Second
)

// GameCatalog reports whether a game exists and is active.
type GameCatalog interface {
	Exists(ctx context.Context, gameID string) (bool, error)
}

// Emitter receives Improved events. Emit is called while the entry's key is
// locked, so events for one key arrive in write order. It must not block.
type Emitter interface {
	Emit(Improved)
}

// Result is the outcome of a submission. Accepted is false when the score did
// not beat the stored best; Entry is then the unchanged stored entry.
type Result struct {
	Accepted bool
	Entry    Entry
	Previous *Entry
}

type Store struct {
	repo    Repository
	games   GameCatalog
	emitter Emitter
	logger  *zap.SugaredLogger
	now     func() time.Time
	timeout time.Duration
	locks   [lockStripes]sync.Mutex
}

type Option func(*Store)

// WithClock overrides the time source used for AchievedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWriteTimeout bounds how long a submission may hold its key lock.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewStore(repo Repository, games GameCatalog, emitter Emitter, logger *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		games:   games,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
		timeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lockFor(key Key) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key.String())%lockStripes]
}

// Submit records score for the player if it beats the stored best.
func (s *Store) Submit(ctx context.Context, playerID, gameID string, score int64) (Result, error) {
	if playerID == "" || gameID == "" {
		return Result{}, ErrMissingField
	}
	if score < 0 {
		return Result{}, ErrInvalidScore
	}

	active, err := s.games.Exists(ctx, gameID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeUnavailable, "game catalog unavailable", err)
	}
	if !active {
		return Result{}, ErrUnknownGame
	}

	// Once authorized and validated the write runs to completion even if the
	// caller goes away, but a hung store must not pin the stripe lock.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	key := Key{PlayerID: playerID, GameID: gameID}
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cur, found, err := s.repo.Get(ctx, key)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeUnavailable, "score store unavailable", err)
		}
		if found && score <= cur.Score {
			return Result{Accepted: false, Entry: cur}, nil
		}

		next := Entry{
			PlayerID:   playerID,
			GameID:     gameID,
			Score:      score,
			AchievedAt: s.now().UTC().Truncate(time.Microsecond),
		}
		if found {
			err = s.repo.Replace(ctx, cur, next)
		} else {
			err = s.repo.Insert(ctx, next)
		}
		if errors.Is(err, errConflict) {
			s.logger.Debugw("score write lost race, retrying", "key", key.String(), "attempt", attempt)
			continue
		}
		if err != nil {
			return Result{}, apperr.Wrap(apperr.CodeUnavailable, "score store unavailable", err)
		}

		ev := Improved{Current: next}
		if found {
			prev := cur
			ev.Previous = &prev
		}
		s.emitter.Emit(ev)
		return Result{Accepted: true, Entry: next, Previous: ev.Previous}, nil
	}

	s.logger.Warnw("score write exhausted retries", "key", key.String())
	return Result{}, apperr.New(apperr.CodeUnavailable, "score store busy, retry the submission")
}

// Get returns the stored entry for the pair.
func (s *Store) Get(ctx context.Context, playerID, gameID string) (Entry, bool, error) {
	e, ok, err := s.repo.Get(ctx, Key{PlayerID: playerID, GameID: gameID})
	if err != nil {
		return Entry{}, false, apperr.Wrap(apperr.CodeUnavailable, "score store unavailable", err)
	}
	return e, ok, nil
}

// Snapshot returns every stored entry.
func (s *Store) Snapshot(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := s.repo.Scan(ctx, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnavailable, "score store unavailable", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
