package score

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
)

type fakeCatalog struct {
	active map[string]bool
	err    error
}

func (c fakeCatalog) Exists(_ context.Context, gameID string) (bool, error) {
	return c.active[gameID], c.err
}

type recorder struct {
	mu     sync.Mutex
	events []Improved
}

func (r *recorder) Emit(ev Improved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Improved {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Improved(nil), r.events...)
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(repo Repository) (*Store, *recorder, *stepClock) {
	rec := &recorder{}
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	catalog := fakeCatalog{active: map[string]bool{"g1": true, "g2": true}}
	return NewStore(repo, catalog, rec, zap.NewNop().Sugar(), WithClock(clock.now)), rec, clock
}

func TestSubmitCreatesEntry(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())

	res, err := s.Submit(context.Background(), "p1", "g1", 100)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.Entry.Score != 100 || res.Previous != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	events := rec.all()
	if len(events) != 1 || events[0].Previous != nil || events[0].Current.Score != 100 {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Delta() != 100 {
		t.Fatalf("expected delta 100, got %d", events[0].Delta())
	}
}

func TestSubmitNonImprovingIsNoop(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	first, err := s.Submit(ctx, "p1", "g1", 100)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, v := range []int64{90, 100} {
		res, err := s.Submit(ctx, "p1", "g1", v)
		if err != nil {
			t.Fatalf("submit %d: %v", v, err)
		}
		if res.Accepted {
			t.Fatalf("score %d should not be accepted", v)
		}
		if res.Entry != first.Entry {
			t.Fatalf("entry changed: %+v vs %+v", res.Entry, first.Entry)
		}
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
}

func TestSubmitImprovementReplaces(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	if _, err := s.Submit(ctx, "p1", "g1", 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := s.Submit(ctx, "p1", "g1", 120)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.Previous == nil || res.Previous.Score != 100 {
		t.Fatalf("unexpected result %+v", res)
	}
	events := rec.all()
	if len(events) != 2 || events[1].Delta() != 20 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSubmitKeepsFirstTimestampOfMaximum(t *testing.T) {
	s, _, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	var atMax time.Time
	for _, v := range []int64{10, 50, 30, 50, 20, 50} {
		res, err := s.Submit(ctx, "p1", "g1", v)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if res.Accepted && v == 50 {
			atMax = res.Entry.AchievedAt
		}
	}
	e, ok, err := s.Get(ctx, "p1", "g1")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if e.Score != 50 || !e.AchievedAt.Equal(atMax) {
		t.Fatalf("expected score 50 at %v, got %+v", atMax, e)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	tests := []struct {
		name   string
		player string
		game   string
		score  int64
		code   apperr.Code
	}{
		{name: "negative", player: "p1", game: "g1", score: -1, code: apperr.CodeInvalidArgument},
		{name: "missing player", player: "", game: "g1", score: 1, code: apperr.CodeInvalidArgument},
		{name: "unknown game", player: "p1", game: "nope", score: 1, code: apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(ctx, tt.player, tt.game, tt.score)
			if got := apperr.CodeOf(err); got != tt.code {
				t.Fatalf("expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestSubmitCatalogFailureIsUnavailable(t *testing.T) {
	rec := &recorder{}
	s := NewStore(NewMemoryRepository(), fakeCatalog{err: errors.New("timeout")}, rec, zap.NewNop().Sugar())

	_, err := s.Submit(context.Background(), "p1", "g1", 5)
	if !apperr.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

// racingRepo slips a competing write in before the first conditional write.
type racingRepo struct {
	*MemoryRepository
	once sync.Once
}

func (r *racingRepo) Insert(ctx context.Context, e Entry) error {
	r.once.Do(func() {
		competing := e
		competing.Score = 50
		_ = r.MemoryRepository.Insert(ctx, competing)
	})
	return r.MemoryRepository.Insert(ctx, e)
}

func TestSubmitRetriesLostRace(t *testing.T) {
	repo := &racingRepo{MemoryRepository: NewMemoryRepository()}
	s, rec, _ := newTestStore(repo)

	res, err := s.Submit(context.Background(), "p1", "g1", 80)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.Previous == nil || res.Previous.Score != 50 {
		t.Fatalf("expected replace over competing write, got %+v", res)
	}
	if events := rec.all(); len(events) != 1 || events[0].Previous.Score != 50 {
		t.Fatalf("unexpected events %+v", events)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", repo.Len())
	}
}

func TestSubmitRetryLosesToHigherCompetitor(t *testing.T) {
	repo := &racingRepo{MemoryRepository: NewMemoryRepository()}
	s, rec, _ := newTestStore(repo)

	res, err := s.Submit(context.Background(), "p1", "g1", 40)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Accepted || res.Entry.Score != 50 {
		t.Fatalf("expected rejection against competing 50, got %+v", res)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestConcurrentSubmissionsKeepMaximum(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			if _, err := s.Submit(ctx, "p1", "g1", v); err != nil {
				t.Errorf("submit %d: %v", v, err)
			}
		}(int64(i))
	}
	wg.Wait()

	e, ok, _ := s.Get(ctx, "p1", "g1")
	if !ok || e.Score != n {
		t.Fatalf("expected stored score %d, got %+v", n, e)
	}

	events := rec.all()
	for i := 1; i < len(events); i++ {
		if events[i].Current.Score <= events[i-1].Current.Score {
			t.Fatalf("events out of order at %d: %d after %d", i, events[i].Current.Score, events[i-1].Current.Score)
		}
		if events[i].Previous == nil || events[i].Previous.Score != events[i-1].Current.Score {
			t.Fatalf("event %d previous does not chain: %+v", i, events[i])
		}
	}
	if last := events[len(events)-1]; last.Current.Score != n {
		t.Fatalf("last event should carry the maximum, got %d", last.Current.Score)
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	s, rec, _ := newTestStore(NewMemoryRepository())
	ctx := context.Background()

	players := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, p := range players {
		for _, g := range []string{"g1", "g2"} {
			wg.Add(1)
			go func(p, g string) {
				defer wg.Done()
				for v := int64(1); v <= 20; v++ {
					if _, err := s.Submit(ctx, p, g, v); err != nil {
						t.Errorf("submit: %v", err)
					}
				}
			}(p, g)
		}
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != len(players)*2 {
		t.Fatalf("expected %d entries, got %d", len(players)*2, len(snap))
	}
	for _, e := range snap {
		if e.Score != 20 {
			t.Fatalf("expected 20, got %+v", e)
		}
	}
	if n := len(rec.all()); n != len(players)*2*20 {
		t.Fatalf("expected %d events, got %d", len(players)*2*20, n)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{in: "0", want: 0, ok: true},
		{in: "150", want: 150, ok: true},
		{in: "1e3", want: 1000, ok: true},
		{in: "12.0", want: 12, ok: true},
		{in: "-1", ok: false},
		{in: "1.5", ok: false},
		{in: "1e300", ok: false},
		{in: "abc", ok: false},
	}
	for _, tt := range tests {
		got, err := ParseScore(json.Number(tt.in))
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("ParseScore(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ParseScore(%q) should fail, got %d", tt.in, got)
		}
	}
}

func TestMemoryReplaceRequiresPreviousScore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	stored := Entry{PlayerID: "p1", GameID: "g1", Score: 10}
	if err := repo.Insert(ctx, stored); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stale := stored
	stale.Score = 5
	next := Entry{PlayerID: "p1", GameID: "g1", Score: 20}
	if err := repo.Replace(ctx, stale, next); !errors.Is(err, errConflict) {
		t.Fatalf("expected conflict against stale previous, got %v", err)
	}
	if err := repo.Replace(ctx, stored, next); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if e, _, _ := repo.Get(ctx, stored.Key()); e.Score != 20 {
		t.Fatalf("expected 20 after replace, got %+v", e)
	}

	missing := Entry{PlayerID: "p2", GameID: "g1", Score: 1}
	if err := repo.Replace(ctx, missing, missing); !errors.Is(err, errConflict) {
		t.Fatalf("expected conflict for missing entry, got %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("replace must not create entries, got %d", repo.Len())
	}
}

func TestSubmitSeparatorInIDsKeepsEntriesApart(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	catalog := fakeCatalog{active: map[string]bool{"a": true, "a|b": true}}
	s := NewStore(repo, catalog, &recorder{}, zap.NewNop().Sugar())

	if _, err := s.Submit(ctx, "b|c", "a", 500); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := s.Submit(ctx, "c", "a|b", 100)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.Previous != nil {
		t.Fatalf("expected a fresh entry, got %+v", res)
	}
	if res.Entry.PlayerID != "c" || res.Entry.GameID != "a|b" {
		t.Fatalf("entry stored under wrong key: %+v", res.Entry)
	}
	if repo.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", repo.Len())
	}
	if (Key{PlayerID: "b|c", GameID: "a"}).String() == (Key{PlayerID: "c", GameID: "a|b"}).String() {
		t.Fatal("distinct keys encode to the same string")
	}
}

// hangingRepo blocks every read until the context ends.
type hangingRepo struct {
	*MemoryRepository
}

func (r hangingRepo) Get(ctx context.Context, _ Key) (Entry, bool, error) {
	<-ctx.Done()
	return Entry{}, false, ctx.Err()
}

func TestSubmitHungStoreTimesOut(t *testing.T) {
	catalog := fakeCatalog{active: map[string]bool{"g1": true}}
	s := NewStore(hangingRepo{NewMemoryRepository()}, catalog, &recorder{}, zap.NewNop().Sugar(),
		WithWriteTimeout(20*time.Millisecond))

	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		go func() {
			_, err := s.Submit(context.Background(), "p1", "g1", 5)
			done <- err
		}()
		select {
		case err := <-done:
			if !apperr.Retryable(err) {
				t.Fatalf("attempt %d: expected retryable error, got %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d: submit held the key lock past its timeout", i)
		}
	}
}
