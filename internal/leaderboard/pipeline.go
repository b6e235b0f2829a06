package leaderboard

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/aggregate"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/metrics"
	"github.com/krishanu7/leaderboard-backend/internal/rank"
	"github.com/krishanu7/leaderboard-backend/internal/score"
)

const defaultPublishTimeout = 2 * time.Second

// Snapshotter lists every stored entry.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]score.Entry, error)
}

type item struct {
	ev      score.Improved
	barrier chan struct{}
}

// shard is an unbounded FIFO drained by one worker.
type shard struct {
	mu    sync.Mutex
	queue []item
	wake  chan struct{}
}

func (s *shard) push(it item) {
	s.mu.Lock()
	s.queue = append(s.queue, it)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *shard) drain() []item {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

type fanoutJob struct {
	ev      fanout.Event
	barrier chan struct{}
}

// Pipeline applies score improvements to the rank index and the aggregator
// and hands the resulting events to the publisher. Events of one key land on
// one shard and are applied in emission order.
type Pipeline struct {
	ranks   *rank.Index
	totals  *aggregate.Aggregator
	pub     fanout.Publisher
	logger  *zap.SugaredLogger
	timeout time.Duration

	shards []*shard
	jobs   chan fanoutJob

	// gate is held for writing while a reconciliation rebuilds the indexes.
	gate sync.RWMutex
}

type PipelineConfig struct {
	Ranks          *rank.Index
	Totals         *aggregate.Aggregator
	Publisher      fanout.Publisher
	Logger         *zap.SugaredLogger
	Shards         int
	FanoutBuffer   int
	PublishTimeout time.Duration
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	n := cfg.Shards
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	buf := cfg.FanoutBuffer
	if buf <= 0 {
		buf = 1024
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	p := &Pipeline{
		ranks:   cfg.Ranks,
		totals:  cfg.Totals,
		pub:     cfg.Publisher,
		logger:  cfg.Logger,
		timeout: timeout,
		shards:  make([]*shard, n),
		jobs:    make(chan fanoutJob, buf),
	}
	for i := range p.shards {
		p.shards[i] = &shard{wake: make(chan struct{}, 1)}
	}
	return p
}

// Emit queues an improvement. It never blocks.
func (p *Pipeline) Emit(ev score.Improved) {
	h := xxhash.Sum64String(ev.Current.Key().String())
	p.shards[h%uint64(len(p.shards))].push(item{ev: ev})
	metrics.PipelineDepth.Inc()
}

// Publish queues ev for the publisher, dropping it when the queue is full.
func (p *Pipeline) Publish(ev fanout.Event) {
	select {
	case p.jobs <- fanoutJob{ev: ev}:
	default:
		metrics.FanoutDropped.WithLabelValues("queue_full").Inc()
		p.logger.Warnw("fanout queue full, event dropped", "room", ev.Room, "type", ev.Type)
	}
}

// Run drives the shard workers and the fanout worker until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, s := range p.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			p.runShard(ctx, s)
		}(s)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runFanout(ctx)
	}()
	p.logger.Infow("event pipeline started", "shards", len(p.shards), "fanout_buffer", cap(p.jobs))
	wg.Wait()
	return nil
}

func (p *Pipeline) runShard(ctx context.Context, s *shard) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for batch := s.drain(); len(batch) > 0; batch = s.drain() {
			for _, it := range batch {
				if it.barrier != nil {
					close(it.barrier)
					continue
				}
				p.apply(it.ev)
			}
		}
	}
}

func (p *Pipeline) apply(ev score.Improved) {
	p.gate.RLock()
	p.ranks.Apply(ev)
	p.totals.Apply(ev)
	p.gate.RUnlock()
	metrics.PipelineDepth.Dec()

	cur := ev.Current
	updated, err := fanout.NewEvent(fanout.GameRoom(cur.GameID), fanout.TypeScoreUpdated, fanout.ScoreUpdated{
		PlayerID:  cur.PlayerID,
		GameID:    cur.GameID,
		Score:     cur.Score,
		Timestamp: cur.AchievedAt,
	})
	if err != nil {
		p.logger.Errorw("failed to build score event", "error", err)
		return
	}
	p.Publish(updated)

	best := fanout.PersonalBest{GameID: cur.GameID, Score: cur.Score, Timestamp: cur.AchievedAt}
	if ev.Previous != nil {
		prev := ev.Previous.Score
		best.PreviousScore = &prev
	}
	note, err := fanout.NewEvent(fanout.PlayerRoom(cur.PlayerID), fanout.TypePersonalBest, best)
	if err != nil {
		p.logger.Errorw("failed to build personal best event", "error", err)
		return
	}
	p.Publish(note)
}

func (p *Pipeline) runFanout(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			if job.barrier != nil {
				close(job.barrier)
				continue
			}
			p.deliver(ctx, job.ev)
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, ev fanout.Event) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pub.Publish(ctx, ev); err != nil {
		metrics.FanoutDropped.WithLabelValues("publish_failed").Inc()
		p.logger.Warnw("fanout publish failed", "room", ev.Room, "type", ev.Type, "error", err)
	}
}

// Sync returns once every event emitted before the call has been applied and
// handed to the publisher.
func (p *Pipeline) Sync(ctx context.Context) error {
	for _, s := range p.shards {
		done := make(chan struct{})
		s.push(item{barrier: done})
		if err := wait(ctx, done); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	select {
	case p.jobs <- fanoutJob{barrier: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return wait(ctx, done)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconcile rebuilds the rank index and the aggregator from the store's
// current contents. Shard workers are paused for the duration; events queued
// meanwhile are applied afterwards and skipped when already reflected.
func (p *Pipeline) Reconcile(ctx context.Context, src Snapshotter) error {
	p.gate.Lock()
	defer p.gate.Unlock()

	start := time.Now()
	entries, err := src.Snapshot(ctx)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return err
	}
	p.ranks.Rebuild(entries)
	p.totals.Rebuild(entries)
	metrics.Reconciliations.WithLabelValues("ok").Inc()
	p.logger.Infow("indexes rebuilt from score store", "entries", len(entries), "took", time.Since(start))
	return nil
}
