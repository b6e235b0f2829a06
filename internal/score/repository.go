package score

import (
	"context"
	"errors"

	"github.com/puzpuzpuz/xsync"
)

// errConflict reports that a concurrent writer changed the entry between the
// read and the conditional write.
var errConflict = errors.New("score entry changed concurrently")

// Repository persists entries. Insert and Replace are conditional writes:
// Insert fails with errConflict when the key exists, Replace fails with
// errConflict unless the stored score still equals prev.Score.
type Repository interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Insert(ctx context.Context, e Entry) error
	Replace(ctx context.Context, prev, next Entry) error
	Scan(ctx context.Context, fn func(Entry) error) error
	Ping(ctx context.Context) error
}

// MemoryRepository keeps entries in process memory.
type MemoryRepository struct {
	entries *xsync.MapOf[string, Entry]
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: xsync.NewMapOf[Entry]()}
}

func (r *MemoryRepository) Get(_ context.Context, key Key) (Entry, bool, error) {
	e, ok := r.entries.Load(key.String())
	return e, ok, nil
}

func (r *MemoryRepository) Insert(_ context.Context, e Entry) error {
	if _, loaded := r.entries.LoadOrStore(e.Key().String(), e); loaded {
		return errConflict
	}
	return nil
}

// Replace swaps prev for next when the stored score still equals prev.Score.
// The load and store are not atomic with each other; Store.Submit holds the
// key's stripe lock around every write, which makes the pair a CAS.
func (r *MemoryRepository) Replace(_ context.Context, prev, next Entry) error {
	key := prev.Key().String()
	old, ok := r.entries.Load(key)
	if !ok || old.Score != prev.Score {
		return errConflict
	}
	r.entries.Store(key, next)
	return nil
}

func (r *MemoryRepository) Scan(ctx context.Context, fn func(Entry) error) error {
	var err error
	r.entries.Range(func(_ string, e Entry) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		err = fn(e)
		return err == nil
	})
	return err
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Len returns the number of stored entries.
func (r *MemoryRepository) Len() int {
	return r.entries.Size()
}
