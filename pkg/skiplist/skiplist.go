// Package skiplist implements an indexable skip list: an ordered set that
// answers "how many elements sort before v" and "element at position i" in
// O(log n) expected time.
package skiplist

import "math/rand/v2"

const (
	maxLevel    = 32
	probability = 0.25
)

type link[T any] struct {
	node *node[T]
	span int
}

type node[T any] struct {
	value T
	next  []link[T]
}

// List is an ordered set of unique values. The zero value is not usable; use New.
// List is not safe for concurrent use.
type List[T any] struct {
	head   *node[T]
	level  int
	length int
	less   func(a, b T) bool
}

// New returns an empty list ordered by less. Two values a and b are the same
// element when neither less(a, b) nor less(b, a).
func New[T any](less func(a, b T) bool) *List[T] {
	return &List[T]{
		head:  &node[T]{next: make([]link[T], maxLevel)},
		level: 1,
		less:  less,
	}
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.length }

func randomLevel() int {
	lvl := 1
	for lvl < maxLevel && rand.Float64() < probability {
		lvl++
	}
	return lvl
}

// Insert adds v. Inserting a value equal to an existing element adds a
// duplicate; callers keep values unique.
func (l *List[T]) Insert(v T) {
	var update [maxLevel]*node[T]
	var rank [maxLevel]int

	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		if i < l.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i].node != nil && l.less(x.next[i].node.value, v) {
			rank[i] += x.next[i].span
			x = x.next[i].node
		}
		update[i] = x
	}

	lvl := randomLevel()
	if lvl > l.level {
		for i := l.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = l.head
			update[i].next[i].span = l.length
		}
		l.level = lvl
	}

	n := &node[T]{value: v, next: make([]link[T], lvl)}
	for i := 0; i < lvl; i++ {
		n.next[i].node = update[i].next[i].node
		update[i].next[i].node = n
		n.next[i].span = update[i].next[i].span - (rank[0] - rank[i])
		update[i].next[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < l.level; i++ {
		update[i].next[i].span++
	}
	l.length++
}

// Delete removes the element equal to v and reports whether it was present.
func (l *List[T]) Delete(v T) bool {
	var update [maxLevel]*node[T]

	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && l.less(x.next[i].node.value, v) {
			x = x.next[i].node
		}
		update[i] = x
	}

	x = x.next[0].node
	if x == nil || l.less(v, x.value) {
		return false
	}

	for i := 0; i < l.level; i++ {
		if update[i].next[i].node == x {
			update[i].next[i].span += x.next[i].span - 1
			update[i].next[i].node = x.next[i].node
		} else {
			update[i].next[i].span--
		}
	}
	for l.level > 1 && l.head.next[l.level-1].node == nil {
		l.level--
	}
	l.length--
	return true
}

// CountLess returns the number of elements ordered strictly before v.
func (l *List[T]) CountLess(v T) int {
	n := 0
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && l.less(x.next[i].node.value, v) {
			n += x.next[i].span
			x = x.next[i].node
		}
	}
	return n
}

func (l *List[T]) nodeAt(idx int) *node[T] {
	if idx < 0 || idx >= l.length {
		return nil
	}
	target := idx + 1
	traversed := 0
	x := l.head
	for i := l.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && traversed+x.next[i].span <= target {
			traversed += x.next[i].span
			x = x.next[i].node
		}
		if traversed == target {
			return x
		}
	}
	return nil
}

// At returns the element at 0-based position idx.
func (l *List[T]) At(idx int) (T, bool) {
	n := l.nodeAt(idx)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Range returns up to limit elements starting at position offset.
func (l *List[T]) Range(offset, limit int) []T {
	if limit <= 0 {
		return nil
	}
	n := l.nodeAt(offset)
	if n == nil {
		return nil
	}
	out := make([]T, 0, min(limit, l.length-offset))
	for ; n != nil && len(out) < limit; n = n.next[0].node {
		out = append(out, n.value)
	}
	return out
}
