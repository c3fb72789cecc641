package reactive

import (
	"iter"
	"slices"
	"sync"
)

// table is the replica side of a Table. Mutations come from the single
// applier goroutine; reads may run concurrently with them.
type table[R any] struct {
	name    TableName
	id      func(R) uint64
	setID   func(*R, uint64)
	indexes map[Index]func(R) (string, bool)

	mu     sync.RWMutex
	order  []uint64 // ascending
	rows   map[uint64]R
	lookup map[Index]map[string]uint64
	next   uint64
}

func newTable[R any](name TableName, id func(R) uint64, setID func(*R, uint64), indexes map[Index]func(R) (string, bool)) *table[R] {
	t := &table[R]{
		name:    name,
		id:      id,
		setID:   setID,
		indexes: indexes,
		rows:    make(map[uint64]R),
		lookup:  make(map[Index]map[string]uint64, len(indexes)),
		next:    1,
	}
	for idx := range indexes {
		t.lookup[idx] = make(map[string]uint64)
	}
	return t
}

func (t *table[R]) snapshot() []R {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]R, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

func (t *table[R]) Iter() iter.Seq[R] {
	return func(yield func(R) bool) {
		for _, r := range t.snapshot() {
			if !yield(r) {
				return
			}
		}
	}
}

func (t *table[R]) Find(index Index, key string) (R, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero R
	keys, ok := t.lookup[index]
	if !ok {
		return zero, false
	}
	id, ok := keys[key]
	if !ok {
		return zero, false
	}
	return t.rows[id], true
}

func (t *table[R]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *table[R]) get(id uint64) (R, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

// owner returns the id holding key in index, or 0.
func (t *table[R]) owner(index Index, key string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookup[index][key]
}

// sequence returns the id the next insert will receive.
func (t *table[R]) sequence() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next
}

func (t *table[R]) setSequence(next uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = max(t.next, next)
}

func (t *table[R]) index(r R) {
	id := t.id(r)
	for idx, key := range t.indexes {
		if k, ok := key(r); ok {
			t.lookup[idx][k] = id
		}
	}
}

func (t *table[R]) unindex(r R) {
	id := t.id(r)
	for idx, key := range t.indexes {
		if k, ok := key(r); ok && t.lookup[idx][k] == id {
			delete(t.lookup[idx], k)
		}
	}
}

// insert assigns the next internal id to r and stores it.
func (t *table[R]) insert(r R) R {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setID(&r, t.next)
	t.next++
	t.rows[t.id(r)] = r
	t.order = append(t.order, t.id(r))
	t.index(r)
	return r
}

// restore stores r under the id it already carries.
func (t *table[R]) restore(r R) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.id(r)
	if old, ok := t.rows[id]; ok {
		t.unindex(old)
	} else {
		pos, _ := slices.BinarySearch(t.order, id)
		t.order = slices.Insert(t.order, pos, id)
	}
	t.rows[id] = r
	t.index(r)
	t.next = max(t.next, id+1)
}

// put replaces an existing row. It reports false when the id is unknown.
func (t *table[R]) put(r R) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.rows[t.id(r)]
	if !ok {
		return false
	}
	t.unindex(old)
	t.rows[t.id(r)] = r
	t.index(r)
	return true
}

func (t *table[R]) remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.rows[id]
	if !ok {
		return false
	}
	t.unindex(old)
	delete(t.rows, id)
	if pos, found := slices.BinarySearch(t.order, id); found {
		t.order = slices.Delete(t.order, pos, pos+1)
	}
	return true
}
