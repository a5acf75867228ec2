package memory

import (
	"sort"
	"sync"

	"avatarcast/internal/core/domain"
)

// table is an auto-increment record store. Records are copied on the way in
// and out so callers never share memory with the store.
type table[T any] struct {
	mu     sync.RWMutex
	rows   map[int64]T
	nextID int64
	id     func(*T) *int64
}

func newTable[T any](id func(*T) *int64) *table[T] {
	return &table[T]{rows: make(map[int64]T), id: id}
}

func (t *table[T]) insert(rec *T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(rec)
	if *id == 0 {
		t.nextID++
		*id = t.nextID
	} else if *id > t.nextID {
		t.nextID = *id
	}
	t.rows[*id] = *rec
}

func (t *table[T]) get(id int64) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (t *table[T]) update(id int64, fn func(*T)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&rec)
	t.rows[id] = rec
	return nil
}

// filter returns matching records ordered by id.
func (t *table[T]) filter(match func(*T) bool) []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*T, 0)
	for _, rec := range t.rows {
		if match(&rec) {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *t.id(out[i]) < *t.id(out[j]) })
	return out
}
