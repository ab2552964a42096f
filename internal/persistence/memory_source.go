package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/netguru/repolib/pkg/api"
)

type memoryEntry struct {
	id   string
	data []byte
}

// InMemorySource is a DataSource kept in process memory. Entities are
// stored encoded, so callers never share state with the store.
type InMemorySource[T any] struct {
	mu      sync.RWMutex
	id      api.IDFunc[T]
	entries []memoryEntry
}

// NewInMemorySource creates an empty source.
func NewInMemorySource[T any](id api.IDFunc[T]) *InMemorySource[T] {
	return &InMemorySource[T]{id: id}
}

// Ensure InMemorySource implements DataSource.
var _ api.DataSource[map[string]any] = (*InMemorySource[map[string]any])(nil)

func (s *InMemorySource[T]) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e memoryEntry) bool { return e.id == id })
}

func (s *InMemorySource[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)

		s.mu.Lock()
		if i := s.indexOf(id); i >= 0 {
			s.entries[i].data = data
		} else {
			s.entries = append(s.entries, memoryEntry{id: id, data: data})
		}
		s.mu.Unlock()

		yield(entity, nil)
	}
}

func (s *InMemorySource[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		data, err := encodeEntity(entity)
		if err != nil {
			yield(zero, err)
			return
		}
		id := s.id(entity)

		s.mu.Lock()
		i := s.indexOf(id)
		if i >= 0 {
			s.entries[i].data = data
		}
		s.mu.Unlock()

		if i < 0 {
			yield(zero, notFound(id))
			return
		}
		yield(entity, nil)
	}
}

func (s *InMemorySource[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		match, err := docMatcher(q)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}

		s.mu.Lock()
		var removed []memoryEntry
		s.entries = slices.DeleteFunc(s.entries, func(e memoryEntry) bool {
			if match(e.id, e.data) {
				removed = append(removed, e)
				return true
			}
			return false
		})
		s.mu.Unlock()

		emitEntries[T](removed, yield)
	}
}

func (s *InMemorySource[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		match, err := docMatcher(q)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}

		s.mu.RLock()
		var found []memoryEntry
		for _, e := range s.entries {
			if match(e.id, e.data) {
				found = append(found, e)
			}
		}
		s.mu.RUnlock()

		emitEntries[T](found, yield)
	}
}

func emitEntries[T any](entries []memoryEntry, yield func(T, error) bool) {
	for _, e := range entries {
		v, err := decodeEntity[T](e.data)
		if err != nil {
			yield(v, err)
			return
		}
		if !yield(v, nil) {
			return
		}
	}
}
