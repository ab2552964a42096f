package retryqueue

import (
	"context"
	"slices"
	"sync"

	"github.com/netguru/repolib/pkg/api"
)

// InMemoryQueue keeps requests in process memory. Its content is lost when
// the process exits.
type InMemoryQueue[T any] struct {
	mu    sync.Mutex
	key   KeyFunc[T]
	items []api.Request[T]
	index map[string]struct{}
}

// NewInMemoryQueue creates an empty queue. A nil key selects KeyByContent.
func NewInMemoryQueue[T any](key KeyFunc[T]) *InMemoryQueue[T] {
	return &InMemoryQueue[T]{
		key:   keyFuncOrDefault(key),
		index: make(map[string]struct{}),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue[string] = (*InMemoryQueue[string])(nil)

func (q *InMemoryQueue[T]) Key(r api.Request[T]) string { return q.key(r) }

func (q *InMemoryQueue[T]) Add(ctx context.Context, r api.Request[T]) (bool, error) {
	if err := checkQueueable(r); err != nil {
		return false, err
	}
	k := q.key(r)

	q.mu.Lock()
	defer q.mu.Unlock()
	_, queued := q.index[k]
	if queued {
		q.items = slices.DeleteFunc(q.items, func(it api.Request[T]) bool { return q.key(it) == k })
	}
	q.index[k] = struct{}{}
	q.items = append(q.items, r)
	return !queued, nil
}

func (q *InMemoryQueue[T]) Remove(ctx context.Context, r api.Request[T]) error {
	k := q.key(r)

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[k]; !ok {
		return nil
	}
	delete(q.index, k)
	q.items = slices.DeleteFunc(q.items, func(it api.Request[T]) bool { return q.key(it) == k })
	return nil
}

func (q *InMemoryQueue[T]) List(ctx context.Context) ([]api.Request[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items), nil
}

func (q *InMemoryQueue[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	return n == 0, err
}

func (q *InMemoryQueue[T]) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
