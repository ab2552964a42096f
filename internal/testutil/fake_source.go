package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/netguru/repolib/pkg/api"
)

// Method names recorded by FakeSource.
const (
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodDelete = "delete"
	MethodFetch  = "fetch"
)

// Call is one recorded DataSource invocation.
type Call[T any] struct {
	Method string
	Entity T
	Query  api.Query
}

// FakeSource is an in-memory api.DataSource for tests. It records every call
// when its sequence is ranged over, and can be told to fail or to block.
//
// Queries understood: api.AllQuery and api.IDQuery.
type FakeSource[T any] struct {
	mu    sync.Mutex
	id    api.IDFunc[T]
	items []T
	calls []Call[T]

	failures map[string][]error
	gates    map[string]chan struct{}
}

var _ api.DataSource[string] = (*FakeSource[string])(nil)

// NewFakeSource returns a source holding items in order.
func NewFakeSource[T any](id api.IDFunc[T], items ...T) *FakeSource[T] {
	return &FakeSource[T]{
		id:       id,
		items:    slices.Clone(items),
		failures: make(map[string][]error),
		gates:    make(map[string]chan struct{}),
	}
}

// FailNext makes the next call of method fail with err. Calls queue up:
// FailNext twice fails the next two calls.
func (s *FakeSource[T]) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], err)
}

// Gate blocks every call of method until the returned function is called.
func (s *FakeSource[T]) Gate(method string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[method] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, method)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Items returns a copy of the stored entities.
func (s *FakeSource[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Calls returns every recorded call in order.
func (s *FakeSource[T]) Calls() []Call[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Methods returns the recorded method names in order.
func (s *FakeSource[T]) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Method)
	}
	return out
}

// CallCount returns how many times method was run.
func (s *FakeSource[T]) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// begin records the call and returns an injected failure, if any.
func (s *FakeSource[T]) begin(ctx context.Context, c Call[T]) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	gate := s.gates[c.Method]
	var err error
	if q := s.failures[c.Method]; len(q) > 0 {
		err = q[0]
		s.failures[c.Method] = q[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *FakeSource[T]) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(v T) bool { return s.id(v) == id })
}

func (s *FakeSource[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		if err := s.begin(ctx, Call[T]{Method: MethodCreate, Entity: entity}); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		s.mu.Lock()
		if i := s.indexOf(s.id(entity)); i >= 0 {
			s.items[i] = entity
		} else {
			s.items = append(s.items, entity)
		}
		s.mu.Unlock()
		yield(entity, nil)
	}
}

func (s *FakeSource[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := s.begin(ctx, Call[T]{Method: MethodUpdate, Entity: entity}); err != nil {
			yield(zero, err)
			return
		}
		s.mu.Lock()
		i := s.indexOf(s.id(entity))
		if i >= 0 {
			s.items[i] = entity
		}
		s.mu.Unlock()
		if i < 0 {
			yield(zero, fmt.Errorf("update %q: %w", s.id(entity), api.ErrNotFound))
			return
		}
		yield(entity, nil)
	}
}

func (s *FakeSource[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := s.begin(ctx, Call[T]{Method: MethodDelete, Query: q}); err != nil {
			yield(zero, err)
			return
		}
		match, err := s.matcher(q)
		if err != nil {
			yield(zero, err)
			return
		}
		s.mu.Lock()
		var removed, kept []T
		for _, v := range s.items {
			if match(v) {
				removed = append(removed, v)
			} else {
				kept = append(kept, v)
			}
		}
		s.items = kept
		s.mu.Unlock()
		api.FromSlice(removed)(yield)
	}
}

func (s *FakeSource[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := s.begin(ctx, Call[T]{Method: MethodFetch, Query: q}); err != nil {
			yield(zero, err)
			return
		}
		match, err := s.matcher(q)
		if err != nil {
			yield(zero, err)
			return
		}
		s.mu.Lock()
		var out []T
		for _, v := range s.items {
			if match(v) {
				out = append(out, v)
			}
		}
		s.mu.Unlock()
		api.FromSlice(out)(yield)
	}
}

func (s *FakeSource[T]) matcher(q api.Query) (func(T) bool, error) {
	switch q := q.(type) {
	case api.AllQuery:
		return func(T) bool { return true }, nil
	case api.IDQuery:
		return func(v T) bool { return s.id(v) == q.ID }, nil
	default:
		return nil, fmt.Errorf("%w: query %T", api.ErrUnsupportedOperation, q)
	}
}
