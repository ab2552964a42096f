package api

// Sequence is a lazy, possibly empty, possibly failing stream of entities.
//
// Nothing happens until the sequence is ranged over. Each entity is yielded
// as (v, nil). A failure is yielded exactly once as (zero, err) and ends the
// sequence. Breaking out of the range loop stops the producer.
//
//	for v, err := range ds.Fetch(ctx, api.All()) {
//	    if err != nil {
//	        return err
//	    }
//	    use(v)
//	}
type Sequence[T any] func(yield func(T, error) bool)

// Of returns a sequence yielding items in order.
func Of[T any](items ...T) Sequence[T] {
	return FromSlice(items)
}

// FromSlice returns a sequence yielding the elements of items in order.
func FromSlice[T any](items []T) Sequence[T] {
	return func(yield func(T, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Empty returns a sequence that completes without yielding anything.
func Empty[T any]() Sequence[T] {
	return func(func(T, error) bool) {}
}

// Fail returns a sequence that yields err and ends.
func Fail[T any](err error) Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// Defer postpones the construction of a sequence until it is ranged over.
// fn is called once per iteration.
func Defer[T any](fn func() Sequence[T]) Sequence[T] {
	return func(yield func(T, error) bool) {
		seq := fn()
		if seq == nil {
			return
		}
		seq(yield)
	}
}

// Collect materializes seq. On failure it returns the entities received
// before the error together with the error. A nil sequence is empty.
func Collect[T any](seq Sequence[T]) ([]T, error) {
	var out []T
	if seq == nil {
		return out, nil
	}
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Drain consumes seq, discarding entities, and reports how many were seen.
func Drain[T any](seq Sequence[T]) (int, error) {
	if seq == nil {
		return 0, nil
	}
	n := 0
	for _, err := range seq {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
