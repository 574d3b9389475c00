package coroutine

// TypedYielder wraps Yielder with compile-time-checked payload types, the
// way the teacher package's exampleiterator wraps coro.NewIterator: a thin,
// generic façade over an untyped primitive.
type TypedYielder[Y any] struct {
	raw Yielder
}

// Suspend is the typed equivalent of Yielder.Suspend.
func (y TypedYielder[Y]) Suspend(val Y, deadline uint64) Wake {
	return y.raw.Suspend(val, deadline)
}

// ID returns the identity of the underlying coroutine.
func (y TypedYielder[Y]) ID() ID { return y.raw.ID() }

// NewTyped builds a Coroutine whose entry function uses a typed yield
// value and return value, matching spec §3's CoroutineState<Y, R> as seen
// by library consumers who don't need to touch the scheduler/nio
// machinery directly. Internally it is exactly the Coroutine defined in
// coroutine.go; R and Y only exist at this call boundary.
func NewTyped[Y, R any](entry func(first Wake, y TypedYielder[Y]) R, bus *ListenerBus) *Coroutine {
	return New(func(first Wake, y Yielder) any {
		return entry(first, TypedYielder[Y]{raw: y})
	}, bus)
}
