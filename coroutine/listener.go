package coroutine

import "log"

// Listener observes Coroutine lifecycle transitions, per spec §4.2. All
// methods are invoked synchronously, on the resuming (scheduler) goroutine,
// immediately after the corresponding state transition is committed.
//
// Implementations should not block on anything the same scheduler owns:
// doing so would deadlock the single-threaded cooperative model described
// in spec §5.
type Listener interface {
	// OnStateChanged fires for every transition, including the ones the
	// more specific hooks below also cover.
	OnStateChanged(prev, next Kind, id ID)
	OnSuspend(deadline uint64, id ID)
	OnSyscall(deadline uint64, id ID, which Syscall, sub SyscallState)
	OnComplete(id ID, result any)
	OnError(id ID, msg string)
}

// ListenerBus fans a Coroutine's transitions out to every registered
// Listener, in registration order. This is the Go counterpart of the Rust
// source's Listener trait plus its CoroutineCreator-style implementations
// (original_source/open-coroutine-core/src/pool/creator.rs): a listener is
// just something with On* hooks, registered on a bus shared by every
// coroutine a Scheduler creates.
type ListenerBus struct {
	listeners []Listener
}

// NewListenerBus creates a bus with the given listeners, in the order they
// will be notified.
func NewListenerBus(listeners ...Listener) *ListenerBus {
	return &ListenerBus{listeners: listeners}
}

// Register appends a listener to the bus. Not safe to call concurrently
// with a coroutine transition; intended for setup time.
func (b *ListenerBus) Register(l Listener) {
	b.listeners = append(b.listeners, l)
}

// dispatch invokes fn for every listener, recovering and logging any panic
// so that one misbehaving observer cannot abort the scheduler (spec §4.2,
// §7: "Listener panics are swallowed").
func (b *ListenerBus) dispatch(fn func(Listener)) {
	if b == nil {
		return
	}
	for _, l := range b.listeners {
		b.safeCall(l, fn)
	}
}

func (b *ListenerBus) safeCall(l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("coroutine: listener panic recovered: %v", r)
		}
	}()
	fn(l)
}

func (b *ListenerBus) stateChanged(prev, next Kind, id ID) {
	b.dispatch(func(l Listener) { l.OnStateChanged(prev, next, id) })
}

func (b *ListenerBus) suspended(deadline uint64, id ID) {
	b.dispatch(func(l Listener) { l.OnSuspend(deadline, id) })
}

func (b *ListenerBus) syscalled(deadline uint64, id ID, which Syscall, sub SyscallState) {
	b.dispatch(func(l Listener) { l.OnSyscall(deadline, id, which, sub) })
}

func (b *ListenerBus) completed(id ID, result any) {
	b.dispatch(func(l Listener) { l.OnComplete(id, result) })
}

func (b *ListenerBus) errored(id ID, msg string) {
	b.dispatch(func(l Listener) { l.OnError(id, msg) })
}

// BaseListener implements Listener with no-op methods, so observers only
// need to override the hooks they care about. Mirrors the "Unimplemented*"
// pattern used across the pack (e.g. logiface.UnimplementedEvent) for
// interfaces that grow optional methods over time.
type BaseListener struct{}

func (BaseListener) OnStateChanged(prev, next Kind, id ID)                  {}
func (BaseListener) OnSuspend(deadline uint64, id ID)                       {}
func (BaseListener) OnSyscall(uint64, ID, Syscall, SyscallState)            {}
func (BaseListener) OnComplete(id ID, result any)                          {}
func (BaseListener) OnError(id ID, msg string)                             {}
