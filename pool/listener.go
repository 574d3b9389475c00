package pool

import "github.com/open-coroutine/opencoroutine-go/coroutine"

// growthListener is the Go counterpart of
// original_source/open-coroutine-core/src/pool/creator.rs's
// CoroutineCreator: registered on the Pool's shared coroutine.ListenerBus,
// it reacts to every worker's suspend/syscall/error events by growing the
// pool, so a thread that just parked always has a chance of a sibling
// worker being ready before the task backlog notices.
//
// It fires on every OnSuspend/OnSyscall of every worker, including a
// worker's own idle-wait — exactly as creator.rs's on_suspend/on_syscall
// do, unconditionally. Pool.grow is what actually bounds growth at max; the
// listener itself makes no attempt to filter "is this park actually worth
// growing for".
type growthListener struct {
	coroutine.BaseListener
	pool *Pool
}

func (g *growthListener) OnSuspend(_ uint64, _ coroutine.ID) {
	g.pool.grow()
}

func (g *growthListener) OnSyscall(_ uint64, _ coroutine.ID, _ coroutine.Syscall, _ coroutine.SyscallState) {
	g.pool.grow()
}

// OnError mirrors creator.rs's exact order: decrement running before
// growing, so the dead worker is not double-counted against max.
func (g *growthListener) OnError(id coroutine.ID, _ string) {
	g.pool.retireAfterError(id)
	g.pool.grow()
}
