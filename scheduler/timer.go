package scheduler

import (
	"time"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
)

// Now returns the current deadline clock reading: nanoseconds since the
// Unix epoch, the same unit coroutine.State.Deadline and
// coroutine.SyscallState.Deadline use.
func Now() uint64 { return uint64(time.Now().UnixNano()) }

// timerEntry is a parked coroutine waiting for a deadline to expire,
// carrying the Wake it should receive when that happens. state is non-nil
// when this coroutine is also parked on an fd (e.g. a deadline-bearing
// read or poll): the fd-ready path and the timer-expiry path share it and
// race to claim the wakeup via parkState.resolve, so the loser is a no-op
// instead of a double resume.
type timerEntry struct {
	deadline uint64
	co       *coroutine.Coroutine
	wake     coroutine.Wake
	state    *parkState
}

// timerHeap is a min-heap of timerEntry ordered by deadline, the scheduler
// package's counterpart to joeycumines-go-utilpkg/eventloop's timerHeap
// (loop.go): same four heap.Interface methods, same "soonest deadline
// first" ordering, adapted to carry a *coroutine.Coroutine instead of a
// Task closure.
type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	// spec.md §4.3: identical deadlines resume in insertion order, which a
	// coroutine's monotonically increasing id already tracks for the
	// common case of one timer park per coroutine.
	return h[i].co.ID() < h[j].co.ID()
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
