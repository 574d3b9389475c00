package pool

import (
	"fmt"
	"sync"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
)

// TaskID identifies a submitted Task, per spec.md §4.6's submit(task) →
// TaskId.
type TaskID uint64

// Task is a unit of work a worker coroutine runs. It may itself call nio
// functions or park on another Pool's TryGetResult: it runs on its own
// worker coroutine, so anything that coroutine can do, a Task can do.
type Task func() any

// taskEnvelope is what Submit hands to a worker via Scheduler.ResumeSyscall:
// either real work, or a poison value telling the worker's loop to exit
// (how the idle-shrink monitor retires a worker past its keep-alive).
type taskEnvelope struct {
	id     TaskID
	task   Task
	poison bool
}

// waitResult is what a result-waiter (TryGetResult, parked because the
// result wasn't ready yet) is resumed with once deliverResult runs.
type waitResult struct {
	val any
	err error
}

// resultBox holds one task's outcome plus whoever is waiting on it: either
// a plain channel (an external, non-coroutine caller) or a parked
// coroutine.ID (TryGetResult called from inside a coroutine, which must
// yield rather than block its goroutine — see doc.go).
type resultBox struct {
	mu   sync.Mutex
	done bool
	val  any
	err  error

	ch        chan struct{}
	waiter    coroutine.ID
	hasWaiter bool
}

func runTask(task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: task panicked: %v", r)
		}
	}()
	result = task()
	return
}
