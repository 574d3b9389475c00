package nio

import (
	"sync"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/scheduler"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// Runtime is the scheduler and selector a coroutine was created on. The
// nio dispatch functions need both: the selector to register fd interest,
// the scheduler to record the resulting park (Scheduler.ParkOnFD) so a
// later readiness event or ResumeSyscall can find the coroutine again.
type Runtime struct {
	Sched *scheduler.Scheduler
	Sel   *selector.Selector
}

var runtimes sync.Map // coroutine.ID -> *Runtime

// Attach associates a coroutine with the Runtime it should park against.
// The pool package calls this once, right after creating each worker
// coroutine, so that any nio call made from inside that coroutine's body
// can find its way back to the right Scheduler/Selector pair no matter how
// deep the call stack between the entry function and the nio call is —
// the same problem coroutine.Current solves for "which coroutine", this
// solves for "which scheduler".
func Attach(id coroutine.ID, rt *Runtime) { runtimes.Store(id, rt) }

// Detach removes a coroutine's Runtime association. Called once the
// coroutine reaches Complete or Errored.
func Detach(id coroutine.ID) { runtimes.Delete(id) }

func runtimeFor(id coroutine.ID) (*Runtime, bool) {
	v, ok := runtimes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Runtime), true
}
