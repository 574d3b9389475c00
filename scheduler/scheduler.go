package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// ErrUnknownCoroutine is returned by ResumeSyscall when no coroutine is
// parked under the given id.
var ErrUnknownCoroutine = errors.New("scheduler: no coroutine parked under that id")

// readyItem is a coroutine sitting in the FIFO ready queue along with the
// Wake it should be resumed with.
type readyItem struct {
	co   *coroutine.Coroutine
	wake coroutine.Wake
}

// parkState is shared between a coroutine's fd-parked entry and its timer
// entry when both exist for the same park (an fd wait under a deadline,
// e.g. nio's Poll or a deadline-bearing read). Whichever side fires first
// claims it via the CAS in resolve; the loser is dropped instead of
// resuming the coroutine a second time. onTimeout, when non-nil, lets the
// timer side undo whatever fd registration the fd side made (spec.md §5's
// "on deadline expiry ... the scheduler removes the fd registration").
type parkState struct {
	claimed   int32
	onTimeout func()
}

func (p *parkState) resolve() bool {
	if p == nil {
		return true
	}
	return atomic.CompareAndSwapInt32(&p.claimed, 0, 1)
}

// fdPark is a coroutine parked in the fd-waiting table, alongside the
// parkState its possible sibling timer entry (if any) shares.
type fdPark struct {
	co    *coroutine.Coroutine
	state *parkState
}

// Scheduler is a single cooperative run loop: Submit enqueues new work,
// TrySchedule/TryTimedSchedule drive at most one ready coroutine forward
// per call (expiring timers and draining the selector along the way), and
// ResumeSyscall lets the nio package hand a completed syscall's result back
// in from outside the loop.
//
// A Scheduler is meant to be driven by one goroutine calling TrySchedule or
// TryTimedSchedule in a loop; Submit and ResumeSyscall are safe to call from any goroutine, so an
// external producer (or a completion callback running on a different OS
// thread) can feed it work.
type Scheduler struct {
	sel *selector.Selector

	mu       sync.Mutex
	ready    []readyItem
	timers   timerHeap
	fdWaitng map[coroutine.ID]fdPark
}

// New constructs a Scheduler. sel may be nil for a scheduler that only ever
// runs CPU-bound or timer-parked coroutines (no fd interception).
func New(sel *selector.Selector) *Scheduler {
	return &Scheduler{
		sel:      sel,
		timers:   make(timerHeap, 0),
		fdWaitng: make(map[coroutine.ID]fdPark),
	}
}

// Submit enqueues a freshly created coroutine to run, per spec's submit
// operation. first is delivered as the Wake its entry function receives.
func (s *Scheduler) Submit(co *coroutine.Coroutine, first coroutine.Wake) {
	s.mu.Lock()
	s.ready = append(s.ready, readyItem{co: co, wake: first})
	s.mu.Unlock()
}

// ParkOnFD records that co is now waiting on an fd registered with the
// Scheduler's selector under token co.ID(). The nio package calls this
// from inside the coroutine's own goroutine, immediately before yielding,
// so the registration is visible to the next scheduling step before the
// coroutine actually blocks.
func (s *Scheduler) ParkOnFD(co *coroutine.Coroutine) {
	s.ParkOnFDWithTimeout(co, nil)
}

// ParkOnFDWithTimeout is ParkOnFD plus an onTimeout callback invoked if a
// deadline later registered for the same park (via route, once the
// coroutine's SystemCall state carries one) expires before the fd ever
// becomes ready. nio calls this instead of ParkOnFD for deadline-bearing
// waits so the fd registration gets torn down on timeout instead of
// leaking, per spec.md §5's cancellation/timeout policy.
func (s *Scheduler) ParkOnFDWithTimeout(co *coroutine.Coroutine, onTimeout func()) {
	s.mu.Lock()
	s.fdWaitng[co.ID()] = fdPark{co: co, state: &parkState{onTimeout: onTimeout}}
	s.mu.Unlock()
}

// Park registers co as externally resumable via ResumeSyscall, the same
// way ParkOnFD does, for callers that have no fd involved at all. The pool
// package calls this before parking an idle worker or a coroutine waiting
// on another task's result, so that ResumeSyscall can later deliver a task
// or a result the same way an fd readiness event delivers one.
func (s *Scheduler) Park(co *coroutine.Coroutine) {
	s.ParkOnFD(co)
}

// ResumeSyscall hands a syscall's result back to the coroutine parked
// under id (spec's resume_syscall operation): it is moved from the
// fd-parked table to the back of the ready queue, to be resumed with a
// Wake carrying result on a future scheduling step. Returns ErrUnknownCoroutine if no
// coroutine is parked under id (it may have already been resumed by a
// timer expiry or a different readiness event).
func (s *Scheduler) ResumeSyscall(id coroutine.ID, result any) error {
	s.mu.Lock()
	fp, ok := s.fdWaitng[id]
	if ok {
		delete(s.fdWaitng, id)
		if !fp.state.resolve() {
			ok = false
		} else {
			s.ready = append(s.ready, readyItem{co: fp.co, wake: coroutine.Wake{Result: result}})
		}
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownCoroutine
	}
	return nil
}

// TrySchedule runs one non-blocking step: if nothing is immediately ready
// (no expired timer, no ready coroutine, no already-fired fd event), it
// returns (false, nil) rather than waiting.
func (s *Scheduler) TrySchedule() (bool, error) { return s.step(0) }

// TryTimedSchedule runs one step, blocking on the selector for up to
// maxWait (or indefinitely, if maxWait < 0), cut short at the earliest
// pending timer's deadline, when nothing is immediately ready. It waits
// even if no timer or fd interest is outstanding. A Scheduler built with a
// nil selector never blocks here.
func (s *Scheduler) TryTimedSchedule(maxWait time.Duration) (bool, error) {
	return s.step(maxWait)
}

// step is the algorithm behind TrySchedule/TryTimedSchedule: expire due
// timers, drain one batch of selector readiness, pop the ready queue's
// head, resume it, and route the resulting state.
func (s *Scheduler) step(maxWait time.Duration) (bool, error) {
	s.expireTimers()

	if err := s.drainSelector(maxWait); err != nil {
		return false, err
	}

	s.mu.Lock()
	if len(s.ready) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	item := s.ready[0]
	s.ready = s.ready[1:]
	s.mu.Unlock()

	st, err := item.co.ResumeWith(item.wake)
	if err != nil {
		return false, err
	}
	s.route(item.co, st)
	return true, nil
}

// expireTimers moves every timer whose deadline has passed to the back of
// the ready queue, woken with TimedOut: true. A timer sharing a parkState
// with an fd registration that already fired (state.resolve returns
// false) is dropped instead: the fd path already resumed the coroutine,
// and pushing it again would resume an already-running or terminal
// coroutine. When the timer wins the race first, it tears down the
// sibling fd registration via state.onTimeout and removes the fd-parked
// entry, per spec.md §5.
func (s *Scheduler) expireTimers() {
	now := Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.timers) > 0 && s.timers[0].deadline <= now {
		e := heap.Pop(&s.timers).(timerEntry)
		if e.state != nil {
			if !e.state.resolve() {
				continue
			}
			delete(s.fdWaitng, e.co.ID())
			if e.state.onTimeout != nil {
				e.state.onTimeout()
			}
		}
		s.ready = append(s.ready, readyItem{co: e.co, wake: e.wake})
	}
}

// drainSelector waits for selector readiness (if there is a selector and
// nothing is already ready) and moves any newly-ready fd-parked coroutine
// to the ready queue.
func (s *Scheduler) drainSelector(maxWait time.Duration) error {
	if s.sel == nil {
		return nil
	}

	s.mu.Lock()
	hasReady := len(s.ready) > 0
	nextTimer, hasTimer := s.nextDeadlineLocked()
	s.mu.Unlock()

	budget := maxWait
	if hasReady {
		budget = 0
	} else if hasTimer {
		now := Now()
		var untilTimer time.Duration
		if nextTimer > now {
			untilTimer = time.Duration(nextTimer-now) * time.Nanosecond
		}
		if maxWait < 0 || untilTimer < maxWait {
			budget = untilTimer
		}
	}

	events, err := s.sel.Select(budget)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		id := coroutine.ID(ev.Token)
		fp, ok := s.fdWaitng[id]
		if !ok {
			continue
		}
		delete(s.fdWaitng, id)
		if !fp.state.resolve() {
			// A sibling deadline already claimed this park and resumed
			// the coroutine with a timeout; this readiness arrived too
			// late to matter.
			continue
		}
		s.ready = append(s.ready, readyItem{co: fp.co, wake: coroutine.Wake{Result: ev}})
	}
	return nil
}

func (s *Scheduler) nextDeadlineLocked() (uint64, bool) {
	if len(s.timers) == 0 {
		return 0, false
	}
	return s.timers[0].deadline, true
}

// route inspects a freshly resumed coroutine's new state and parks it
// wherever it needs to wait next: a deadline schedules a timer wake-up; a
// plain Suspend with no deadline and no pre-registered fd interest (i.e.
// nothing ParkOnFD already recorded for it) is parked generically, so that
// a later ResumeSyscall call — the same mechanism an fd readiness event
// uses — can wake it. This lets callers that have no fd to register (the
// pool package's idle workers, waiting for their next task) park with
// nothing more than a plain Suspend and be resumed the same way an I/O
// wakeup resumes an nio call.
func (s *Scheduler) route(co *coroutine.Coroutine, st coroutine.State) {
	switch st.Kind {
	case coroutine.Suspended:
		if st.Deadline != coroutine.NoDeadline {
			// A plain Suspend can still have a sibling park already
			// recorded in fdWaitng: pool.TryGetResult calls Park(co) to
			// register the waiter ResumeSyscall will later deliver a
			// result to, then immediately Suspends with a timeout for
			// that same wait. Share the existing parkState (if any) so
			// the timer and that external resume race safely instead of
			// double-resuming.
			s.scheduleTimer(co, st.Deadline, s.existingParkState(co))
			return
		}
		s.parkGenericIfAbsent(co)
	case coroutine.InSystemCall:
		if st.Sub.Sub == coroutine.ParkedUntil && st.Sub.Deadline != coroutine.NoDeadline {
			// nio registers the fd park (ParkOnFD/ParkOnFDWithTimeout)
			// before yielding; share its parkState with the timer so
			// whichever fires first — the fd event or the deadline —
			// cancels the other instead of the coroutine being resumed
			// twice.
			s.scheduleTimer(co, st.Sub.Deadline, s.existingParkState(co))
		}
	}
}

// existingParkState returns the parkState already recorded for co in
// fdWaitng (by ParkOnFD/ParkOnFDWithTimeout/Park), if any, or nil.
func (s *Scheduler) existingParkState(co *coroutine.Coroutine) *parkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp, ok := s.fdWaitng[co.ID()]; ok {
		return fp.state
	}
	return nil
}

// parkGenericIfAbsent records co in the same table ParkOnFD uses, unless
// it is already there (an nio call may have called ParkOnFD itself before
// yielding).
func (s *Scheduler) parkGenericIfAbsent(co *coroutine.Coroutine) {
	s.mu.Lock()
	if _, ok := s.fdWaitng[co.ID()]; !ok {
		s.fdWaitng[co.ID()] = fdPark{co: co, state: &parkState{}}
	}
	s.mu.Unlock()
}

// scheduleTimer pushes a timer entry for co. state is non-nil when this
// deadline shares a park with an fd registration (see route); nil means a
// pure timer park (sleep-class calls, or an explicit Suspend with a
// deadline) with no racing fd side to worry about.
func (s *Scheduler) scheduleTimer(co *coroutine.Coroutine, deadline uint64, state *parkState) {
	s.mu.Lock()
	heap.Push(&s.timers, timerEntry{deadline: deadline, co: co, wake: coroutine.Wake{TimedOut: true}, state: state})
	s.mu.Unlock()
}

// Idle reports whether the scheduler has no ready work, no pending timer,
// and no fd-parked coroutine — i.e. nothing left for TrySchedule or
// TryTimedSchedule to ever do
// again unless Submit or ResumeSyscall is called.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready) == 0 && len(s.timers) == 0 && len(s.fdWaitng) == 0
}
