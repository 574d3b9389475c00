package scheduler_test

import (
	"testing"
	"time"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/scheduler"
)

func TestSubmitAndStepRunsToCompletion(t *testing.T) {
	s := scheduler.New(nil)

	var ran bool
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		ran = true
		return first.Result
	}, nil)
	s.Submit(co, coroutine.Wake{Result: "hello"})

	did, err := s.TrySchedule()
	if err != nil {
		t.Fatalf("TrySchedule: %v", err)
	}
	if !did {
		t.Fatal("expected work to be done")
	}
	if !ran {
		t.Fatal("coroutine body did not run")
	}
	if co.State().Kind != coroutine.Complete || co.State().Return != "hello" {
		t.Fatalf("unexpected final state: %+v", co.State())
	}
}

func TestReadyQueueIsFIFO(t *testing.T) {
	s := scheduler.New(nil)

	var order []int
	mk := func(n int) *coroutine.Coroutine {
		return coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
			order = append(order, n)
			return nil
		}, nil)
	}

	a, b, c := mk(1), mk(2), mk(3)
	s.Submit(a, coroutine.Wake{})
	s.Submit(b, coroutine.Wake{})
	s.Submit(c, coroutine.Wake{})

	for i := 0; i < 3; i++ {
		if _, err := s.TrySchedule(); err != nil {
			t.Fatalf("TrySchedule: %v", err)
		}
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected FIFO order [1 2 3], got %v", order)
	}
}

func TestSuspendWithDeadlineWakesOnExpiry(t *testing.T) {
	s := scheduler.New(nil)

	deadline := scheduler.Now() + uint64(20*time.Millisecond)
	var gotTimedOut bool
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		w := y.Suspend("parked", deadline)
		gotTimedOut = w.TimedOut
		return nil
	}, nil)
	s.Submit(co, coroutine.Wake{})

	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (initial): %v", err)
	}
	if co.State().Kind != coroutine.Suspended {
		t.Fatalf("expected Suspended, got %v", co.State().Kind)
	}

	giveUpAt := time.Now().Add(time.Second)
	for time.Now().Before(giveUpAt) {
		did, err := s.TryTimedSchedule(5 * time.Millisecond)
		if err != nil {
			t.Fatalf("TryTimedSchedule: %v", err)
		}
		if did && co.State().Kind == coroutine.Complete {
			break
		}
	}

	if co.State().Kind != coroutine.Complete {
		t.Fatalf("expected Complete after timer expiry, got %v", co.State().Kind)
	}
	if !gotTimedOut {
		t.Fatal("expected the Wake delivered on timer expiry to report TimedOut")
	}
}

// TestDeadlineAndFDParkRaceResolvesOnce covers a coroutine parked both on
// an fd (ParkOnFD, as nio registers before yielding) and a deadline (the
// SystemCall state's Sub.Deadline, as a deadline-bearing nio call or Poll
// carries): whichever side resolves first must be the only one that ever
// resumes the coroutine, even once the other side's stale entry is later
// drained.
func TestDeadlineAndFDParkRaceResolvesOnce(t *testing.T) {
	s := scheduler.New(nil)

	var gotTimedOut bool
	deadline := scheduler.Now() + uint64(20*time.Millisecond)
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		w := y.SystemCall(nil, coroutine.Read, coroutine.SyscallState{Sub: coroutine.ParkedUntil, Deadline: deadline})
		gotTimedOut = w.TimedOut
		return nil
	}, nil)

	s.ParkOnFD(co)
	s.Submit(co, coroutine.Wake{})

	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (enters InSystemCall): %v", err)
	}
	if co.State().Kind != coroutine.InSystemCall {
		t.Fatalf("expected InSystemCall, got %v", co.State().Kind)
	}

	// Resolve the fd side first: the coroutine completes before the
	// shared deadline ever has a chance to fire.
	if err := s.ResumeSyscall(co.ID(), "ready"); err != nil {
		t.Fatalf("ResumeSyscall: %v", err)
	}
	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (final): %v", err)
	}
	if co.State().Kind != coroutine.Complete {
		t.Fatalf("expected Complete, got %v", co.State().Kind)
	}
	if gotTimedOut {
		t.Fatal("fd-side resume should not report TimedOut")
	}

	// Let the deadline pass; since it shares the fd park's parkState,
	// expireTimers must drop the stale entry instead of resuming the
	// already-Complete coroutine a second time (which would surface as a
	// ResumeWith/InvalidState error from TrySchedule).
	time.Sleep(30 * time.Millisecond)
	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (stale timer should be a silent no-op): %v", err)
	}
	if co.State().Kind != coroutine.Complete {
		t.Fatalf("coroutine state changed after stale timer fired: %v", co.State().Kind)
	}
}

// TestSuspendDeadlineSharesExistingFDParkState covers pool.TryGetResult's
// pattern: Park(co) registers a waiter entry, then the coroutine Suspends
// (not SystemCalls) with a timeout for that same wait. A result delivered
// via ResumeSyscall before the deadline fires must be the only resume; the
// stale timer must be dropped rather than resuming the coroutine twice.
func TestSuspendDeadlineSharesExistingFDParkState(t *testing.T) {
	s := scheduler.New(nil)

	var gotTimedOut bool
	deadline := scheduler.Now() + uint64(20*time.Millisecond)
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		w := y.Suspend("waiting for result", deadline)
		gotTimedOut = w.TimedOut
		return nil
	}, nil)

	s.ParkOnFD(co)
	s.Submit(co, coroutine.Wake{})

	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (enters Suspended): %v", err)
	}
	if co.State().Kind != coroutine.Suspended {
		t.Fatalf("expected Suspended, got %v", co.State().Kind)
	}

	if err := s.ResumeSyscall(co.ID(), "the result"); err != nil {
		t.Fatalf("ResumeSyscall: %v", err)
	}
	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (final): %v", err)
	}
	if co.State().Kind != coroutine.Complete {
		t.Fatalf("expected Complete, got %v", co.State().Kind)
	}
	if gotTimedOut {
		t.Fatal("result-side resume should not report TimedOut")
	}

	time.Sleep(30 * time.Millisecond)
	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (stale timer should be a silent no-op): %v", err)
	}
	if co.State().Kind != coroutine.Complete {
		t.Fatalf("coroutine state changed after stale timer fired: %v", co.State().Kind)
	}
}

func TestResumeSyscallDeliversResultToFDParkedCoroutine(t *testing.T) {
	s := scheduler.New(nil)

	var gotResult any
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		w := y.SystemCall("reading", coroutine.Read, coroutine.SyscallState{Sub: coroutine.Calling})
		gotResult = w.Result
		return nil
	}, nil)

	// The coroutine's id is assigned by New, so the park can be registered
	// before it ever runs, exactly as nio's real call site registers it
	// from inside the coroutine immediately before yielding.
	s.ParkOnFD(co)
	s.Submit(co, coroutine.Wake{})

	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (enters InSystemCall): %v", err)
	}
	if co.State().Kind != coroutine.InSystemCall {
		t.Fatalf("expected InSystemCall, got %v", co.State().Kind)
	}

	if err := s.ResumeSyscall(co.ID(), 42); err != nil {
		t.Fatalf("ResumeSyscall: %v", err)
	}

	if _, err := s.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule (final): %v", err)
	}
	if gotResult != 42 {
		t.Fatalf("expected result 42, got %v", gotResult)
	}
}
