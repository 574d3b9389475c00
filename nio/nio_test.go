//go:build linux || darwin

package nio_test

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/nio"
	"github.com/open-coroutine/opencoroutine-go/scheduler"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

func TestReadWriteFastPathOutsideCoroutine(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := nio.Write(int(w.Fd()), []byte("hi")); err != nil {
		t.Fatalf("nio.Write: %v", err)
	}
	buf := make([]byte, 2)
	n, err := nio.Read(int(r.Fd()), buf)
	if err != nil {
		t.Fatalf("nio.Read: %v", err)
	}
	if n != 2 || string(buf) != "hi" {
		t.Fatalf("got %q, want %q", buf[:n], "hi")
	}
}

func TestReadParksUntilDataArrives(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	// r.Fd() puts the fd back into blocking mode on every call, so take it
	// once, before SetNonblock.
	rfd := int(r.Fd())
	if err := unix.SetNonblock(rfd, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	sel, err := selector.New()
	if err != nil {
		t.Fatalf("selector.New: %v", err)
	}
	defer sel.Close()
	sched := scheduler.New(sel)

	var n int
	var readErr error
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		buf := make([]byte, 5)
		n, readErr = nio.Read(rfd, buf)
		return nil
	}, nil)
	nio.Attach(co.ID(), &nio.Runtime{Sched: sched, Sel: sel})
	defer nio.Detach(co.ID())
	sched.Submit(co, coroutine.Wake{})

	// First step resumes the coroutine; it sees EAGAIN (no writer yet) and
	// parks on the fd.
	if _, err := sched.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule: %v", err)
	}
	if co.State().Kind != coroutine.InSystemCall {
		t.Fatalf("expected InSystemCall (parked), got %v", co.State().Kind)
	}

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && co.State().Kind != coroutine.Complete {
		if _, err := sched.TryTimedSchedule(50 * time.Millisecond); err != nil {
			t.Fatalf("TryTimedSchedule: %v", err)
		}
	}

	if co.State().Kind != coroutine.Complete {
		t.Fatalf("coroutine did not complete; state=%v", co.State().Kind)
	}
	if readErr != nil {
		t.Fatalf("unexpected read error: %v", readErr)
	}
	if n != 5 {
		t.Fatalf("expected to read 5 bytes, got %d", n)
	}
}

// TestReadDeadlineTimesOut is spec.md §8 scenario C: a coroutine reading
// from a pipe with no writer, under a 100ms deadline, gets EAGAIN back and
// the fd is no longer registered for readability afterward.
func TestReadDeadlineTimesOut(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	// r.Fd() puts the fd back into blocking mode on every call, so take it
	// once, before SetNonblock.
	rfd := int(r.Fd())
	if err := unix.SetNonblock(rfd, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	sel, err := selector.New()
	if err != nil {
		t.Fatalf("selector.New: %v", err)
	}
	defer sel.Close()
	sched := scheduler.New(sel)

	var n int
	var readErr error
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		buf := make([]byte, 1)
		n, readErr = nio.ReadDeadline(rfd, buf, time.Now().Add(100*time.Millisecond))
		return nil
	}, nil)
	nio.Attach(co.ID(), &nio.Runtime{Sched: sched, Sel: sel})
	defer nio.Detach(co.ID())
	sched.Submit(co, coroutine.Wake{})

	if _, err := sched.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule: %v", err)
	}
	if co.State().Kind != coroutine.InSystemCall {
		t.Fatalf("expected InSystemCall (parked), got %v", co.State().Kind)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && co.State().Kind != coroutine.Complete {
		if _, err := sched.TryTimedSchedule(50 * time.Millisecond); err != nil {
			t.Fatalf("TryTimedSchedule: %v", err)
		}
	}

	if co.State().Kind != coroutine.Complete {
		t.Fatalf("coroutine did not complete; state=%v", co.State().Kind)
	}
	if n != -1 || readErr != unix.EAGAIN {
		t.Fatalf("expected (-1, EAGAIN), got (%d, %v)", n, readErr)
	}
	if readable, _ := sel.Registered(rfd); readable {
		t.Fatalf("fd still registered readable after deadline expiry")
	}
}

// TestReadOnBlockingFDParksAndRestoresMode is spec.md §8 property 5 and
// scenario B's premise: an intercepted call on a *blocking*-mode fd must
// still park rather than block the coroutine's goroutine outright. Unlike
// the other tests in this file, the pipe's read end is left in its default
// blocking mode; retryOnEAGAIN is responsible for putting it in
// non-blocking mode itself before its first attempt, and restoring it once
// the call finishes.
func TestReadOnBlockingFDParksAndRestoresMode(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	// r.Fd() puts the fd into blocking mode on every call; take it once so
	// the mode checks below see what Read left, not what Fd() just set.
	rfd := int(r.Fd())

	sel, err := selector.New()
	if err != nil {
		t.Fatalf("selector.New: %v", err)
	}
	defer sel.Close()
	sched := scheduler.New(sel)

	var n int
	var readErr error
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		buf := make([]byte, 5)
		n, readErr = nio.Read(rfd, buf)
		return nil
	}, nil)
	nio.Attach(co.ID(), &nio.Runtime{Sched: sched, Sel: sel})
	defer nio.Detach(co.ID())
	sched.Submit(co, coroutine.Wake{})

	// If Read failed to set O_NONBLOCK first, this call would block the
	// test goroutine itself (ResumeWith waits until the coroutine's body
	// goroutine yields or returns); it must instead see EAGAIN
	// internally and return having parked.
	if _, err := sched.TrySchedule(); err != nil {
		t.Fatalf("TrySchedule: %v", err)
	}
	if co.State().Kind != coroutine.InSystemCall {
		t.Fatalf("expected InSystemCall (parked), got %v", co.State().Kind)
	}

	flags, err := unix.FcntlInt(uintptr(rfd), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("FcntlInt: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Fatalf("expected fd to be non-blocking while parked")
	}

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && co.State().Kind != coroutine.Complete {
		if _, err := sched.TryTimedSchedule(50 * time.Millisecond); err != nil {
			t.Fatalf("TryTimedSchedule: %v", err)
		}
	}

	if co.State().Kind != coroutine.Complete {
		t.Fatalf("coroutine did not complete; state=%v", co.State().Kind)
	}
	if readErr != nil {
		t.Fatalf("unexpected read error: %v", readErr)
	}
	if n != 5 {
		t.Fatalf("expected to read 5 bytes, got %d", n)
	}

	flags, err = unix.FcntlInt(uintptr(rfd), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("FcntlInt: %v", err)
	}
	if flags&unix.O_NONBLOCK != 0 {
		t.Fatalf("expected fd's original blocking mode to be restored after Read returned")
	}
}
