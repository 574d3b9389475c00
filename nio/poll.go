package nio

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// Poll is the interception point for libc's poll(2): fan out each fd's
// requested interest to the selector, park once, and re-poll
// non-blockingly after the wake to collect the real revents. timeout < 0
// blocks with no deadline, matching poll(2)'s -1.
func Poll(fds []unix.PollFd, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	co, ok := coroutine.Current()
	if !ok {
		return unix.Poll(fds, ms)
	}
	rt, ok := runtimeFor(co.ID())
	if !ok {
		return unix.Poll(fds, ms)
	}

	restores := make([]func(), 0, len(fds))
	defer func() {
		for _, restore := range restores {
			restore()
		}
	}()
	for _, pfd := range fds {
		restore, err := ensureNonblock(int(pfd.Fd))
		if err != nil {
			return 0, err
		}
		restores = append(restores, restore)
	}

	n, err := unix.Poll(fds, 0)
	if err != nil || n > 0 {
		return n, err
	}

	for _, pfd := range fds {
		tok := selector.Token(co.ID())
		if pfd.Events&unix.POLLIN != 0 {
			if e := rt.Sel.AddReadEvent(int(pfd.Fd), tok); e != nil {
				return 0, e
			}
		}
		if pfd.Events&unix.POLLOUT != 0 {
			if e := rt.Sel.AddWriteEvent(int(pfd.Fd), tok); e != nil {
				return 0, e
			}
		}
	}

	deadline := coroutine.NoDeadline
	if timeout >= 0 {
		deadline = nowNanos() + uint64(timeout)
		// A timeout races every fan-out registration above; on expiry,
		// tear all of them down instead of leaving the losing entries
		// registered against fds this call no longer cares about.
		rt.Sched.ParkOnFDWithTimeout(co, func() {
			for _, pfd := range fds {
				if pfd.Events&unix.POLLIN != 0 {
					_ = rt.Sel.DelReadEvent(int(pfd.Fd))
				}
				if pfd.Events&unix.POLLOUT != 0 {
					_ = rt.Sel.DelWriteEvent(int(pfd.Fd))
				}
			}
		})
	} else {
		rt.Sched.ParkOnFD(co)
	}

	y := co.Yielder()
	w := y.SystemCall(nil, coroutine.Poll, coroutine.SyscallState{Sub: coroutine.ParkedUntil, Deadline: deadline})
	if w.TimedOut {
		return 0, nil
	}
	return unix.Poll(fds, 0)
}

// Select is the interception point for libc's select(2), implemented in
// terms of Poll the way a number of coroutine runtimes (including this
// one's source material) implement a call in terms of a more capable
// sibling rather than duplicating the park/wake machinery.
func Select(readFds, writeFds []int, timeout time.Duration) (readyRead, readyWrite []int, err error) {
	fds := make([]unix.PollFd, 0, len(readFds)+len(writeFds))
	for _, fd := range readFds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	for _, fd := range writeFds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
	}

	if _, err = Poll(fds, timeout); err != nil {
		return nil, nil, err
	}
	for _, pfd := range fds {
		if pfd.Revents&unix.POLLIN != 0 {
			readyRead = append(readyRead, int(pfd.Fd))
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			readyWrite = append(readyWrite, int(pfd.Fd))
		}
	}
	return readyRead, readyWrite, nil
}
