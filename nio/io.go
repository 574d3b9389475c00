package nio

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// dispatch is the fast-path/slow-path split every intercepted call in this
// package goes through: call straight through when there is no current
// coroutine, or no Runtime attached to it (nothing to park against); only
// coroutines with a Runtime attached via Attach (the pool attaches one to
// every worker) ever take the slow path.
func dispatch(op func() (int, error), slow func(co *coroutine.Coroutine, rt *Runtime) (int, error)) (int, error) {
	co, ok := coroutine.Current()
	if !ok {
		return op()
	}
	rt, ok := runtimeFor(co.ID())
	if !ok {
		return op()
	}
	return slow(co, rt)
}

// ensureNonblock is spec.md §4.5 step 2b's mandatory first action on the
// fd-and-wait path: "Ensure the fd is in non-blocking mode ... remembering
// to restore on terminal success/failure if the caller had it blocking."
// If fd is already non-blocking, restore is a no-op; otherwise it puts the
// O_NONBLOCK bit back the way it found it.
func ensureNonblock(fd int) (restore func(), err error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, err
	}
	if flags&unix.O_NONBLOCK != 0 {
		return func() {}, nil
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return func() { _ = unix.SetNonblock(fd, false) }, nil
}

// retryOnEAGAIN is the fd+wait-class decision tree spec §6 describes: put
// the fd in non-blocking mode; try the operation; on EAGAIN/EWOULDBLOCK,
// register interest on the fd under token == coroutine id, record the park
// with the scheduler, and yield as an InSystemCall(which, ParkedUntil)
// until the selector reports readiness or a deadline (if any) expires;
// then retry. which names the call for State.Which/SyscallState observers
// (pool growth listeners, diagnostics).
func retryOnEAGAIN(which coroutine.Syscall, fd int, wantReadable bool, deadline uint64, op func() (int, error)) (int, error) {
	return dispatch(op, func(co *coroutine.Coroutine, rt *Runtime) (int, error) {
		restore, err := ensureNonblock(fd)
		if err != nil {
			return -1, err
		}
		defer restore()

		y := co.Yielder()
		for {
			n, err := op()
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				return n, err
			}

			var regErr error
			if wantReadable {
				regErr = rt.Sel.AddReadEvent(fd, selector.Token(co.ID()))
			} else {
				regErr = rt.Sel.AddWriteEvent(fd, selector.Token(co.ID()))
			}
			if regErr != nil {
				return n, regErr
			}
			if deadline == coroutine.NoDeadline {
				rt.Sched.ParkOnFD(co)
			} else {
				// A deadline is racing the fd registration: if it fires
				// first, the stale interest must come off the selector
				// rather than linger until some unrelated fd reuse.
				rt.Sched.ParkOnFDWithTimeout(co, func() {
					if wantReadable {
						_ = rt.Sel.DelReadEvent(fd)
					} else {
						_ = rt.Sel.DelWriteEvent(fd)
					}
				})
			}

			w := y.SystemCall(nil, which, coroutine.SyscallState{Sub: coroutine.ParkedUntil, Deadline: deadline})
			if w.TimedOut {
				// spec.md §8 scenario C: a deadline-expired read reports
				// EAGAIN, the same errno a real non-blocking read would
				// give the caller had it decided to give up waiting.
				return -1, unix.EAGAIN
			}
		}
	})
}

// Read is the interception point for libc's read(2).
func Read(fd int, p []byte) (int, error) {
	return retryOnEAGAIN(coroutine.Read, fd, true, coroutine.NoDeadline, func() (int, error) {
		return unix.Read(fd, p)
	})
}

// ReadDeadline is Read with an absolute wall-clock deadline: spec.md §4.5
// describes deadline handling for every fd-and-wait call, and §8 scenario
// C exercises it concretely against read(2). read(2) itself takes no
// deadline argument, so this is a thin sibling entry point rather than a
// change to Read's libc-matching signature, the same shape as a socket's
// SetReadDeadline sitting alongside a plain Read in other fd-based Go
// APIs. A zero deadline means no deadline, matching Read.
func ReadDeadline(fd int, p []byte, deadline time.Time) (int, error) {
	d := coroutine.NoDeadline
	if !deadline.IsZero() {
		d = uint64(deadline.UnixNano())
	}
	return retryOnEAGAIN(coroutine.Read, fd, true, d, func() (int, error) {
		return unix.Read(fd, p)
	})
}

// Pread is the interception point for libc's pread(2).
func Pread(fd int, p []byte, offset int64) (int, error) {
	return retryOnEAGAIN(coroutine.Pread, fd, true, coroutine.NoDeadline, func() (int, error) {
		return unix.Pread(fd, p, offset)
	})
}

// Readv is the interception point for libc's readv(2).
func Readv(fd int, iovs [][]byte) (int, error) {
	return retryOnEAGAIN(coroutine.Readv, fd, true, coroutine.NoDeadline, func() (int, error) {
		return unix.Readv(fd, iovs)
	})
}

// Preadv is the interception point for libc's preadv(2).
func Preadv(fd int, iovs [][]byte, offset int64) (int, error) {
	return retryOnEAGAIN(coroutine.Preadv, fd, true, coroutine.NoDeadline, func() (int, error) {
		return unix.Preadv(fd, iovs, offset)
	})
}

// Recv is the interception point for libc's recv(2). Grounded on
// original_source's UnixSyscall::recv, whose default body actually calls
// libc::send instead of libc::recv — a mismatched-fallback bug the spec's
// Open Questions flag for correction: this port wires recv to
// unix.Recvfrom's read direction with no flags-bearing peer address,
// never to the write-direction send path.
func Recv(fd int, p []byte, flags int) (int, error) {
	return retryOnEAGAIN(coroutine.Recv, fd, true, coroutine.NoDeadline, func() (int, error) {
		n, _, err := unix.Recvfrom(fd, p, flags)
		return n, err
	})
}

// Recvfrom is the interception point for libc's recvfrom(2).
func Recvfrom(fd int, p []byte, flags int) (n int, from unix.Sockaddr, err error) {
	_, err = retryOnEAGAIN(coroutine.Recvfrom, fd, true, coroutine.NoDeadline, func() (int, error) {
		var e error
		n, from, e = unix.Recvfrom(fd, p, flags)
		return n, e
	})
	return n, from, err
}

// Recvmsg is the interception point for libc's recvmsg(2).
func Recvmsg(fd int, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error) {
	_, err = retryOnEAGAIN(coroutine.Recvmsg, fd, true, coroutine.NoDeadline, func() (int, error) {
		var e error
		n, oobn, recvflags, from, e = unix.Recvmsg(fd, p, oob, flags)
		return n, e
	})
	return n, oobn, recvflags, from, err
}

// Write is the interception point for libc's write(2).
func Write(fd int, p []byte) (int, error) {
	return retryOnEAGAIN(coroutine.Write, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.Write(fd, p)
	})
}

// Pwrite is the interception point for libc's pwrite(2).
func Pwrite(fd int, p []byte, offset int64) (int, error) {
	return retryOnEAGAIN(coroutine.Pwrite, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.Pwrite(fd, p, offset)
	})
}

// Writev is the interception point for libc's writev(2).
func Writev(fd int, iovs [][]byte) (int, error) {
	return retryOnEAGAIN(coroutine.Writev, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.Writev(fd, iovs)
	})
}

// Pwritev is the interception point for libc's pwritev(2).
func Pwritev(fd int, iovs [][]byte, offset int64) (int, error) {
	return retryOnEAGAIN(coroutine.Pwritev, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.Pwritev(fd, iovs, offset)
	})
}

// Send is the interception point for libc's send(2). Reports the actual
// byte count a partial non-blocking send wrote via SendmsgN rather than
// assuming a full len(p) write the way plain Sendto (error-only, no n)
// would force.
func Send(fd int, p []byte, flags int) (int, error) {
	return retryOnEAGAIN(coroutine.Send, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.SendmsgN(fd, p, nil, nil, flags)
	})
}

// Sendto is the interception point for libc's sendto(2); see Send's doc
// comment for why this goes through SendmsgN instead of Sendto.
func Sendto(fd int, p []byte, flags int, to unix.Sockaddr) (int, error) {
	return retryOnEAGAIN(coroutine.Sendto, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.SendmsgN(fd, p, nil, to, flags)
	})
}

// Sendmsg is the interception point for libc's sendmsg(2).
func Sendmsg(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
	return retryOnEAGAIN(coroutine.Sendmsg, fd, false, coroutine.NoDeadline, func() (int, error) {
		return unix.SendmsgN(fd, p, oob, to, flags)
	})
}
