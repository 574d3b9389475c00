package nio

import (
	"golang.org/x/sys/unix"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// Accept is the interception point for libc's accept(2): a listening
// socket with no pending connection returns EAGAIN just like a read would,
// so it shares read's retry-on-EAGAIN decision tree.
func Accept(fd int) (nfd int, sa unix.Sockaddr, err error) {
	_, err = retryOnEAGAIN(coroutine.Accept, fd, true, coroutine.NoDeadline, func() (int, error) {
		var e error
		nfd, sa, e = unix.Accept(fd)
		return nfd, e
	})
	return nfd, sa, err
}

// Accept4 is the interception point for libc's accept4(2).
func Accept4(fd, flags int) (nfd int, sa unix.Sockaddr, err error) {
	_, err = retryOnEAGAIN(coroutine.Accept4, fd, true, coroutine.NoDeadline, func() (int, error) {
		var e error
		nfd, sa, e = unix.Accept4(fd, flags)
		return nfd, e
	})
	return nfd, sa, err
}

// Connect is the interception point for libc's connect(2). A non-blocking
// connect on a fresh socket returns EINPROGRESS immediately; the coroutine
// parks on the fd's write-readiness (the usual "connect completed" signal)
// instead of read-readiness, then checks SO_ERROR once woken to see
// whether the connection actually succeeded.
func Connect(fd int, sa unix.Sockaddr) error {
	co, ok := coroutine.Current()
	if !ok {
		return unix.Connect(fd, sa)
	}
	rt, ok := runtimeFor(co.ID())
	if !ok {
		return unix.Connect(fd, sa)
	}

	restore, err := ensureNonblock(fd)
	if err != nil {
		return err
	}
	defer restore()

	err = unix.Connect(fd, sa)
	if err != unix.EINPROGRESS {
		return err
	}

	if err := rt.Sel.AddWriteEvent(fd, selector.Token(co.ID())); err != nil {
		return err
	}
	rt.Sched.ParkOnFD(co)

	y := co.Yielder()
	w := y.SystemCall(nil, coroutine.Connect, coroutine.SyscallState{Sub: coroutine.ParkedUntil, Deadline: coroutine.NoDeadline})
	if w.TimedOut {
		return unix.ETIMEDOUT
	}

	soErr, getErr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if getErr != nil {
		return getErr
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}
