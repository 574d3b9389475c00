package nio

import (
	"golang.org/x/sys/unix"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
)

// Socket is the interception point for libc's socket(2). Creating a
// socket never blocks, so this is a fast-path-only wrapper, present for
// symmetry with the rest of the intercepted list and so a future
// per-syscall listener hook has somewhere to attach.
func Socket(domain, typ, proto int) (int, error) { return unix.Socket(domain, typ, proto) }

// Listen is the interception point for libc's listen(2); never blocks.
func Listen(fd, backlog int) error { return unix.Listen(fd, backlog) }

// Shutdown is the interception point for libc's shutdown(2); never blocks.
func Shutdown(fd, how int) error { return unix.Shutdown(fd, how) }

// Close is the interception point for libc's close(2). If the calling
// coroutine has a Runtime attached, any outstanding selector registration
// for fd is torn down first — otherwise a stale registration could later
// report readiness for an fd some unrelated file now owns.
func Close(fd int) error {
	if co, ok := coroutine.Current(); ok {
		if rt, ok := runtimeFor(co.ID()); ok {
			_ = rt.Sel.DelEvent(fd)
		}
	}
	return unix.Close(fd)
}

// Fsync is the interception point for libc's fsync(2). Disk I/O has no
// EAGAIN/readiness model on the platforms this package targets, so it is
// always a direct call-through.
func Fsync(fd int) error { return unix.Fsync(fd) }

// Renameat is the interception point for libc's renameat(2).
func Renameat(olddirfd int, oldpath string, newdirfd int, newpath string) error {
	return unix.Renameat(olddirfd, oldpath, newdirfd, newpath)
}

// Mkdirat is the interception point for libc's mkdirat(2).
func Mkdirat(dirfd int, path string, mode uint32) error {
	return unix.Mkdirat(dirfd, path, mode)
}

// Openat is the interception point for libc's openat(2).
func Openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	return unix.Openat(dirfd, path, flags, mode)
}
