//go:build linux

package nio

import "golang.org/x/sys/unix"

// EpollCtl is the interception point for libc's epoll_ctl(2), exposed for
// callers that want to manage their own epoll instance directly rather
// than going through the selector package's Selector. Linux-only, like the
// Rust source's LinuxSyscall::epoll_ctl.
func EpollCtl(epfd, op, fd int, event *unix.EpollEvent) error {
	return unix.EpollCtl(epfd, op, fd, event)
}
