//go:build linux

package selector

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux backend, grounded on
// joeycumines-go-utilpkg/eventloop's poller_linux.go FastPoller: one epoll
// fd, EPOLL_CTL_ADD/MOD/DEL per registration change, EpollWait per Select.
type epollBackend struct {
	epfd int
}

func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd}, nil
}

func epollFlags(readable, writable bool) uint32 {
	var e uint32
	if readable {
		e |= unix.EPOLLIN
	}
	if writable {
		e |= unix.EPOLLOUT
	}
	return e
}

func (b *epollBackend) add(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollFlags(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollFlags(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) remove(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) wait(timeout time.Duration, out []rawEvent) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	var buf [256]unix.EpollEvent
	n, err := unix.EpollWait(b.epfd, buf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n && i < len(out); i++ {
		out[i] = rawEvent{
			fd:       int(buf[i].Fd),
			readable: buf[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: buf[i].Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		}
	}
	if n > len(out) {
		n = len(out)
	}
	return n, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}
