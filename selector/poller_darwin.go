//go:build darwin

package selector

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin backend, grounded on
// joeycumines-go-utilpkg/eventloop's poller_darwin.go FastPoller: one kqueue
// fd, EVFILT_READ/EVFILT_WRITE kevents with EV_ADD/EV_DELETE per
// registration change, unix.Kevent per Select.
type kqueueBackend struct {
	kq int
}

func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{kq: kq}, nil
}

func kevents(fd int, readable, writable bool, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if readable {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if writable {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (b *kqueueBackend) add(fd int, readable, writable bool) error {
	ch := kevents(fd, readable, writable, unix.EV_ADD|unix.EV_ENABLE)
	if len(ch) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, ch, nil, nil)
	return err
}

// modify computes the delta against the full desired interest set
// registerLocked always passes: EV_ADD/EV_ENABLE the filters now wanted,
// EV_DELETE the filters not wanted. Unlike EPOLL_CTL_MOD, kqueue has no
// single call that replaces a registration's interest set wholesale, so a
// narrowing caller (DelReadEvent dropping read while keeping write) needs
// the dropped filter's EV_DELETE issued explicitly or it stays armed and
// keeps firing.
func (b *kqueueBackend) modify(fd int, readable, writable bool) error {
	add := kevents(fd, readable, writable, unix.EV_ADD|unix.EV_ENABLE)
	if len(add) > 0 {
		if _, err := unix.Kevent(b.kq, add, nil, nil); err != nil {
			return err
		}
	}
	if !readable {
		if err := b.deleteFilter(fd, unix.EVFILT_READ); err != nil {
			return err
		}
	}
	if !writable {
		if err := b.deleteFilter(fd, unix.EVFILT_WRITE); err != nil {
			return err
		}
	}
	return nil
}

// deleteFilter issues EV_DELETE for a single filter, treating ENOENT (the
// filter was never registered) as success: callers only know the fd's
// overall desired interest set, not which filters the kernel currently
// holds, so a delete of a filter that was already absent is expected, not
// an error.
func (b *kqueueBackend) deleteFilter(fd int, filter int16) error {
	ch := []unix.Kevent_t{{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE}}
	_, err := unix.Kevent(b.kq, ch, nil, nil)
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

// remove deletes every filter currently registered for fd. Both filters'
// EV_DELETE are attempted independently so a single-direction
// registration doesn't fail the whole call with ENOENT for the filter
// that was never added.
func (b *kqueueBackend) remove(fd int) error {
	if err := b.deleteFilter(fd, unix.EVFILT_READ); err != nil {
		return err
	}
	return b.deleteFilter(fd, unix.EVFILT_WRITE)
}

func (b *kqueueBackend) wait(timeout time.Duration, out []rawEvent) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / time.Second),
			Nsec: int64(timeout % time.Second),
		}
	}
	var buf [256]unix.Kevent_t
	n, err := unix.Kevent(b.kq, nil, buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n && i < len(out); i++ {
		out[i] = rawEvent{
			fd:       int(buf[i].Ident),
			readable: buf[i].Filter == unix.EVFILT_READ,
			writable: buf[i].Filter == unix.EVFILT_WRITE,
		}
	}
	if n > len(out) {
		n = len(out)
	}
	return n, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}
