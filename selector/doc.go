// Package selector is the event-driven I/O multiplexer the nio and
// scheduler packages use to park coroutines on file descriptors instead of
// blocking an OS thread. It wraps epoll on Linux and kqueue on Darwin
// behind a single Selector type, the way
// joeycumines-go-utilpkg/eventloop's poller_linux.go/poller_darwin.go split
// a shared FastPoller API across two build-tagged backends.
package selector
