// Package scheduler drives coroutine.Coroutine values to completion on a
// single goroutine: a ready queue, a deadline-ordered timer heap, and a
// selector.Selector-backed fd-parking table feed one cooperative run loop,
// the way a single event loop goroutine in
// joeycumines-go-utilpkg/eventloop drains its own ready/timer/poller
// sources each iteration.
package scheduler
