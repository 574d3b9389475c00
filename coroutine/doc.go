// Package coroutine implements cooperative coroutines on top of goroutines.
//
// coroutine generalizes the protocol used by github.com/tcard/coro: a
// goroutine ("the coroutine") only proceeds when another goroutine ("the
// resumer") calls its Resume method, and in turn the resumer blocks until
// the coroutine either returns or calls the yield function it was given.
// Unlike coro, a Coroutine here carries an explicit, inspectable lifecycle
// (State) instead of a bare alive/dead bool, so that a scheduler can tell
// a plain suspend from a parked system call from a terminal error, and can
// resume many such coroutines out of order.
//
// A Coroutine's body runs on a single dedicated goroutine for its entire
// lifetime; that goroutine is the "thread" the rest of this module means
// when it talks about the coroutine currently running on a thread. See
// Current for how that lookup is implemented.
package coroutine
