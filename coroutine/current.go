package coroutine

import (
	"runtime"
	"sync"
)

// current maps a coroutine's dedicated goroutine to the Coroutine running
// on it, implementing the "thread-local current pointer" spec §4.5 and §6
// require (current_coroutine() -> Option<&Coroutine>, O(1)).
//
// A Coroutine's body runs on one dedicated goroutine for its whole
// lifetime (see Coroutine.run), so "the thread currently executing" maps
// naturally onto "the goroutine currently executing", identified the same
// way github.com/joeycumines/go-eventloop's Loop.getGoroutineID does: by
// parsing the "goroutine NNN [...]" prefix runtime.Stack prints for the
// calling goroutine. That trick, not a context.Context parameter thread
// through every call site, is what lets ordinary-looking code (sleep,
// read, write, ...) discover "am I inside a coroutine?" without every
// caller on the stack cooperating.
var current sync.Map // goroutineID uint64 -> *Coroutine

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// bindCurrent records c as the coroutine running on the calling goroutine.
// Called once, from Coroutine.run, before the entry function executes.
func bindCurrent(c *Coroutine) { current.Store(goroutineID(), c) }

// unbindCurrent removes the calling goroutine's association. Called once,
// from Coroutine.run, after the entry function returns or panics.
func unbindCurrent() { current.Delete(goroutineID()) }

// Current returns the Coroutine running on the calling goroutine, if any.
// Code outside any coroutine's body goroutine observes (nil, false), per
// spec §6: "any caller outside a scheduler observes None".
func Current() (*Coroutine, bool) {
	v, ok := current.Load(goroutineID())
	if !ok {
		return nil, false
	}
	return v.(*Coroutine), true
}
