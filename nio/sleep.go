package nio

import (
	"time"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
)

// sleepClass parks the current coroutine until d has elapsed, or sleeps
// the calling goroutine for d when called outside any coroutine. which records
// the specific libc entry point for observers (OnSyscall listeners).
func sleepClass(which coroutine.Syscall, d time.Duration) {
	co, ok := coroutine.Current()
	if !ok {
		time.Sleep(d)
		return
	}
	rt, ok := runtimeFor(co.ID())
	if !ok {
		time.Sleep(d)
		return
	}
	_ = rt // the scheduler's own timer heap drives this park; no fd interest to register.
	y := co.Yielder()
	deadline := nowNanos() + uint64(d)
	y.SystemCall(nil, which, coroutine.SyscallState{Sub: coroutine.ParkedUntil, Deadline: deadline})
}

// nowNanos reads the same clock as scheduler.Now: ns since the Unix epoch.
func nowNanos() uint64 { return uint64(time.Now().UnixNano()) }

// Sleep is the interception point for libc's sleep(2): seconds resolution.
func Sleep(secs uint32) { sleepClass(coroutine.Sleep, time.Duration(secs)*time.Second) }

// USleep is the interception point for libc's usleep(3): microseconds.
func USleep(micros uint32) { sleepClass(coroutine.Usleep, time.Duration(micros)*time.Microsecond) }

// NanoSleep is the interception point for libc's nanosleep(2).
func NanoSleep(d time.Duration) { sleepClass(coroutine.Nanosleep, d) }
