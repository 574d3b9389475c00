// Package pool adapts a coroutine.Coroutine/scheduler.Scheduler pair into a
// task-submission worker pool: spec's original_source/open-coroutine-core's
// pool/creator.rs CoroutineCreator, ported as a coroutine.Listener that
// grows the pool whenever a worker parks (on an idle wait or inside an nio
// call) and shrinks it lazily, from a periodic monitor, once a worker has
// sat idle past its keep-alive.
//
// A worker is an ordinary coroutine.Coroutine whose entry function loops:
// wait for a task, run it, store its result, wait again. Task dispatch and
// idle-wait both go through Scheduler.Park/ResumeSyscall rather than a raw
// Go channel, because a raw channel receive inside a coroutine's body would
// never hand control back through the resume/suspend rendezvous the
// scheduler's TrySchedule/TryTimedSchedule steps depend on.
package pool
