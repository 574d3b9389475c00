// Package nio is the syscall-interception layer: a set of functions with
// the same names and signatures (adapted to Go's type system) as the libc
// calls spec's original_source/open-coroutine-core/src/syscall/mod.rs
// lists — sleep, read, write, accept, connect, poll, and their relatives —
// each of which runs the underlying operation directly when called from
// outside any coroutine, and parks the calling coroutine on the owning
// Scheduler/selector.Selector when called from inside one and the
// operation would otherwise block.
//
// The Rust source achieves this by hooking the libc symbols themselves
// (open-coroutine-hooks), so existing code gets non-blocking behavior
// without being rewritten. Go has no analogous dynamic symbol
// interposition mechanism (no LD_PRELOAD-style hook point a pure Go
// binary can install into its own libc calls), so this package exposes the
// interception as ordinary functions callers import and call directly —
// the ambient-hooking Rust achieves at the ABI level, this package
// achieves at the API level.
package nio
