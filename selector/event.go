package selector

// Token identifies who should handle a readiness event. The scheduler and
// nio packages set it equal to the waiting coroutine's coroutine.ID, per
// spec glossary ("Token: an opaque integer... equal to the coroutine id
// that will consume the readiness event").
type Token uint64

// Event reports which interests fired for the fd registered under Token,
// mirroring the Rust source's polling::Event (original_source's
// net/selector.rs: event.key, event.readable, event.writable).
type Event struct {
	Token    Token
	Readable bool
	Writable bool
}
