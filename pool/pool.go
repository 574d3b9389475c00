package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/scheduler"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// ErrExhausted is returned by Submit when no worker is idle and the pool is
// already at Options.Max (spec.md §7's PoolExhausted).
var ErrExhausted = errors.New("pool: exhausted")

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("pool: closed")

// ErrUnknownTask is returned by TryGetResult for a TaskID that was never
// issued by this Pool, or whose result was already collected.
var ErrUnknownTask = errors.New("pool: unknown task")

// ErrTimeout is returned by TryGetResult when timeout elapses before the
// task's result is ready.
var ErrTimeout = errors.New("pool: timed out waiting for result")

// Options configures a Pool, per spec.md §4.1's "min/max worker bounds" and
// "keep_alive_ns for idle workers".
type Options struct {
	// Min is the worker count the pool never shrinks below.
	Min int
	// Max is the worker count grow never exceeds.
	Max int
	// KeepAlive is how long a worker may sit idle, above Min, before the
	// idle-shrink monitor retires it.
	KeepAlive time.Duration
}

// DefaultOptions returns the defaults New fills in for unset fields: a
// non-positive Max or KeepAlive and a negative Min take these values, while
// a zero Min stays zero. This matches the pack's habit (go-eventloop's Options, gaio-style watchers)
// of a documented-default struct rather than functional options.
func DefaultOptions() Options {
	return Options{Min: 1, Max: 4, KeepAlive: 10 * time.Second}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Min < 0 {
		o.Min = d.Min
	}
	if o.Max <= 0 {
		o.Max = d.Max
	}
	if o.Max < o.Min {
		o.Max = o.Min
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = d.KeepAlive
	}
	return o
}

// Pool is spec.md §4.1's Pool: a scheduler, a task/result bookkeeping
// layer, and an adaptively sized set of worker coroutines. One Pool owns
// one Scheduler and one Selector; every worker it creates shares both,
// plus a single coroutine.ListenerBus carrying the growthListener that
// drives §4.6's growth policy.
type Pool struct {
	opts Options

	sched *scheduler.Scheduler
	sel   *selector.Selector
	bus   *coroutine.ListenerBus

	mu      sync.Mutex
	closed  bool
	running int
	workers map[coroutine.ID]*coroutine.Coroutine
	idle    map[coroutine.ID]time.Time

	nextTaskID atomic.Uint64
	results    sync.Map // TaskID -> *resultBox

	cancel context.CancelFunc
	g      *errgroup.Group
}

// New constructs a Pool and brings it up to Options.Min running workers,
// returning once that many workers sit idle (or the scheduler driver has
// stopped with an error). The returned Pool owns a background goroutine group (driving its
// Scheduler and its idle-shrink monitor, per SPEC_FULL's domain stack)
// that runs until Close.
func New(opts Options) (*Pool, error) {
	opts = opts.withDefaults()

	sel, err := selector.New()
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	p := &Pool{
		opts:    opts,
		sel:     sel,
		sched:   scheduler.New(sel),
		workers: make(map[coroutine.ID]*coroutine.Coroutine),
		idle:    make(map[coroutine.ID]time.Time),
	}
	p.bus = coroutine.NewListenerBus(&growthListener{pool: p})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	p.g = g
	g.Go(func() error { return p.driveLoop(gctx) })
	g.Go(func() error { return p.shrinkLoop(gctx) })

	for i := 0; i < opts.Min; i++ {
		p.mu.Lock()
		p.running++
		p.mu.Unlock()
		p.spawnWorker()
	}

	// Return once Min workers have parked idle, so a Submit made right
	// after New finds an idle worker rather than ErrExhausted.
	for gctx.Err() == nil {
		p.mu.Lock()
		n := len(p.idle)
		p.mu.Unlock()
		if n >= opts.Min {
			break
		}
		time.Sleep(time.Millisecond)
	}

	return p, nil
}

// Close stops the pool's background goroutines and releases its selector.
// Workers that are mid-task finish that task (the scheduler keeps running
// until the context cancellation is observed between steps); workers
// parked idle are left to be garbage collected along with their goroutine
// once nothing references them, per spec.md §5's "shutdown is achieved by
// letting all coroutines reach a terminal state" — this Pool does not
// force that for idle workers on Close, since there is no cancel token in
// the core to wake them early.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	err := p.g.Wait()
	_ = p.sel.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Submit enqueues task, per spec.md §4.6's submit(task) → TaskId: an idle
// worker is handed it directly if one exists; otherwise, if the pool has
// spare capacity under Max, a new worker is spawned already carrying this
// task. With no idle worker and no spare capacity, it returns ErrExhausted
// rather than blocking the submitter — the simpler of the two policies
// spec.md §7 allows for PoolExhausted; see DESIGN.md.
func (p *Pool) Submit(task Task) (TaskID, error) {
	id := TaskID(p.nextTaskID.Add(1))
	p.results.Store(id, &resultBox{})

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.results.Delete(id)
		return 0, ErrClosed
	}
	var workerID coroutine.ID
	haveIdle := false
	for wid := range p.idle {
		workerID = wid
		haveIdle = true
		break
	}
	if haveIdle {
		delete(p.idle, workerID)
	}
	canSpawn := !haveIdle && p.running < p.opts.Max
	if canSpawn {
		p.running++
	}
	p.mu.Unlock()

	env := taskEnvelope{id: id, task: task}

	switch {
	case haveIdle:
		if err := p.sched.ResumeSyscall(workerID, env); err != nil {
			p.results.Delete(id)
			return 0, err
		}
	case canSpawn:
		p.spawnWorkerWithTask(env)
	default:
		p.results.Delete(id)
		return 0, ErrExhausted
	}
	return id, nil
}

// TryGetResult blocks until task's result lands or timeout elapses
// (timeout <= 0 means wait indefinitely), per spec.md §4.6's
// try_get_result(TaskId, timeout). Called from inside a coroutine running
// on this Pool's own Scheduler, it parks that coroutine via Suspend instead
// of blocking its goroutine outright — blocking the goroutine here would
// also block the single ResumeWith call driving it, which would stall the
// Scheduler's one cooperative thread.
func (p *Pool) TryGetResult(id TaskID, timeout time.Duration) (any, error) {
	v, ok := p.results.Load(id)
	if !ok {
		return nil, ErrUnknownTask
	}
	box := v.(*resultBox)

	co, isCoro := coroutine.Current()

	box.mu.Lock()
	if box.done {
		val, err := box.val, box.err
		box.mu.Unlock()
		p.results.Delete(id)
		return val, err
	}
	var ch chan struct{}
	if isCoro {
		p.sched.Park(co)
		box.waiter = co.ID()
		box.hasWaiter = true
	} else {
		ch = make(chan struct{})
		box.ch = ch
	}
	box.mu.Unlock()

	if isCoro {
		deadline := coroutine.NoDeadline
		if timeout > 0 {
			deadline = scheduler.Now() + uint64(timeout)
		}
		w := co.Yielder().Suspend(nil, deadline)
		if w.TimedOut {
			return nil, ErrTimeout
		}
		res := w.Result.(waitResult)
		p.results.Delete(id)
		return res.val, res.err
	}

	if timeout <= 0 {
		<-ch
	} else {
		select {
		case <-ch:
		case <-time.After(timeout):
			return nil, ErrTimeout
		}
	}
	box.mu.Lock()
	val, err := box.val, box.err
	box.mu.Unlock()
	p.results.Delete(id)
	return val, err
}

func (p *Pool) deliverResult(id TaskID, val any, err error) {
	v, ok := p.results.Load(id)
	if !ok {
		return
	}
	box := v.(*resultBox)

	box.mu.Lock()
	box.done = true
	box.val = val
	box.err = err
	ch := box.ch
	waiter, hasWaiter := box.waiter, box.hasWaiter
	box.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if hasWaiter {
		_ = p.sched.ResumeSyscall(waiter, waitResult{val: val, err: err})
	}
}

// grow is Pool.grow from spec.md §4.6: attempt one more worker, bounded by
// Max. Called from growthListener on every worker park, so the bound check
// here (not in the listener) is what keeps growth from running away.
func (p *Pool) grow() {
	p.mu.Lock()
	if p.closed || p.running >= p.opts.Max {
		p.mu.Unlock()
		return
	}
	p.running++
	p.mu.Unlock()
	p.spawnWorker()
}

// driveLoop is the Pool's Scheduler driver: one background goroutine
// repeatedly stepping the Scheduler, bounded per-iteration so ctx
// cancellation is noticed promptly even with nothing ready.
func (p *Pool) driveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := p.sched.TryTimedSchedule(50 * time.Millisecond); err != nil {
			return err
		}
	}
}

// shrinkLoop is the idle-shrink monitor spec.md §4.6 calls for: a periodic
// check for idle workers past KeepAlive, above Min, retired by poisoning
// them through the same ResumeSyscall path task dispatch uses.
func (p *Pool) shrinkLoop(ctx context.Context) error {
	interval := p.opts.KeepAlive / 4
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.shrinkOnce()
		}
	}
}

func (p *Pool) shrinkOnce() {
	for {
		victim, ok := p.pickShrinkVictim()
		if !ok {
			return
		}
		_ = p.sched.ResumeSyscall(victim, taskEnvelope{poison: true})
	}
}

func (p *Pool) pickShrinkVictim() (coroutine.ID, bool) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running <= p.opts.Min {
		return 0, false
	}
	for id, since := range p.idle {
		if now.Sub(since) >= p.opts.KeepAlive {
			delete(p.idle, id)
			p.running--
			return id, true
		}
	}
	return 0, false
}

// Running reports the current worker count, for tests and diagnostics.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
