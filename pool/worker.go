package pool

import (
	"time"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
	"github.com/open-coroutine/opencoroutine-go/nio"
)

// spawnWorker adds a fresh, idle worker coroutine to the pool: used by
// New (to reach min) and by grow (the growthListener's reaction to a
// sibling parking). The new worker's first resume carries no task, so its
// loop goes straight to idle-wait.
func (p *Pool) spawnWorker() {
	co := p.newWorkerCoroutine()
	p.registerWorker(co)
	p.sched.Submit(co, coroutine.Wake{})
}

// spawnWorkerWithTask is spawnWorker's counterpart for Submit's
// no-idle-worker-but-under-max path: the new worker's first resume already
// carries the task that caused it to be spawned, so it runs it immediately
// instead of idling first.
func (p *Pool) spawnWorkerWithTask(env taskEnvelope) {
	co := p.newWorkerCoroutine()
	p.registerWorker(co)
	p.sched.Submit(co, coroutine.Wake{Result: env})
}

func (p *Pool) registerWorker(co *coroutine.Coroutine) {
	p.mu.Lock()
	p.workers[co.ID()] = co
	p.mu.Unlock()
	nio.Attach(co.ID(), &nio.Runtime{Sched: p.sched, Sel: p.sel})
}

func (p *Pool) newWorkerCoroutine() *coroutine.Coroutine {
	var co *coroutine.Coroutine
	co = coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		return p.workerLoop(co, y, first)
	}, p.bus)
	return co
}

// workerLoop is a worker coroutine's entry function: run a delivered task
// (if any), record the result, go idle, and repeat. Idle-wait uses
// Suspend(nil, NoDeadline) rather than any deadline of its own — shrinking
// an idle worker past keep-alive is the idle-shrink monitor's job
// (pool.go), not something each worker times out on its own, so there is
// no per-worker timer entry competing with the monitor's ticker.
func (p *Pool) workerLoop(co *coroutine.Coroutine, y coroutine.Yielder, first coroutine.Wake) any {
	w := first
	for {
		if env, ok := w.Result.(taskEnvelope); ok {
			if env.poison {
				p.retire(co.ID())
				return nil
			}
			result, err := runTask(env.task)
			p.deliverResult(env.id, result, err)
		}

		p.sched.Park(co)
		p.markIdle(co.ID())
		w = y.Suspend(nil, coroutine.NoDeadline)
		p.markBusy(co.ID())
	}
}

func (p *Pool) markIdle(id coroutine.ID) {
	p.mu.Lock()
	p.idle[id] = time.Now()
	p.mu.Unlock()
}

func (p *Pool) markBusy(id coroutine.ID) {
	p.mu.Lock()
	delete(p.idle, id)
	p.mu.Unlock()
}

// retire is a worker's own cleanup on receiving poison from the idle-shrink
// monitor. running was already decremented by pickShrinkVictim, which chose
// this worker precisely because it was idle and over keep-alive.
func (p *Pool) retire(id coroutine.ID) {
	nio.Detach(id)
	p.mu.Lock()
	delete(p.workers, id)
	delete(p.idle, id)
	p.mu.Unlock()
}

// retireAfterError is growthListener.OnError's cleanup for a worker whose
// entry function panicked (Errored, not Complete): unlike retire, running
// has not yet been decremented for this worker, so this does that too,
// mirroring creator.rs's fetch_sub before growing back.
func (p *Pool) retireAfterError(id coroutine.ID) {
	nio.Detach(id)
	p.mu.Lock()
	if p.running > 0 {
		p.running--
	}
	delete(p.workers, id)
	delete(p.idle, id)
	p.mu.Unlock()
}
