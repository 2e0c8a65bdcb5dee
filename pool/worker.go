package pool

import (
	"sync/atomic"
	"time"

	"github.com/ZacxDev/flowgraph/graph"
	"github.com/pkg/errors"
)

type poolWorkerState int32

const (
	stateReady poolWorkerState = iota // waiting for work
	stateDelay                        // waiting for the start signal
	stateBusy                         // running a job
	stateCompleted                    // loop exited
)

// poolWorker drains the pool queue. A core worker waits on the condition
// indefinitely; a seasonal one gives up after sitting idle for its TTL.
type poolWorker struct {
	id       int
	pool     *Pool
	seasonal bool
	ttl      time.Duration
	state    atomic.Int32
}

// workerContext is the worker's one-shot completion handle: done closes
// when the loop exits, err carries a captured job failure.
type workerContext struct {
	worker *poolWorker
	done   chan struct{}
	err    error
}

func (w *poolWorker) loadState() poolWorkerState { return poolWorkerState(w.state.Load()) }

func (w *poolWorker) processTasks(ctx *workerContext) {
	defer close(ctx.done)
	defer w.state.Store(int32(stateCompleted))

	p := w.pool

	w.state.Store(int32(stateDelay))
	w.awaitStartSignal()

	for {
		w.state.Store(int32(stateReady))

		p.mu.Lock()
		if w.seasonal {
			if !w.timedWaitForWork() {
				// Idle past the TTL with nothing queued: retire.
				p.mu.Unlock()
				return
			}
		} else {
			for !p.terminationFlag.Load() && len(p.queue) == 0 {
				p.workAvailable.Wait()
			}
		}
		w.state.Store(int32(stateBusy))

		if p.terminationFlag.Load() || len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}

		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := runJob(job); err != nil {
			ctx.err = err
			return
		}
	}
}

// awaitStartSignal blocks until the pool's start gate opens.
func (w *poolWorker) awaitStartSignal() {
	p := w.pool
	p.mu.Lock()
	for p.waitForStart.Load() {
		p.workAvailable.Wait()
	}
	p.mu.Unlock()
}

// timedWaitForWork waits for termination or a queued job for at most the
// worker's TTL. It returns false on timeout with an empty queue. Called
// with the pool mutex held; sync.Cond has no timed wait, so a timer
// broadcast wakes the sleeper at the deadline.
func (w *poolWorker) timedWaitForWork() bool {
	p := w.pool
	deadline := time.Now().Add(w.ttl)

	for !p.terminationFlag.Load() && len(p.queue) == 0 {
		wait := time.Until(deadline)
		if wait <= 0 {
			return false
		}
		timer := time.AfterFunc(wait, func() {
			p.mu.Lock()
			p.workAvailable.Broadcast()
			p.mu.Unlock()
		})
		p.workAvailable.Wait()
		timer.Stop()
	}
	return true
}

// runJob executes a queued job, converting a panic into an error.
func runJob(job graph.Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in job: %v", r)
		}
	}()
	return job.Run()
}
