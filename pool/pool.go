// Package pool provides a FIFO thread pool for dependency-free jobs. It
// shares the Runner abstraction with the graph engine but performs no
// scheduling beyond queue order: jobs run as workers become free.
package pool

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZacxDev/flowgraph/graph"
	"github.com/pkg/errors"
)

// DefaultSeasonalTTL is how long an idle seasonal worker stays alive when
// the pool is constructed with a non-positive TTL via New.
const DefaultSeasonalTTL = 60 * time.Second

// Pool runs queued jobs on a mix of core workers, which live until the
// pool terminates, and seasonal workers, which exit after sitting idle
// for their TTL. Workers are spawned lazily as jobs are pushed, up to
// maxCount (0 meaning unbounded).
//
// The pool owns queued jobs; after Push the caller must not reuse them.
// Push, Start, Wait, and Terminate are meant to be driven from a single
// client goroutine, like the graph's build phase.
type Pool struct {
	coreCount   int
	maxCount    int
	seasonalTTL time.Duration
	fixed       bool

	mu            sync.Mutex
	workAvailable *sync.Cond
	queue         []graph.Runner

	terminationFlag atomic.Bool
	waitForStart    atomic.Bool

	workers []*workerContext
}

// New creates a pool with the given number of core workers, a worker
// limit (0 for no limit), the idle TTL for seasonal workers, and whether
// workers should hold off executing until Start is called.
func New(coreCount, maxCount int, seasonalTTL time.Duration, waitForStart bool) *Pool {
	if seasonalTTL <= 0 {
		seasonalTTL = DefaultSeasonalTTL
	}
	p := &Pool{
		coreCount:   coreCount,
		maxCount:    maxCount,
		seasonalTTL: seasonalTTL,
	}
	p.workAvailable = sync.NewCond(&p.mu)
	p.waitForStart.Store(waitForStart)
	return p
}

// NewFixed creates the start-gated variant: coreSize workers, all of them
// seasonal with a zero idle TTL, so execution begins only on Start and
// the pool drains and exits once the queue is empty.
func NewFixed(coreSize int) *Pool {
	p := &Pool{
		coreCount: coreSize,
		maxCount:  coreSize,
		fixed:     true,
	}
	p.workAvailable = sync.NewCond(&p.mu)
	p.waitForStart.Store(true)
	return p
}

// Push enqueues a job for execution, spawning a worker if none is idle
// and the limit allows it. It reports false if the job is nil or the
// pool is not accepting work.
func (p *Pool) Push(job graph.Runner) bool {
	if job == nil || !p.executable() {
		return false
	}

	p.cleanCompleteWorkers()

	if len(p.workers) < p.maxCount || p.maxCount == 0 {
		spawn := true
		for _, wc := range p.workers {
			if wc.worker.loadState() == stateReady {
				spawn = false
				break
			}
		}
		if spawn {
			// Core slots fill first; past that, workers are seasonal.
			if p.fixed || len(p.workers) >= p.coreCount {
				p.createSeasonalWorkers(1, p.seasonalTTL)
			} else {
				p.createWorkers(1)
			}
		}
	}

	p.mu.Lock()
	p.queue = append(p.queue, job)
	p.workAvailable.Signal()
	p.mu.Unlock()
	return true
}

// PushFunc wraps fn as a job and pushes it.
func (p *Pool) PushFunc(fn func() error) bool {
	if fn == nil {
		return false
	}
	return p.Push(graph.RunnerFunc(fn))
}

// Clear drops every job still waiting in the queue. Jobs already claimed
// by workers are unaffected.
func (p *Pool) Clear() {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// Start releases workers that were holding for the start signal and
// re-arms a terminated pool.
func (p *Pool) Start() {
	p.waitForStart.Store(false)
	p.terminationFlag.Store(false)
	p.mu.Lock()
	p.workAvailable.Broadcast()
	p.mu.Unlock()
}

// Wait blocks until every worker has exited, then resets the pool. Core
// workers only exit on termination, so a pool with core workers must be
// terminated before Wait returns. Job failures are collected into a
// single error. After Wait the pool is back in its start-gated state and
// new pushes spawn workers afresh.
func (p *Pool) Wait() error {
	var msgs []string
	for _, wc := range p.workers {
		<-wc.done
		if wc.err != nil {
			msgs = append(msgs, wc.err.Error())
		}
	}
	p.reset()

	if len(msgs) > 0 {
		return errors.Errorf("failure in worker thread: %s", strings.Join(msgs, "\n"))
	}
	return nil
}

// Terminate stops the pool: queued jobs are abandoned, running jobs
// finish normally. With alsoWait the call blocks until workers exit. The
// pool rejects pushes until Start re-arms it.
func (p *Pool) Terminate(alsoWait bool) error {
	p.terminationFlag.Store(true)
	p.mu.Lock()
	p.workAvailable.Broadcast()
	p.mu.Unlock()

	if alsoWait {
		err := p.Wait()
		// Wait resets the pool; keep it terminated.
		p.terminationFlag.Store(true)
		return err
	}
	return nil
}

// Empty reports whether the queue holds no jobs.
func (p *Pool) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0
}

// executable reports whether the pool can accept and run a new job.
func (p *Pool) executable() bool {
	if p.terminationFlag.Load() {
		return false
	}
	if p.fixed {
		// The fixed pool drains and exits after Start; once its workers
		// are gone it cannot execute anything new.
		if p.waitForStart.Load() {
			return true
		}
		return len(p.workers) > 0
	}
	return true
}

func (p *Pool) reset() {
	p.terminationFlag.Store(false)
	p.waitForStart.Store(true)
	p.workers = nil
}

// cleanCompleteWorkers reaps workers whose loop has exited so their slots
// can be reused.
func (p *Pool) cleanCompleteWorkers() {
	kept := p.workers[:0]
	for _, wc := range p.workers {
		if wc.worker.loadState() == stateCompleted {
			<-wc.done
			continue
		}
		kept = append(kept, wc)
	}
	p.workers = kept
}

func (p *Pool) createWorkers(count int) {
	for i := 0; i < count; i++ {
		w := &poolWorker{id: len(p.workers), pool: p}
		w.state.Store(int32(stateDelay))
		wc := &workerContext{worker: w, done: make(chan struct{})}
		p.workers = append(p.workers, wc)
		go w.processTasks(wc)
	}
}

func (p *Pool) createSeasonalWorkers(count int, ttl time.Duration) {
	for i := 0; i < count; i++ {
		w := &poolWorker{id: len(p.workers), pool: p, seasonal: true, ttl: ttl}
		w.state.Store(int32(stateDelay))
		wc := &workerContext{worker: w, done: make(chan struct{})}
		p.workers = append(p.workers, wc)
		go w.processTasks(wc)
	}
}
