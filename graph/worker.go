package graph

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// workerState tracks a worker's lifecycle: Delay before startup, Busy in
// the main loop, Completed once the loop exits.
type workerState int32

const (
	workerReady workerState = iota
	workerDelay
	workerBusy
	workerCompleted
)

// graphWorker is one OS-level worker of a graph run. It repeatedly asks
// the trace for a claimable node, executes it outside the lock, records
// completion, and wakes its peers.
type graphWorker struct {
	id    int
	graph *Graph
	state atomic.Int32
}

// workerContext pairs a worker with its one-shot completion handle: done
// closes when the worker exits, and err carries the captured payload
// failure, if any. err is written before done closes, so readers may
// access it after receiving from done.
type workerContext struct {
	worker *graphWorker
	done   chan struct{}
	err    error
}

func (g *Graph) createWorkers(count int) {
	for i := 0; i < count; i++ {
		w := &graphWorker{id: len(g.workers), graph: g}
		w.state.Store(int32(workerDelay))
		wc := &workerContext{worker: w, done: make(chan struct{})}
		g.workers = append(g.workers, wc)
		go w.processTasks(wc)
	}
}

func (w *graphWorker) processTasks(ctx *workerContext) {
	defer close(ctx.done)

	g := w.graph
	w.state.Store(int32(workerBusy))

	next := traceResult{verdict: tracePending}
	for {
		g.mu.Lock()
		if g.terminationFlag.Load() {
			g.mu.Unlock()
			break
		}
		next = g.traceReadyNode(next.node)
		if next.verdict == traceReady {
			next.node.storeState(StateExecuting)
			g.removeReadyCache(next.node)
		} else if next.verdict == tracePending {
			g.taskAvailable.Wait()
		}
		g.mu.Unlock()

		if next.verdict == traceCompleted {
			break
		}
		if next.verdict != traceReady {
			continue
		}

		if err := runPayload(next.node); err != nil {
			// First failure aborts the run: peers stop claiming nodes, so
			// dependents of this node never execute. The node stays in
			// EXECUTING so sibling traces keep reporting it as pending
			// until they observe the termination flag.
			ctx.err = err
			g.terminationFlag.Store(true)
			g.mu.Lock()
			g.taskAvailable.Broadcast()
			g.mu.Unlock()
			break
		}

		g.mu.Lock()
		next.node.storeState(StateCompleted)
		g.taskAvailable.Broadcast()
		g.mu.Unlock()
	}

	g.mu.Lock()
	g.taskAvailable.Broadcast()
	g.mu.Unlock()
	w.state.Store(int32(workerCompleted))
}

// runPayload invokes the node payload, converting a panic into an error
// so a failing node can never take down the process.
func runPayload(n *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in task: %v", r)
		}
	}()
	return n.payload.Run()
}
