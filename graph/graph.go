package graph

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// DefaultThreadCount is used when a graph is constructed with a
// non-positive worker count.
const DefaultThreadCount = 2

// WaitStatus is the result of a timed wait.
type WaitStatus int

const (
	StatusReady       WaitStatus = iota // all workers finished in time
	StatusTimeout                       // the budget ran out first
	StatusInterrupted                   // reserved
)

// Graph owns a set of task nodes connected by precedence edges and runs
// them on a fixed pool of workers. Clients push nodes, connect them via
// the returned Task handles, then Start the run and Wait on it.
//
// Every node runs only after all of its predecessors completed;
// independent nodes run concurrently. The first failing payload aborts
// the run and is surfaced from Wait. The graph may be started again once
// a run has been waited out.
//
// Structural mutation (Push, Erase, edge changes) is a build-phase
// activity: it is rejected while the graph is executing and is not
// synchronized against concurrent client goroutines.
type Graph struct {
	optimizedThreads bool
	threadCount      int

	mu            sync.Mutex // guards nodes, edges, ready cache, state writes
	taskAvailable *sync.Cond // broadcast: work available, node completed, or termination

	terminationFlag atomic.Bool
	executingFlag   atomic.Bool

	taskPool   []*Node
	readyCache []*Node
	workers    []*workerContext
}

// New creates a graph that will run with the given number of worker
// threads. With optimizedThreads, the worker count of each run is capped
// at the number of nodes in the graph.
func New(threadCount int, optimizedThreads bool) *Graph {
	if threadCount < 1 {
		threadCount = DefaultThreadCount
	}
	g := &Graph{
		threadCount:      threadCount,
		optimizedThreads: optimizedThreads,
	}
	g.taskAvailable = sync.NewCond(&g.mu)
	return g
}

// Push transfers ownership of node to the graph and returns a handle to
// it. The node must be non-nil, in the READY state, and not already in
// the graph; pushing is rejected while the graph is executing.
func (g *Graph) Push(node *Node) (Task, error) {
	if node == nil || node.payload == nil {
		return Task{}, errors.Wrap(ErrInvalidArgument, "node is nil")
	}
	if g.executing() {
		return Task{}, errors.Wrap(ErrExecuting, "cannot push tasks while executing")
	}
	if node.State() != StateReady {
		return Task{}, errors.Wrapf(ErrInvalidArgument, "node is in %s state", node.State())
	}
	if slices.Contains(g.taskPool, node) {
		return Task{}, errors.Wrap(ErrInvalidArgument, "node is already in the graph")
	}

	g.taskPool = append(g.taskPool, node)
	return Task{node: node}, nil
}

// PushFunc wraps fn in a node and pushes it.
func (g *Graph) PushFunc(fn func() error) (Task, error) {
	if fn == nil {
		return Task{}, errors.Wrap(ErrInvalidArgument, "fn is nil")
	}
	return g.Push(NewNode(RunnerFunc(fn)))
}

// Erase removes the task's node from the graph, unlinking it from every
// predecessor and successor edge list, and invalidates the handle. It
// returns false if the handle is empty or the node is not in this graph,
// and an error while the graph is executing.
func (g *Graph) Erase(t *Task) (bool, error) {
	if t == nil || t.node == nil {
		return false, nil
	}
	if g.executing() {
		return false, errors.Wrap(ErrExecuting, "cannot erase tasks while executing")
	}

	i := slices.Index(g.taskPool, t.node)
	if i < 0 {
		return false, nil
	}

	for _, p := range t.node.predecessors {
		p.successors = removeNode(p.successors, t.node)
	}
	for _, s := range t.node.successors {
		s.predecessors = removeNode(s.predecessors, t.node)
	}

	g.taskPool = slices.Delete(g.taskPool, i, i+1)
	t.node = nil
	return true, nil
}

// Clear resets the execution state and drops every node.
func (g *Graph) Clear() {
	g.reset()
	g.mu.Lock()
	g.taskPool = nil
	g.mu.Unlock()
}

// Start launches a run: every node is reset to READY, the ready cache is
// seeded with the whole pool, and the workers are spawned. It fails with
// ErrExecuting while a run is executing, which lasts from Start until the
// run has been waited out, even if every worker has already finished.
func (g *Graph) Start() error {
	if g.executing() {
		return errors.Wrap(ErrExecuting, "cannot start execution while already executing")
	}

	// Drain any worker contexts still held so they never leak across runs.
	if err := g.Wait(); err != nil {
		return err
	}
	g.reset()

	g.mu.Lock()
	for _, n := range g.taskPool {
		n.storeState(StateReady)
	}
	g.readyCache = slices.Clone(g.taskPool)
	g.mu.Unlock()

	g.executingFlag.Store(true)

	count := g.threadCount
	if g.optimizedThreads {
		count = min(count, len(g.taskPool))
	}
	g.createWorkers(count)
	return nil
}

// Terminate flags the run for termination and wakes every worker. Nodes
// already executing run to completion; nothing new is claimed. With
// alsoWait the call blocks until the workers have exited.
func (g *Graph) Terminate(alsoWait bool) error {
	g.terminationFlag.Store(true)
	g.mu.Lock()
	g.taskAvailable.Broadcast()
	g.mu.Unlock()

	if alsoWait {
		return g.Wait()
	}
	return nil
}

// Wait blocks until every worker of the current run has exited, then
// resets the run state. If any worker captured a payload failure, Wait
// returns a single error whose message joins all of them. Calling Wait
// again once a run has been drained returns nil immediately.
func (g *Graph) Wait() error {
	var msgs []string
	for _, wc := range g.workers {
		<-wc.done
		if wc.err != nil {
			msgs = append(msgs, wc.err.Error())
		}
	}
	g.reset()

	if len(msgs) > 0 {
		return errors.Errorf("failure in worker thread: %s", strings.Join(msgs, "\n"))
	}
	return nil
}

// WaitFor is Wait with a time budget. Worker completion handles are
// polled in order against the remaining budget; the first one that does
// not finish in time yields StatusTimeout. A timeout does not terminate
// the run, so the caller may simply Wait (or WaitFor) again later.
func (g *Graph) WaitFor(timeout time.Duration) (WaitStatus, error) {
	deadline := time.Now().Add(timeout)
	remaining := timeout

	for _, wc := range g.workers {
		timer := time.NewTimer(remaining)
		select {
		case <-wc.done:
			timer.Stop()
		case <-timer.C:
			return StatusTimeout, nil
		}

		remaining = time.Until(deadline)
		if remaining <= 0 {
			return StatusTimeout, nil
		}
	}

	err := g.Wait()
	return StatusReady, err
}

// Adopt transfers the node set, ready cache, worker contexts, and
// configuration from other into g, leaving other empty. Each graph keeps
// its own mutex and condition variable. Neither graph should be executing.
func (g *Graph) Adopt(other *Graph) {
	if other == nil || other == g {
		return
	}

	g.mu.Lock()
	other.mu.Lock()

	g.optimizedThreads = other.optimizedThreads
	g.threadCount = other.threadCount
	g.taskPool = other.taskPool
	g.readyCache = other.readyCache
	g.workers = other.workers
	g.terminationFlag.Store(other.terminationFlag.Load())
	g.executingFlag.Store(other.executingFlag.Load())

	other.taskPool = nil
	other.readyCache = nil
	other.workers = nil

	other.mu.Unlock()
	g.mu.Unlock()
}

// SetThreadCount configures the worker count for the next Start.
func (g *Graph) SetThreadCount(count int) {
	if count < 1 {
		count = 1
	}
	g.threadCount = count
}

// ThreadCount returns the configured worker count.
func (g *Graph) ThreadCount() int { return g.threadCount }

// SetOptimizedThreads toggles capping the worker count at the node count;
// effective at the next Start.
func (g *Graph) SetOptimizedThreads(optimized bool) { g.optimizedThreads = optimized }

// OptimizedThreads reports whether the worker count is capped at the node
// count.
func (g *Graph) OptimizedThreads() bool { return g.optimizedThreads }

// Empty reports whether the graph holds no nodes.
func (g *Graph) Empty() bool { return len(g.taskPool) == 0 }

// TaskSize returns the number of nodes in the graph.
func (g *Graph) TaskSize() int { return len(g.taskPool) }

// TaskAt returns a handle to the i-th node in insertion order.
func (g *Graph) TaskAt(i int) Task { return Task{node: g.taskPool[i]} }

// Tasks returns handles to every node in insertion order.
func (g *Graph) Tasks() []Task { return taskHandles(g.taskPool) }

func (g *Graph) executing() bool { return g.executingFlag.Load() }

// reset clears per-run state. Worker contexts are dropped, so it must not
// run while workers are still alive.
func (g *Graph) reset() {
	g.executingFlag.Store(false)
	g.terminationFlag.Store(false)
	g.mu.Lock()
	g.readyCache = nil
	g.mu.Unlock()
	g.workers = nil
}

// removeReadyCache drops a claimed node from the scan entry points. Must
// be called with the graph mutex held.
func (g *Graph) removeReadyCache(n *Node) bool {
	if i := slices.Index(g.readyCache, n); i >= 0 {
		g.readyCache = slices.Delete(g.readyCache, i, i+1)
		return true
	}
	return false
}
