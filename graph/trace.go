package graph

// traceVerdict classifies the result of a trace: a node is ready to claim,
// nothing can be claimed until a broadcast, or the whole graph is done.
type traceVerdict int

const (
	traceReady traceVerdict = iota
	tracePending
	traceCompleted
)

type traceResult struct {
	verdict traceVerdict
	node    *Node
}

// traceReadyNode answers the worker's question: given that the previous
// node it touched was entry (or nil on the first iteration), which node
// should it execute next? The search prefers nodes near the hint, namely
// the successors of whatever just finished, and falls back to a global
// scan through the ready cache. Must be called with the graph mutex held.
func (g *Graph) traceReadyNode(entry *Node) traceResult {
	if entry == nil {
		if len(g.readyCache) > 0 {
			return g.traceReadyDepend(g.readyCache[0], nil)
		}

		// Nothing cached: if anything is still executing, its completion
		// may unblock work, so the caller has to wait.
		for _, n := range g.taskPool {
			if n.State() == StateExecuting {
				return traceResult{tracePending, n}
			}
		}
		return traceResult{traceCompleted, nil}
	}

	switch entry.State() {
	case StateExecuting:
		// The hint is being worked on elsewhere; look below it first.
		for _, s := range entry.successors {
			if s.State() != StateReady {
				continue
			}
			if r := g.traceReadyDepend(s, nil); r.verdict == traceReady {
				return r
			}
		}
		if r := g.traceReadyNode(nil); r.verdict == traceReady {
			return r
		}
		return traceResult{tracePending, entry}

	case StateReady:
		r := g.traceReadyDepend(entry, nil)
		if r.verdict == traceReady {
			return r
		}
		if r.verdict == tracePending {
			if next := g.traceReadyNode(nil); next.verdict == traceReady {
				return next
			}
			return r
		}

	case StateCompleted:
		delay := traceResult{tracePending, nil}
		for _, s := range entry.successors {
			if s.State() != StateReady {
				continue
			}
			r := g.traceReadyDepend(s, nil)
			if r.verdict == traceReady {
				return r
			}
			if r.verdict == tracePending {
				delay = r
			}
		}

		next := g.traceReadyNode(nil)
		if next.verdict == traceReady {
			return next
		}
		if delay.node != nil {
			return delay
		}
		if next.verdict == tracePending {
			return next
		}
	}

	return traceResult{traceCompleted, nil}
}

// traceReadyDepend walks up the predecessor closure of entry looking for a
// node whose dependencies are all satisfied, or classifies entry itself:
// a READY node with every predecessor COMPLETED is claimable, a node with
// anything EXECUTING above it is pending. Nodes in avoids are skipped.
func (g *Graph) traceReadyDepend(entry *Node, avoids map[*Node]struct{}) traceResult {
	switch entry.State() {
	case StateExecuting:
		return traceResult{tracePending, entry}
	case StateCompleted:
		return traceResult{traceCompleted, entry}
	}

	var pending traceResult
	for _, p := range entry.predecessors {
		if p == nil {
			continue
		}
		if _, skip := avoids[p]; skip {
			continue
		}

		switch p.State() {
		case StateReady:
			r := g.traceReadyDepend(p, avoids)
			if r.verdict == traceReady {
				return r
			}
			if r.verdict == tracePending {
				pending = r
			}
		case StateExecuting:
			pending = traceResult{tracePending, p}
		}
	}

	if pending.node != nil {
		return pending
	}
	return traceResult{traceReady, entry}
}
