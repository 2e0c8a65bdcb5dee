package graph

import "sync/atomic"

// Node is a unit of work plus its dependency metadata. Create one with
// NewNode and hand it to Graph.Push, which takes ownership; after that the
// node is addressed through the Task handle returned by Push.
//
// A node's identity is its address. The state field is atomic so sibling
// workers can test "is this predecessor completed yet" without holding the
// graph mutex; all state writes and all edge navigation happen under it.
type Node struct {
	payload      Runner
	state        atomic.Int32
	predecessors []*Node
	successors   []*Node
}

// NewNode wraps a payload in a graph node in the READY state.
func NewNode(payload Runner) *Node {
	n := &Node{payload: payload}
	n.state.Store(int32(StateReady))
	return n
}

// State returns the node's current execution state.
func (n *Node) State() NodeState { return NodeState(n.state.Load()) }

func (n *Node) storeState(s NodeState) { n.state.Store(int32(s)) }
