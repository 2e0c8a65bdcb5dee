package graph

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Task is a lightweight, non-owning handle to a node managed by a Graph.
// It is the only way clients declare edges. Copying a Task copies the
// handle, never the node, so two handles to the same node compare equal
// with ==. A zero Task is empty.
//
// Erasing the underlying node from its graph invalidates the handle.
type Task struct {
	node *Node
}

// Depend adds the edges other -> t for every given task: t will execute
// only after all of them have completed.
//
// Adding an edge that already exists is a no-op. It is an error if any
// handle is empty or refers to t itself, and a circular-dependency error
// if the reverse edge is already present.
func (t Task) Depend(others ...Task) error {
	for _, other := range others {
		if err := t.depend(other); err != nil {
			return err
		}
	}
	return nil
}

func (t Task) depend(other Task) error {
	if t.node == nil || other.node == nil {
		return errors.Wrap(ErrInvalidArgument, "task is not valid")
	}
	if other.node == t.node {
		return errors.Wrap(ErrInvalidArgument, "cannot set relation to itself")
	}

	// Reject the direct back edge: if the other task already depends on
	// this one, completing the pair would form a two-node cycle.
	if slices.Contains(other.node.predecessors, t.node) {
		return errors.WithStack(ErrCircularDependency)
	}

	if !slices.Contains(t.node.predecessors, other.node) {
		t.node.predecessors = append(t.node.predecessors, other.node)
	}
	if !slices.Contains(other.node.successors, t.node) {
		other.node.successors = append(other.node.successors, t.node)
	}
	return nil
}

// Precede adds the edges t -> other for every given task: each of them
// will execute only after t has completed.
func (t Task) Precede(others ...Task) error {
	for _, other := range others {
		if err := other.depend(t); err != nil {
			return err
		}
	}
	return nil
}

// EraseDepend removes the edges other -> t. Edges that do not exist, and
// empty handles, are ignored. Node states are not touched.
func (t Task) EraseDepend(others ...Task) {
	for _, other := range others {
		if t.node == nil || other.node == nil {
			continue
		}
		t.node.predecessors = removeNode(t.node.predecessors, other.node)
		other.node.successors = removeNode(other.node.successors, t.node)
	}
}

// ErasePrecede removes the edges t -> other. Edges that do not exist, and
// empty handles, are ignored.
func (t Task) ErasePrecede(others ...Task) {
	for _, other := range others {
		if t.node == nil || other.node == nil {
			continue
		}
		t.node.successors = removeNode(t.node.successors, other.node)
		other.node.predecessors = removeNode(other.node.predecessors, t.node)
	}
}

// Empty reports whether the handle references no node.
func (t Task) Empty() bool { return t.node == nil }

// State returns the node's execution state, or StateReady for an empty
// handle.
func (t Task) State() NodeState {
	if t.node == nil {
		return StateReady
	}
	return t.node.State()
}

// ResetState puts the node back into the READY state so it can run again.
// No effect on an empty handle.
func (t Task) ResetState() {
	if t.node != nil {
		t.node.storeState(StateReady)
	}
}

// PredecessorsSize returns the number of tasks this one depends on.
func (t Task) PredecessorsSize() int {
	if t.node == nil {
		return 0
	}
	return len(t.node.predecessors)
}

// SuccessorsSize returns the number of tasks that depend on this one.
func (t Task) SuccessorsSize() int {
	if t.node == nil {
		return 0
	}
	return len(t.node.successors)
}

// PredecessorAt returns a handle to the i-th predecessor.
func (t Task) PredecessorAt(i int) Task { return Task{node: t.node.predecessors[i]} }

// SuccessorAt returns a handle to the i-th successor.
func (t Task) SuccessorAt(i int) Task { return Task{node: t.node.successors[i]} }

// Predecessors returns handles to every task this one depends on.
func (t Task) Predecessors() []Task {
	if t.node == nil {
		return nil
	}
	return taskHandles(t.node.predecessors)
}

// Successors returns handles to every task that depends on this one.
func (t Task) Successors() []Task {
	if t.node == nil {
		return nil
	}
	return taskHandles(t.node.successors)
}

func taskHandles(nodes []*Node) []Task {
	tasks := make([]Task, len(nodes))
	for i, n := range nodes {
		tasks[i] = Task{node: n}
	}
	return tasks
}

func removeNode(list []*Node, target *Node) []*Node {
	if i := slices.Index(list, target); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}
