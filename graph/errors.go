package graph

import "github.com/pkg/errors"

// Error kinds surfaced by the graph API. Use errors.Is to classify; the
// returned errors wrap these with call-site context.
var (
	// ErrInvalidArgument reports API misuse: a nil node, an empty task
	// handle, a self edge, or a duplicate node.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCircularDependency reports a rejected edge whose reverse edge
	// already exists.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrExecuting reports an operation that is disallowed while the graph
	// is running, such as push, erase, or a second start.
	ErrExecuting = errors.New("graph is executing")
)
