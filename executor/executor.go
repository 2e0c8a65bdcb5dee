// Package executor runs a task graph on a background goroutine and hands
// back a completion handle, so the caller's goroutine stays free while
// the graph executes.
package executor

import (
	"github.com/ZacxDev/flowgraph/graph"
	"github.com/pkg/errors"
)

// Completion is a one-shot handle to an asynchronous graph run. Done
// closes when the run finishes; Wait blocks on it and returns the run's
// error, including any payload failure bridged out of graph.Wait.
type Completion struct {
	done chan struct{}
	err  error
}

// Done returns a channel that closes when the run has finished.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the run has finished and returns its error.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// Executor launches graph runs asynchronously. The zero value is ready to
// use.
type Executor struct{}

// New creates an Executor.
func New() *Executor { return &Executor{} }

// Start begins executing g on a new goroutine and returns a handle that
// completes when the run does. The graph must stay valid until then.
func (e *Executor) Start(g *graph.Graph) *Completion {
	c := &Completion{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		if g == nil {
			c.err = errors.New("graph is nil")
			return
		}
		if err := g.Start(); err != nil {
			c.err = err
			return
		}
		c.err = g.Wait()
	}()
	return c
}

// StartLoop runs g to completion the given number of times in sequence on
// a new goroutine. The first failing run stops the loop and carries its
// error into the handle.
func (e *Executor) StartLoop(g *graph.Graph, times int) *Completion {
	c := &Completion{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		if g == nil {
			c.err = errors.New("graph is nil")
			return
		}
		for i := 0; i < times; i++ {
			// Settle the previous iteration before starting the next.
			if err := g.Wait(); err != nil {
				c.err = err
				return
			}
			if err := g.Start(); err != nil {
				c.err = err
				return
			}
		}
		c.err = g.Wait()
	}()
	return c
}
