package executor

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZacxDev/flowgraph/graph"
	"github.com/pkg/errors"
)

func TestStartRunsGraphAsynchronously(t *testing.T) {
	var count atomic.Int64

	g := graph.New(2, false)
	a, _ := g.PushFunc(func() error { count.Add(1); return nil })
	b, _ := g.PushFunc(func() error { count.Add(1); return nil })
	if err := b.Depend(a); err != nil {
		t.Fatal(err)
	}

	c := New().Start(g)
	if err := c.Wait(); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if count.Load() != 2 {
		t.Errorf("expected 2 executions, got %d", count.Load())
	}
}

func TestCompletionDoneCloses(t *testing.T) {
	g := graph.New(1, false)
	g.PushFunc(func() error { return nil })

	c := New().Start(g)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("completion never signalled")
	}
	if err := c.Wait(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStartBridgesFailures(t *testing.T) {
	g := graph.New(1, false)
	g.PushFunc(func() error { return errors.New("boom") })

	err := New().Start(g).Wait()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected error containing \"boom\", got %v", err)
	}
}

func TestStartLoopRunsGraphRepeatedly(t *testing.T) {
	var count atomic.Int64

	g := graph.New(2, false)
	g.PushFunc(func() error { count.Add(1); return nil })

	if err := New().StartLoop(g, 3).Wait(); err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if count.Load() != 3 {
		t.Errorf("expected 3 executions, got %d", count.Load())
	}
}

func TestStartNilGraphFails(t *testing.T) {
	if err := New().Start(nil).Wait(); err == nil {
		t.Error("expected an error for a nil graph")
	}
}
