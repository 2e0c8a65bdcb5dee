package graph

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func runGraph(t *testing.T, g *Graph) {
	t.Helper()
	if err := g.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func TestPushPreconditions(t *testing.T) {
	g := New(2, false)

	if _, err := g.Push(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil node: expected ErrInvalidArgument, got %v", err)
	}

	n := noop()
	if _, err := g.Push(n); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if _, err := g.Push(n); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("duplicate node: expected ErrInvalidArgument, got %v", err)
	}

	stale := noop()
	stale.storeState(StateCompleted)
	if _, err := g.Push(stale); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("non-ready node: expected ErrInvalidArgument, got %v", err)
	}

	if _, err := g.PushFunc(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil func: expected ErrInvalidArgument, got %v", err)
	}
}

func TestEraseUnlinksNode(t *testing.T) {
	g := New(1, false)
	a := mustPush(t, g, noop())
	b := mustPush(t, g, noop())
	c := mustPush(t, g, noop())
	b.Depend(a)
	b.Precede(c)

	ok, err := g.Erase(&b)
	if err != nil || !ok {
		t.Fatalf("erase failed: ok=%v err=%v", ok, err)
	}
	if !b.Empty() {
		t.Error("erased handle should be invalidated")
	}
	if g.TaskSize() != 2 {
		t.Errorf("expected 2 nodes after erase, got %d", g.TaskSize())
	}
	if a.SuccessorsSize() != 0 || c.PredecessorsSize() != 0 {
		t.Error("erase should unlink the node from its neighbors")
	}

	// Erasing an empty handle or a foreign node reports false.
	if ok, err := g.Erase(&b); ok || err != nil {
		t.Errorf("erasing empty handle: ok=%v err=%v", ok, err)
	}
	other := New(1, false)
	foreign := mustPush(t, other, noop())
	if ok, err := g.Erase(&foreign); ok || err != nil {
		t.Errorf("erasing foreign task: ok=%v err=%v", ok, err)
	}
}

func TestLinearPipeline(t *testing.T) {
	var mu sync.Mutex
	var seq []int
	appendStep := func(v int) func() error {
		return func() error {
			mu.Lock()
			seq = append(seq, v)
			mu.Unlock()
			return nil
		}
	}

	g := New(2, false)
	a, _ := g.PushFunc(appendStep(1))
	b, _ := g.PushFunc(appendStep(2))
	c, _ := g.PushFunc(appendStep(3))
	if err := b.Depend(a); err != nil {
		t.Fatal(err)
	}
	if err := c.Depend(b); err != nil {
		t.Fatal(err)
	}

	runGraph(t, g)

	if len(seq) != 3 || seq[0] != 1 || seq[1] != 2 || seq[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", seq)
	}
}

func TestDiamondOrdering(t *testing.T) {
	type stamp struct {
		start, finish time.Time
	}
	var mu sync.Mutex
	stamps := make(map[string]*stamp)
	record := func(name string, d time.Duration) func() error {
		return func() error {
			start := time.Now()
			time.Sleep(d)
			mu.Lock()
			stamps[name] = &stamp{start: start, finish: time.Now()}
			mu.Unlock()
			return nil
		}
	}

	g := New(4, false)
	a, _ := g.PushFunc(record("a", 10*time.Millisecond))
	b, _ := g.PushFunc(record("b", 30*time.Millisecond))
	c, _ := g.PushFunc(record("c", 30*time.Millisecond))
	d, _ := g.PushFunc(record("d", time.Millisecond))
	b.Depend(a)
	c.Depend(a)
	d.Depend(b, c)

	runGraph(t, g)

	if stamps["d"].start.Before(stamps["b"].finish) {
		t.Error("d started before b finished")
	}
	if stamps["d"].start.Before(stamps["c"].finish) {
		t.Error("d started before c finished")
	}
	if stamps["b"].start.Before(stamps["a"].finish) {
		t.Error("b started before a finished")
	}
}

func TestPushWhileExecutingFails(t *testing.T) {
	g := New(1, false)
	release := make(chan struct{})
	g.PushFunc(func() error {
		<-release
		return nil
	})

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		close(release)
		g.Wait()
	}()

	if _, err := g.Push(noop()); !errors.Is(err, ErrExecuting) {
		t.Errorf("expected ErrExecuting, got %v", err)
	}
	if err := g.Start(); !errors.Is(err, ErrExecuting) {
		t.Errorf("double start: expected ErrExecuting, got %v", err)
	}
}

func TestEraseWhileExecutingFails(t *testing.T) {
	g := New(1, false)
	a, _ := g.PushFunc(func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := g.Erase(&a); !errors.Is(err, ErrExecuting) {
		t.Errorf("expected ErrExecuting, got %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Errorf("wait after rejected erase should succeed, got %v", err)
	}
}

func TestFailurePropagation(t *testing.T) {
	var bRan atomic.Bool

	g := New(2, false)
	a, _ := g.PushFunc(func() error {
		return errors.New("boom")
	})
	b, _ := g.PushFunc(func() error {
		bRan.Store(true)
		return nil
	})
	if err := b.Depend(a); err != nil {
		t.Fatal(err)
	}

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	err := g.Wait()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected error containing \"boom\", got %v", err)
	}
	if bRan.Load() {
		t.Error("dependent of a failed node must not run")
	}
}

func TestPanicPropagation(t *testing.T) {
	g := New(2, false)
	g.PushFunc(func() error {
		panic("kaboom")
	})

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	err := g.Wait()
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("expected error containing \"kaboom\", got %v", err)
	}
}

func TestWaitForTimeoutThenCompletion(t *testing.T) {
	g := New(1, false)
	g.PushFunc(func() error {
		time.Sleep(time.Second)
		return nil
	})

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}

	status, err := g.WaitFor(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("wait_for failed: %v", err)
	}
	if status != StatusTimeout {
		t.Errorf("expected StatusTimeout, got %v", status)
	}

	if err := g.Wait(); err != nil {
		t.Errorf("wait after timeout should succeed, got %v", err)
	}
}

func TestWaitForReady(t *testing.T) {
	g := New(2, false)
	g.PushFunc(func() error { return nil })

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	status, err := g.WaitFor(2 * time.Second)
	if err != nil {
		t.Fatalf("wait_for failed: %v", err)
	}
	if status != StatusReady {
		t.Errorf("expected StatusReady, got %v", status)
	}
}

func TestLongChainRunsOnceInOrder(t *testing.T) {
	const chainLen = 1000

	var counter atomic.Int64
	var concurrent, peak atomic.Int64

	g := New(4, false)
	var prev Task
	for i := 0; i < chainLen; i++ {
		task, err := g.PushFunc(func() error {
			cur := concurrent.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			counter.Add(1)
			concurrent.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if err := task.Depend(prev); err != nil {
				t.Fatal(err)
			}
		}
		prev = task
	}

	runGraph(t, g)

	if counter.Load() != chainLen {
		t.Errorf("expected %d executions, got %d", chainLen, counter.Load())
	}
	if peak.Load() > 1 {
		t.Errorf("linear chain ran with concurrency %d", peak.Load())
	}
}

func TestIndependentRowSums(t *testing.T) {
	matrix := [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	var total atomic.Int64

	g := New(3, true)
	for _, row := range matrix {
		row := row
		g.PushFunc(func() error {
			sum := 0
			for _, v := range row {
				sum += v
			}
			total.Add(int64(sum))
			return nil
		})
	}

	runGraph(t, g)

	if total.Load() != 45 {
		t.Errorf("expected total 45, got %d", total.Load())
	}
}

func TestRerunExecutesEveryNodeAgain(t *testing.T) {
	var count atomic.Int64

	g := New(2, false)
	a, _ := g.PushFunc(func() error { count.Add(1); return nil })
	b, _ := g.PushFunc(func() error { count.Add(1); return nil })
	b.Depend(a)

	runGraph(t, g)
	runGraph(t, g)

	if count.Load() != 4 {
		t.Errorf("expected 4 executions over two runs, got %d", count.Load())
	}
	if a.State() != StateCompleted || b.State() != StateCompleted {
		t.Error("nodes should be Completed after the run")
	}
}

func TestTerminateStopsClaiming(t *testing.T) {
	var ran atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})

	g := New(1, false)
	a, _ := g.PushFunc(func() error {
		close(started)
		<-release
		ran.Add(1)
		return nil
	})
	b, _ := g.PushFunc(func() error {
		ran.Add(1)
		return nil
	})
	b.Depend(a)

	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	<-started
	g.Terminate(false)
	close(release)

	if err := g.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if ran.Load() != 1 {
		t.Errorf("expected only the in-flight node to finish, ran %d", ran.Load())
	}
}

func TestClearEmptiesGraph(t *testing.T) {
	g := New(2, false)
	g.PushFunc(func() error { return nil })
	g.PushFunc(func() error { return nil })

	g.Clear()

	if !g.Empty() || g.TaskSize() != 0 {
		t.Error("clear should drop every node")
	}

	// A cleared graph starts and finishes trivially.
	runGraph(t, g)
}

func TestAdoptTransfersEverything(t *testing.T) {
	src := New(7, true)
	a := mustPush(t, src, noop())
	b := mustPush(t, src, noop())
	b.Depend(a)

	dst := New(1, false)
	dst.Adopt(src)

	if dst.TaskSize() != 2 || dst.ThreadCount() != 7 || !dst.OptimizedThreads() {
		t.Error("adopt should transfer nodes and configuration")
	}
	if src.TaskSize() != 0 {
		t.Error("source graph should be empty after adopt")
	}

	runGraph(t, dst)
}

func TestOptimizedThreadsRun(t *testing.T) {
	var count atomic.Int64

	g := New(8, true)
	g.PushFunc(func() error { count.Add(1); return nil })

	runGraph(t, g)

	if count.Load() != 1 {
		t.Errorf("expected 1 execution, got %d", count.Load())
	}
}

func TestAccessors(t *testing.T) {
	g := New(3, false)
	if !g.Empty() {
		t.Error("new graph should be empty")
	}

	a := mustPush(t, g, noop())
	mustPush(t, g, noop())

	if g.Empty() || g.TaskSize() != 2 {
		t.Errorf("expected 2 tasks, got %d", g.TaskSize())
	}
	if g.TaskAt(0) != a {
		t.Error("TaskAt should preserve insertion order")
	}
	if len(g.Tasks()) != 2 {
		t.Error("Tasks should return every node")
	}

	g.SetThreadCount(5)
	if g.ThreadCount() != 5 {
		t.Error("thread count not updated")
	}
	g.SetOptimizedThreads(true)
	if !g.OptimizedThreads() {
		t.Error("optimized threads not updated")
	}
}
