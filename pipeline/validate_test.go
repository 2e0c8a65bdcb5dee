package pipeline

import (
	"strings"
	"testing"
)

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	dr := NewDependencyResolver()
	dr.AddNode("c", []string{"b"})
	dr.AddNode("b", []string{"a"})
	dr.AddNode("a", nil)

	order, err := dr.TopologicalSort()
	if err != nil {
		t.Fatalf("sort failed: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("invalid order: %v", order)
	}
}

func TestTopologicalSortDetectsLongCycle(t *testing.T) {
	dr := NewDependencyResolver()
	dr.AddNode("a", []string{"c"})
	dr.AddNode("b", []string{"a"})
	dr.AddNode("c", []string{"b"})

	if _, err := dr.TopologicalSort(); err == nil {
		t.Fatal("expected cycle error")
	} else if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTopologicalSortRejectsUnknownDependency(t *testing.T) {
	dr := NewDependencyResolver()
	dr.AddNode("a", []string{"ghost"})

	if _, err := dr.TopologicalSort(); err == nil {
		t.Fatal("expected error for undefined dependency")
	}
}
