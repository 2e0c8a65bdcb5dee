package pipeline

import (
	"github.com/pkg/errors"
)

// DependencyResolver validates the declarative job specs before they are
// turned into an executable graph: every referenced dependency must
// exist, and the dependency relation must be acyclic, including cycles
// longer than two jobs that the engine's direct back-edge check cannot
// see. TopologicalSort returns a valid execution order.
type DependencyResolver interface {
	AddNode(name string, dependencies []string)
	TopologicalSort() ([]string, error)
}

type dependencyResolver struct {
	graph map[string][]string
}

func NewDependencyResolver() DependencyResolver {
	return &dependencyResolver{
		graph: make(map[string][]string),
	}
}

func (dr *dependencyResolver) AddNode(name string, dependencies []string) {
	dr.graph[name] = dependencies
}

func (dr *dependencyResolver) TopologicalSort() ([]string, error) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if onStack[name] {
			return errors.Errorf("dependency cycle involving job %q", name)
		}
		if visited[name] {
			return nil
		}
		visited[name] = true
		onStack[name] = true

		deps, ok := dr.graph[name]
		if !ok {
			return errors.Errorf("job %q is referenced as a dependency but not defined", name)
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		onStack[name] = false
		order = append(order, name)
		return nil
	}

	for name := range dr.graph {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}
