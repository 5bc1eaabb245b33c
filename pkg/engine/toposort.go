package engine

import (
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// topoSort orders a workflow's steps so every step appears after all of its
// dependencies. The sort is a stable depth-first traversal: steps are
// visited in declaration order and dependencies in declared order, so
// identical workflows always execute in the same order. A cycle or an
// unknown dependency is a configuration error detected before any step runs.
func topoSort(workflow *skilltypes.Workflow) ([]*skilltypes.Step, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	marks := make(map[string]int, len(workflow.Steps))
	order := make([]*skilltypes.Step, 0, len(workflow.Steps))

	var visit func(step *skilltypes.Step, trail []string) error
	visit = func(step *skilltypes.Step, trail []string) error {
		switch marks[step.ID] {
		case visited:
			return nil
		case visiting:
			return skilltypes.NewConfigurationError(
				"workflow %s has a dependency cycle through step %s (path: %v)",
				workflow.ID, step.ID, append(trail, step.ID))
		}

		marks[step.ID] = visiting
		for _, depID := range step.DependsOn {
			dep := workflow.StepByID(depID)
			if dep == nil {
				return skilltypes.NewConfigurationError(
					"step %s depends on unknown step %q", step.ID, depID)
			}
			if err := visit(dep, append(trail, step.ID)); err != nil {
				return err
			}
		}
		marks[step.ID] = visited
		order = append(order, step)
		return nil
	}

	for i := range workflow.Steps {
		if err := visit(&workflow.Steps[i], nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
