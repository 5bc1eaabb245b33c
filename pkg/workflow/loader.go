// Package workflow loads and validates workflow definitions from YAML.
// Validation is structural only: step IDs, dependencies, tier and spec
// consistency, and acyclicity. Whether a referenced compute function exists
// is checked at execution time against the tool registry.
package workflow

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// Load reads a workflow definition from a YAML file and validates it.
func Load(path string) (*skilltypes.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read workflow file %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML workflow definition and validates it.
func Parse(data []byte) (*skilltypes.Workflow, error) {
	var workflow skilltypes.Workflow
	if err := yaml.Unmarshal(data, &workflow); err != nil {
		return nil, skilltypes.WrapConfigurationError(err, "failed to parse workflow YAML")
	}
	if err := Validate(&workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// Validate checks a workflow definition for structural errors. All checks
// return ConfigurationError so callers can distinguish bad definitions from
// runtime failures.
func Validate(workflow *skilltypes.Workflow) error {
	if workflow.ID == "" {
		return skilltypes.NewConfigurationError("workflow has no id")
	}
	if len(workflow.Steps) == 0 {
		return skilltypes.NewConfigurationError("workflow %s has no steps", workflow.ID)
	}

	seenIDs := make(map[string]bool, len(workflow.Steps))
	seenKeys := make(map[string]string, len(workflow.Steps))
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.ID == "" {
			return skilltypes.NewConfigurationError("workflow %s has a step with no id", workflow.ID)
		}
		if seenIDs[step.ID] {
			return skilltypes.NewConfigurationError("workflow %s has duplicate step id %q", workflow.ID, step.ID)
		}
		seenIDs[step.ID] = true

		if step.OutputKey == "" {
			return skilltypes.NewConfigurationError("step %s has no output_key", step.ID)
		}
		if prev, ok := seenKeys[step.OutputKey]; ok {
			return skilltypes.NewConfigurationError(
				"steps %s and %s both write output_key %q", prev, step.ID, step.OutputKey)
		}
		seenKeys[step.OutputKey] = step.ID

		if err := validateStepSpec(step); err != nil {
			return err
		}
	}

	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		for _, dep := range step.DependsOn {
			if !seenIDs[dep] {
				return skilltypes.NewConfigurationError(
					"step %s depends on unknown step %q", step.ID, dep)
			}
			if dep == step.ID {
				return skilltypes.NewConfigurationError("step %s depends on itself", step.ID)
			}
		}
	}

	return validateAcyclic(workflow)
}

func validateStepSpec(step *skilltypes.Step) error {
	switch {
	case step.Tier == skilltypes.TierCompute:
		if step.Compute == nil {
			return skilltypes.NewConfigurationError("compute step %s has no compute spec", step.ID)
		}
		if step.Compute.Function == "" {
			return skilltypes.NewConfigurationError("compute step %s names no function", step.ID)
		}
		if step.Prompt != nil {
			return skilltypes.NewConfigurationError("compute step %s must not carry a prompt spec", step.ID)
		}
	case step.Tier.IsAI():
		if step.Prompt == nil {
			return skilltypes.NewConfigurationError("%s step %s has no prompt spec", step.Tier, step.ID)
		}
		if step.Prompt.Template == "" {
			return skilltypes.NewConfigurationError("%s step %s has an empty template", step.Tier, step.ID)
		}
		if step.Compute != nil {
			return skilltypes.NewConfigurationError("%s step %s must not carry a compute spec", step.Tier, step.ID)
		}
		if step.Prompt.MaxToolCalls < 0 {
			return skilltypes.NewConfigurationError("step %s has negative max_tool_calls", step.ID)
		}
	default:
		return skilltypes.NewConfigurationError("step %s has unknown tier %q", step.ID, step.Tier)
	}
	return nil
}

// validateAcyclic walks the dependency graph with the usual three-color DFS.
func validateAcyclic(workflow *skilltypes.Workflow) error {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(workflow.Steps))

	var visit func(step *skilltypes.Step) error
	visit = func(step *skilltypes.Step) error {
		switch marks[step.ID] {
		case visited:
			return nil
		case visiting:
			return skilltypes.NewConfigurationError(
				"workflow %s has a dependency cycle through step %s", workflow.ID, step.ID)
		}
		marks[step.ID] = visiting
		for _, dep := range step.DependsOn {
			if err := visit(workflow.StepByID(dep)); err != nil {
				return err
			}
		}
		marks[step.ID] = visited
		return nil
	}

	for i := range workflow.Steps {
		if err := visit(&workflow.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}
