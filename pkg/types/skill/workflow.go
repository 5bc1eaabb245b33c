// Package skill defines the workflow data model executed by the skill
// runtime: workflow definitions, their steps, per-run execution state and
// the persisted run record.
package skill

import (
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// Tier is the execution class of a step. Compute steps run a registered
// function locally; the remaining tiers call a model through the capability
// router, each tier mapping to one logical capability.
type Tier string

const (
	TierCompute  Tier = "compute"
	TierExtract  Tier = "extract"
	TierClassify Tier = "classify"
	TierReason   Tier = "reason"
	TierGenerate Tier = "generate"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCompute, TierExtract, TierClassify, TierReason, TierGenerate:
		return true
	}
	return false
}

// IsAI reports whether the tier executes through a model provider.
func (t Tier) IsAI() bool {
	return t.Valid() && t != TierCompute
}

// Capability returns the logical capability an AI tier routes through.
// Compute tiers have no capability.
func (t Tier) Capability() llmtypes.Capability {
	switch t {
	case TierExtract:
		return llmtypes.CapabilityExtract
	case TierClassify:
		return llmtypes.CapabilityClassify
	case TierReason:
		return llmtypes.CapabilityReason
	case TierGenerate:
		return llmtypes.CapabilityGenerate
	}
	return ""
}

// ComputeSpec carries the fields specific to compute steps: a registered
// function name and its static arguments.
type ComputeSpec struct {
	Function string         `yaml:"function" mapstructure:"function"`
	Args     map[string]any `yaml:"args,omitempty" mapstructure:"args"`
}

// PromptSpec carries the fields specific to AI steps. Template is rendered
// against accumulated step outputs before the call; Tools lists registry
// names the model may invoke, bounded by MaxToolCalls.
type PromptSpec struct {
	System       string                 `yaml:"system,omitempty" mapstructure:"system"`
	Template     string                 `yaml:"template" mapstructure:"template"`
	Schema       *llmtypes.OutputSchema `yaml:"schema,omitempty" mapstructure:"schema"`
	Tools        []string               `yaml:"tools,omitempty" mapstructure:"tools"`
	MaxToolCalls int                    `yaml:"max_tool_calls,omitempty" mapstructure:"max_tool_calls"`
	MaxTokens    int                    `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Temperature  float32                `yaml:"temperature,omitempty" mapstructure:"temperature"`
}

// Step is one node in a workflow's dependency graph. Exactly one of Compute
// or Prompt is set, matching the tier.
type Step struct {
	ID        string       `yaml:"id"`
	Tier      Tier         `yaml:"tier"`
	DependsOn []string     `yaml:"depends_on,omitempty"`
	OutputKey string       `yaml:"output_key"`
	Compute   *ComputeSpec `yaml:"compute,omitempty"`
	Prompt    *PromptSpec  `yaml:"prompt,omitempty"`
}

// Workflow is an immutable, operator-authored definition of a skill: an
// ordered list of steps forming a DAG via DependsOn edges.
type Workflow struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// StepByID returns the step with the given id, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}
