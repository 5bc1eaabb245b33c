package skill

import (
	"time"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	// RunStatusRunning is set when the run record is first written.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted means every step succeeded.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial means at least one step failed but the final step
	// still produced an output.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed means the final step in topological order failed.
	RunStatusFailed RunStatus = "failed"
)

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// StepOutcome records how a single step ended.
type StepOutcome struct {
	StepID     string     `json:"stepId"`
	OutputKey  string     `json:"outputKey"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

// StepError pairs a failed step with its error for the run's error list.
type StepError struct {
	StepID string
	Err    error
}

func (e StepError) Error() string {
	return "step " + e.StepID + ": " + e.Err.Error()
}

func (e StepError) Unwrap() error {
	return e.Err
}

// RunRecord is the persisted representation of one workflow execution.
// It is created with status running and finalized exactly once.
type RunRecord struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	TenantID    string         `json:"tenantId"`
	Status      RunStatus      `json:"status"`
	Steps       []StepOutcome  `json:"steps,omitempty"`
	Output      any            `json:"output,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	Usage       llmtypes.Usage `json:"usage"`
	ToolCalls   int            `json:"toolCalls"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`
}
