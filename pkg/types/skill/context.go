package skill

import (
	"github.com/pkg/errors"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ExecutionContext is the per-run mutable state owned by the scheduler for
// the run's lifetime. Step results are append-only: once a step completes,
// its output key is never overwritten. A run executes on a single goroutine,
// so the context is not synchronized.
type ExecutionContext struct {
	tenantID    string
	params      map[string]any
	stepResults map[string]any
	static      map[string]any
	usageByTier map[Tier]*llmtypes.Usage
	stepErrors  []StepError
	toolCalls   int
}

// NewExecutionContext builds the context for one run. static is the
// read-only business context; params are the caller-supplied run parameters,
// exposed to templates under the "params" key of the static scope.
func NewExecutionContext(tenantID string, params, static map[string]any) *ExecutionContext {
	merged := make(map[string]any, len(static)+1)
	for k, v := range static {
		merged[k] = v
	}
	if params != nil {
		merged["params"] = params
	}
	return &ExecutionContext{
		tenantID:    tenantID,
		params:      params,
		stepResults: make(map[string]any),
		static:      merged,
		usageByTier: make(map[Tier]*llmtypes.Usage),
	}
}

// TenantID returns the tenant the run executes for.
func (ec *ExecutionContext) TenantID() string {
	return ec.tenantID
}

// Params returns the caller-supplied run parameters.
func (ec *ExecutionContext) Params() map[string]any {
	return ec.params
}

// StoreResult records a completed step's output. Storing a key twice is a
// programming error and is rejected to preserve append-only semantics.
func (ec *ExecutionContext) StoreResult(key string, value any) error {
	if _, exists := ec.stepResults[key]; exists {
		return errors.Errorf("step result %q already stored", key)
	}
	ec.stepResults[key] = value
	return nil
}

// Result returns the stored output for a step's output key.
func (ec *ExecutionContext) Result(key string) (any, bool) {
	v, ok := ec.stepResults[key]
	return v, ok
}

// StepResults returns the accumulated step outputs. Callers must treat the
// map as read-only.
func (ec *ExecutionContext) StepResults() map[string]any {
	return ec.stepResults
}

// Static returns the read-only business context scope.
func (ec *ExecutionContext) Static() map[string]any {
	return ec.static
}

// AddUsage accumulates token usage for a tier.
func (ec *ExecutionContext) AddUsage(tier Tier, usage llmtypes.Usage) {
	u, ok := ec.usageByTier[tier]
	if !ok {
		u = &llmtypes.Usage{}
		ec.usageByTier[tier] = u
	}
	u.Add(usage)
}

// TotalUsage returns usage summed across every tier.
func (ec *ExecutionContext) TotalUsage() llmtypes.Usage {
	var total llmtypes.Usage
	for _, u := range ec.usageByTier {
		total.Add(*u)
	}
	return total
}

// UsageForTier returns the accumulated usage of one tier.
func (ec *ExecutionContext) UsageForTier(tier Tier) llmtypes.Usage {
	if u, ok := ec.usageByTier[tier]; ok {
		return *u
	}
	return llmtypes.Usage{}
}

// RecordError appends a step failure to the run's error list.
func (ec *ExecutionContext) RecordError(stepID string, err error) {
	ec.stepErrors = append(ec.stepErrors, StepError{StepID: stepID, Err: err})
}

// Errors returns the step failures recorded so far.
func (ec *ExecutionContext) Errors() []StepError {
	return ec.stepErrors
}

// IncrementToolCalls advances the run-wide tool call counter.
func (ec *ExecutionContext) IncrementToolCalls(n int) {
	ec.toolCalls += n
}

// ToolCallCount returns the number of tool calls executed during the run.
func (ec *ExecutionContext) ToolCallCount() int {
	return ec.toolCalls
}
