// Package runstore defines the write-only persistence sink for workflow run
// records. The scheduler writes each record twice: once at run start with
// status running, once at the terminal state. Store failures are logged by
// the caller, never propagated into the run.
package runstore

import (
	"context"

	"github.com/relaycrm/skillengine/pkg/logger"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// Store persists run records.
type Store interface {
	// CreateRun writes the initial running record.
	CreateRun(ctx context.Context, record *skilltypes.RunRecord) error
	// FinalizeRun updates the record with its terminal state. Called exactly
	// once per run.
	FinalizeRun(ctx context.Context, record *skilltypes.RunRecord) error
}

// LogStore is the default Store: it logs run transitions instead of
// persisting them, for embedders that track runs elsewhere.
type LogStore struct{}

// CreateRun logs the run start.
func (LogStore) CreateRun(ctx context.Context, record *skilltypes.RunRecord) error {
	logger.G(ctx).WithFields(map[string]any{
		"run_id":      record.ID,
		"workflow_id": record.WorkflowID,
		"tenant_id":   record.TenantID,
	}).Info("run started")
	return nil
}

// FinalizeRun logs the run's terminal state.
func (LogStore) FinalizeRun(ctx context.Context, record *skilltypes.RunRecord) error {
	logger.G(ctx).WithFields(map[string]any{
		"run_id":     record.ID,
		"status":     record.Status,
		"tool_calls": record.ToolCalls,
		"errors":     len(record.Errors),
	}).Info("run finished")
	return nil
}
