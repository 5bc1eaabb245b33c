package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// JSONField handles JSON marshaling of structured columns.
type JSONField[T any] struct {
	Data T
}

// Scan implements sql.Scanner.
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, &j.Data)
}

// Value implements driver.Valuer.
func (j JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

// dbRunRecord is the runs table row shape.
type dbRunRecord struct {
	ID          string                               `db:"id"`
	WorkflowID  string                               `db:"workflow_id"`
	TenantID    string                               `db:"tenant_id"`
	Status      string                               `db:"status"`
	Steps       JSONField[[]skilltypes.StepOutcome]  `db:"steps"`
	Output      JSONField[any]                       `db:"output"`
	Errors      JSONField[[]string]                  `db:"errors"`
	Usage       JSONField[llmtypes.Usage]            `db:"usage"`
	ToolCalls   int                                  `db:"tool_calls"`
	StartedAt   time.Time                            `db:"started_at"`
	CompletedAt sql.NullTime                         `db:"completed_at"`
}

func fromRunRecord(record *skilltypes.RunRecord) dbRunRecord {
	row := dbRunRecord{
		ID:         record.ID,
		WorkflowID: record.WorkflowID,
		TenantID:   record.TenantID,
		Status:     string(record.Status),
		Steps:      JSONField[[]skilltypes.StepOutcome]{Data: record.Steps},
		Output:     JSONField[any]{Data: record.Output},
		Errors:     JSONField[[]string]{Data: record.Errors},
		Usage:      JSONField[llmtypes.Usage]{Data: record.Usage},
		ToolCalls:  record.ToolCalls,
		StartedAt:  record.StartedAt.UTC(),
	}
	if !record.CompletedAt.IsZero() {
		row.CompletedAt = sql.NullTime{Time: record.CompletedAt.UTC(), Valid: true}
	}
	return row
}

func (row *dbRunRecord) toRunRecord() *skilltypes.RunRecord {
	record := &skilltypes.RunRecord{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		TenantID:   row.TenantID,
		Status:     skilltypes.RunStatus(row.Status),
		Steps:      row.Steps.Data,
		Output:     row.Output.Data,
		Errors:     row.Errors.Data,
		Usage:      row.Usage.Data,
		ToolCalls:  row.ToolCalls,
		StartedAt:  row.StartedAt,
	}
	if row.CompletedAt.Valid {
		record.CompletedAt = row.CompletedAt.Time
	}
	return record
}
