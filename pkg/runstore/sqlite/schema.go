package sqlite

// createRunsTable creates the runs table.
const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    status TEXT NOT NULL,
    steps TEXT,
    output TEXT,
    errors TEXT,
    usage TEXT NOT NULL,
    tool_calls INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    completed_at DATETIME
);
`

var createRunIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_tenant_started ON runs(tenant_id, started_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
}
