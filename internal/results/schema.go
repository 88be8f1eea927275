package results

// createTrialsTableSQL stores one row per finished trial.
const createTrialsTableSQL = `
CREATE TABLE IF NOT EXISTS trials (
    run_id TEXT PRIMARY KEY,
    function_name TEXT NOT NULL,
    workload TEXT NOT NULL,
    memory_mb INTEGER NOT NULL,
    secondary INTEGER NOT NULL,
    reserved_concurrency INTEGER NOT NULL,
    trial INTEGER NOT NULL,
    aborted INTEGER NOT NULL DEFAULT 0,
    successes INTEGER NOT NULL,
    failures INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// createRecordsTableSQL stores invocation records. latency_ms is NULL for
// calls without a usable latency.
const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    invocation INTEGER NOT NULL,
    ts_start_ms INTEGER NOT NULL,
    ts_end_ms INTEGER NOT NULL,
    latency_ms INTEGER,
    workload TEXT NOT NULL,
    function_name TEXT NOT NULL,
    region TEXT NOT NULL,
    memory_mb INTEGER NOT NULL,
    reserved_concurrency INTEGER NOT NULL,
    batch_events INTEGER NOT NULL,
    events_generated INTEGER NOT NULL,
    object_bytes INTEGER NOT NULL,
    multipart_part_mb INTEGER NOT NULL,
    multipart_parts INTEGER NOT NULL,
    is_cold_start INTEGER NOT NULL DEFAULT 0,
    s3_bucket TEXT NOT NULL,
    s3_key TEXT NOT NULL,
    error TEXT,
    error_code TEXT,
    trial INTEGER NOT NULL,
    source TEXT NOT NULL,
    UNIQUE (run_id, invocation, source)
)`

var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_combination ON records(workload, memory_mb, reserved_concurrency)`,
	`CREATE INDEX IF NOT EXISTS idx_trials_function ON trials(function_name)`,
}

// allSchemaSQL returns the schema statements in execution order.
func allSchemaSQL() []string {
	stmts := []string{createTrialsTableSQL, createRecordsTableSQL}
	return append(stmts, createIndexesSQL...)
}
