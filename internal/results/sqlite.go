package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/pkg/types"
)

const recordColumns = `run_id, invocation, ts_start_ms, ts_end_ms, latency_ms,
	workload, function_name, region, memory_mb, reserved_concurrency,
	batch_events, events_generated, object_bytes, multipart_part_mb, multipart_parts,
	is_cold_start, s3_bucket, s3_key, error, error_code, trial, source`

// SQLiteStore keeps trials and their records in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // single writer

	insertRecordStmt *sql.Stmt
	insertTrialStmt  *sql.Stmt
	now              func() time.Time
}

// OpenSQLiteStore opens or creates the store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("results: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range allSchemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("results: failed to initialize schema: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 22), ", ")
	insertRecord, err := db.Prepare(`INSERT OR REPLACE INTO records (` + recordColumns + `) VALUES (` + placeholders + `)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("results: failed to prepare record insert: %w", err)
	}
	insertTrial, err := db.Prepare(`
		INSERT OR REPLACE INTO trials (
			run_id, function_name, workload, memory_mb, secondary,
			reserved_concurrency, trial, aborted, successes, failures, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		insertRecord.Close()
		db.Close()
		return nil, fmt.Errorf("results: failed to prepare trial insert: %w", err)
	}

	return &SQLiteStore{
		db:               db,
		path:             path,
		insertRecordStmt: insertRecord,
		insertTrialStmt:  insertTrial,
		now:              time.Now,
	}, nil
}

// WriteTrial stores a trial and its records in one transaction. Writing the
// same run id again replaces its rows.
func (s *SQLiteStore) WriteTrial(ctx context.Context, trial *types.TrialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("results: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, trial.RunID); err != nil {
		return fmt.Errorf("results: clear run %s: %w", trial.RunID, err)
	}

	ok, failed := trial.Counts()
	c := trial.Combination
	if _, err := tx.StmtContext(ctx, s.insertTrialStmt).ExecContext(ctx,
		trial.RunID, trial.FunctionName, string(c.Workload), c.MemoryMB, c.Secondary,
		c.Concurrency, trial.Trial, boolToInt(trial.Aborted), ok, failed, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("results: insert trial %s: %w", trial.RunID, err)
	}

	stmt := tx.StmtContext(ctx, s.insertRecordStmt)
	for i := range trial.Records {
		if err := insertRecord(ctx, stmt, &trial.Records[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("results: commit trial %s: %w", trial.RunID, err)
	}

	logging.Component("results").Debug("trial stored",
		"run_id", trial.RunID, "records", len(trial.Records), "db", s.path)
	return nil
}

func insertRecord(ctx context.Context, stmt *sql.Stmt, r *types.InvocationRecord) error {
	var latency sql.NullInt64
	if r.LatencyMs != nil {
		latency = sql.NullInt64{Int64: *r.LatencyMs, Valid: true}
	}
	_, err := stmt.ExecContext(ctx,
		r.RunID, r.Invocation, r.TsStartMs, r.TsEndMs, latency,
		string(r.Workload), r.FunctionName, r.Region, r.MemoryMB, r.ReservedConcurrency,
		r.BatchEvents, r.EventsGenerated, r.ObjectBytes, r.MultipartPartMB, r.MultipartParts,
		boolToInt(r.ColdStart), r.S3Bucket, r.S3Key, nullString(r.Error), nullString(r.ErrorCode),
		r.Trial, string(r.Source),
	)
	if err != nil {
		return fmt.Errorf("results: insert record %s/%d: %w", r.RunID, r.Invocation, err)
	}
	return nil
}

// Records returns the records of runID in insertion order, or every record
// when runID is empty.
func (s *SQLiteStore) Records(ctx context.Context, runID string) ([]types.InvocationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("results: query records: %w", err)
	}
	defer rows.Close()

	var out []types.InvocationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (types.InvocationRecord, error) {
	var (
		r                types.InvocationRecord
		latency          sql.NullInt64
		workload, source string
		coldStart        int
		errText, code    sql.NullString
	)
	if err := rows.Scan(
		&r.RunID, &r.Invocation, &r.TsStartMs, &r.TsEndMs, &latency,
		&workload, &r.FunctionName, &r.Region, &r.MemoryMB, &r.ReservedConcurrency,
		&r.BatchEvents, &r.EventsGenerated, &r.ObjectBytes, &r.MultipartPartMB, &r.MultipartParts,
		&coldStart, &r.S3Bucket, &r.S3Key, &errText, &code, &r.Trial, &source,
	); err != nil {
		return types.InvocationRecord{}, fmt.Errorf("results: scan record: %w", err)
	}
	if latency.Valid {
		v := latency.Int64
		r.LatencyMs = &v
	}
	r.Workload = types.WorkloadKind(workload)
	r.Source = types.RecordSource(source)
	r.ColdStart = coldStart != 0
	r.Error = errText.String
	r.ErrorCode = code.String
	return r, nil
}

// TrialInfo is the stored summary of one trial.
type TrialInfo struct {
	RunID        string
	FunctionName string
	Combination  types.FactorCombination
	Trial        int
	Aborted      bool
	Successes    int
	Failures     int
	CreatedAt    time.Time
}

// Trials lists stored trials ordered by function and trial number.
func (s *SQLiteStore) Trials(ctx context.Context) ([]TrialInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, function_name, workload, memory_mb, secondary, reserved_concurrency,
		       trial, aborted, successes, failures, created_at
		FROM trials ORDER BY function_name, trial`)
	if err != nil {
		return nil, fmt.Errorf("results: query trials: %w", err)
	}
	defer rows.Close()

	var out []TrialInfo
	for rows.Next() {
		var (
			t         TrialInfo
			workload  string
			aborted   int
			createdMs int64
		)
		if err := rows.Scan(&t.RunID, &t.FunctionName, &workload, &t.Combination.MemoryMB,
			&t.Combination.Secondary, &t.Combination.Concurrency, &t.Trial, &aborted,
			&t.Successes, &t.Failures, &createdMs); err != nil {
			return nil, fmt.Errorf("results: scan trial: %w", err)
		}
		t.Combination.Workload = types.WorkloadKind(workload)
		t.Aborted = aborted != 0
		t.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertRecordStmt.Close()
	s.insertTrialStmt.Close()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
