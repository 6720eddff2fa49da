package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// LibSQLStore implements RunStore on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path. The path should
// be a file URI, e.g. "file:/path/to/flowmesh.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Migrate applies pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// --- Runs ---

// SaveRun persists a finished run and its node results atomically.
func (s *LibSQLStore) SaveRun(ctx context.Context, result *schema.WorkflowExecutionResult) error {
	if result == nil || result.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "run result has no id")
	}

	finalOutput, err := nullableJSON(result.FinalOutput)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal final output").WithCause(err)
	}
	var runErr any
	if result.Error != nil {
		runErr, err = nullableJSON(result.Error)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "marshal run error").WithCause(err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "begin save run").WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, status, summary, final_output, error, completed_nodes, total_nodes, failed_at_node, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, summary=excluded.summary,
		   final_output=excluded.final_output, error=excluded.error,
		   completed_nodes=excluded.completed_nodes, total_nodes=excluded.total_nodes,
		   failed_at_node=excluded.failed_at_node,
		   completed_at=excluded.completed_at, duration_ms=excluded.duration_ms`,
		result.ID, string(result.Status), result.Summary, finalOutput, runErr,
		result.CompletedNodes, result.TotalNodes, nullStr(result.FailedAtNode),
		result.StartedAt, result.CompletedAt, result.DurationMs,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "insert run").WithCause(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_results WHERE run_id = ?`, result.ID); err != nil {
		return schema.NewError(schema.ErrCodeStore, "clear node results").WithCause(err)
	}

	for i, nr := range result.NodeResults {
		output, err := nullableJSON(nr.Output)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "marshal node output").WithCause(err)
		}
		var nodeErr any
		if nr.Error != nil {
			nodeErr, err = nullableJSON(nr.Error)
			if err != nil {
				return schema.NewError(schema.ErrCodeStore, "marshal node error").WithCause(err)
			}
		}
		logs, err := nullableJSON(nr.Logs)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "marshal node logs").WithCause(err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO node_results (run_id, position, node_id, label, status, output, error, duration_ms, logs)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, i, nr.NodeID, nr.Label, string(nr.Status), output, nodeErr, nr.DurationMs, logs,
		)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "insert node result").WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return schema.NewError(schema.ErrCodeStore, "commit save run").WithCause(err)
	}
	return nil
}

// GetRun loads a stored run with its node results in execution order.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.WorkflowExecutionResult, error) {
	result := &schema.WorkflowExecutionResult{ID: id}
	var (
		status                sql.NullString
		finalOutput, runErr   sql.NullString
		failedAtNode          sql.NullString
		startedAt, completedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, summary, final_output, error, completed_nodes, total_nodes, failed_at_node, started_at, completed_at, duration_ms
		 FROM runs WHERE id = ?`, id,
	).Scan(&status, &result.Summary, &finalOutput, &runErr,
		&result.CompletedNodes, &result.TotalNodes, &failedAtNode,
		&startedAt, &completedAt, &result.DurationMs)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load run").WithCause(err)
	}

	result.Status = schema.RunStatus(status.String)
	result.FailedAtNode = failedAtNode.String
	result.StartedAt = startedAt
	result.CompletedAt = completedAt
	if finalOutput.Valid {
		_ = json.Unmarshal([]byte(finalOutput.String), &result.FinalOutput)
	}
	if runErr.Valid {
		_ = json.Unmarshal([]byte(runErr.String), &result.Error)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, label, status, output, error, duration_ms, logs
		 FROM node_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load node results").WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		var nr schema.NodeExecutionResult
		var nodeStatus string
		var output, nodeErr, logs sql.NullString
		if err := rows.Scan(&nr.NodeID, &nr.Label, &nodeStatus, &output, &nodeErr, &nr.DurationMs, &logs); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan node result").WithCause(err)
		}
		nr.Status = schema.NodeStatus(nodeStatus)
		if output.Valid {
			_ = json.Unmarshal([]byte(output.String), &nr.Output)
		}
		if nodeErr.Valid {
			_ = json.Unmarshal([]byte(nodeErr.String), &nr.Error)
		}
		if logs.Valid {
			_ = json.Unmarshal([]byte(logs.String), &nr.Logs)
		}
		result.NodeResults = append(result.NodeResults, nr)
	}
	return result, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT id, status, summary, completed_nodes, total_nodes, failed_at_node, duration_ms, started_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list runs").WithCause(err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var failedAtNode sql.NullString
		var startedAt time.Time
		if err := rows.Scan(&r.ID, &r.Status, &r.Summary, &r.CompletedNodes, &r.TotalNodes, &failedAtNode, &r.DurationMs, &startedAt); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan run summary").WithCause(err)
		}
		r.FailedAtNode = failedAtNode.String
		r.StartedAt = startedAt.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its node results.
func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete run").WithCause(err)
	}
	return checkRowsAffected(res, "run", id)
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	return value, err
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s %q not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
