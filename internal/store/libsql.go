package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/sentraops/sentra/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. history log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Playbooks ---

func (s *LibSQLStore) CreatePlaybook(ctx context.Context, pb *Playbook) error {
	def, err := json.Marshal(pb.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if pb.Version <= 0 {
		pb.Version = 1
	}
	if pb.Status == "" {
		pb.Status = schema.PlaybookDraft
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO playbooks (id, version, definition, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pb.ID, pb.Version, string(def), string(pb.Status),
		timeOrNow(pb.CreatedAt), timeOrNow(pb.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetPlaybook(ctx context.Context, id string, version int) (*Playbook, error) {
	pb := &Playbook{}
	var defJSON, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, definition, status, created_at, updated_at
		 FROM playbooks WHERE id = ? AND version = ?`, id, version,
	).Scan(&pb.ID, &pb.Version, &defJSON, &status, &pb.CreatedAt, &pb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("playbook", fmt.Sprintf("%s@v%d", id, version))
	}
	if err != nil {
		return nil, err
	}
	pb.Status = schema.PlaybookStatus(status)
	if err := json.Unmarshal([]byte(defJSON), &pb.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return pb, nil
}

func (s *LibSQLStore) GetLatestPlaybook(ctx context.Context, id string) (*Playbook, error) {
	pb := &Playbook{}
	var defJSON, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, definition, status, created_at, updated_at
		 FROM playbooks WHERE id = ? ORDER BY version DESC LIMIT 1`, id,
	).Scan(&pb.ID, &pb.Version, &defJSON, &status, &pb.CreatedAt, &pb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("playbook", id)
	}
	if err != nil {
		return nil, err
	}
	pb.Status = schema.PlaybookStatus(status)
	if err := json.Unmarshal([]byte(defJSON), &pb.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return pb, nil
}

// UpdatePlaybookStatus updates the status of all versions of a playbook.
func (s *LibSQLStore) UpdatePlaybookStatus(ctx context.Context, id string, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE playbooks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "playbook", id)
}

// ListActivePlaybooks returns the latest version of every active playbook.
func (s *LibSQLStore) ListActivePlaybooks(ctx context.Context) ([]*Playbook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.version, p.definition, p.status, p.created_at, p.updated_at
		 FROM playbooks p
		 JOIN (SELECT id, MAX(version) AS version FROM playbooks GROUP BY id) latest
		   ON p.id = latest.id AND p.version = latest.version
		 WHERE p.status = 'active'
		 ORDER BY p.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playbooks []*Playbook
	for rows.Next() {
		pb := &Playbook{}
		var defJSON, status string
		if err := rows.Scan(&pb.ID, &pb.Version, &defJSON, &status, &pb.CreatedAt, &pb.UpdatedAt); err != nil {
			return nil, err
		}
		pb.Status = schema.PlaybookStatus(status)
		if err := json.Unmarshal([]byte(defJSON), &pb.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, rows.Err()
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, ex *Execution) error {
	trigger, err := json.Marshal(ex.TriggerSource)
	if err != nil {
		return fmt.Errorf("marshal trigger_source: %w", err)
	}
	execCtx, err := marshalMapOrDefault(ex.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if ex.Status == "" {
		ex.Status = schema.ExecutionPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, playbook_id, playbook_version, status, trigger_source, context, current_step_id, error_message, created_at, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.PlaybookID, ex.PlaybookVersion, string(ex.Status),
		string(trigger), string(execCtx), nullStr(ex.CurrentStepID), nullStr(ex.ErrorMessage),
		timeOrNow(ex.CreatedAt), nullTime(ex.StartedAt), nullTime(ex.CompletedAt), timeOrNow(ex.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	ex := &Execution{}
	var (
		status, triggerJSON    string
		ctxJSON                sql.NullString
		currentStep, errMsg    sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, playbook_id, playbook_version, status, trigger_source, context, current_step_id, error_message, created_at, started_at, completed_at, updated_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&ex.ID, &ex.PlaybookID, &ex.PlaybookVersion, &status, &triggerJSON, &ctxJSON,
		&currentStep, &errMsg, &ex.CreatedAt, &startedAt, &completedAt, &ex.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	ex.Status = schema.ExecutionStatus(status)
	if err := json.Unmarshal([]byte(triggerJSON), &ex.TriggerSource); err != nil {
		return nil, fmt.Errorf("unmarshal trigger_source: %w", err)
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		_ = json.Unmarshal([]byte(ctxJSON.String), &ex.Context)
	}
	ex.CurrentStepID = currentStep.String
	ex.ErrorMessage = errMsg.String
	if startedAt.Valid {
		ex.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		ex.CompletedAt = &completedAt.Time
	}
	return ex, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Context != nil {
		ctxJSON, err := marshalMapOrDefault(update.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		sets = append(sets, "context = ?")
		args = append(args, string(ctxJSON))
	}
	if update.CurrentStepID != nil {
		sets = append(sets, "current_step_id = ?")
		args = append(args, nullStr(*update.CurrentStepID))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullStr(*update.ErrorMessage))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.PlaybookID != "" {
		where = append(where, "playbook_id = ?")
		args = append(args, filter.PlaybookID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, playbook_id, playbook_version, status, trigger_source, context, current_step_id, error_message, created_at, started_at, completed_at, updated_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		ex := &Execution{}
		var (
			status, triggerJSON    string
			ctxJSON                sql.NullString
			currentStep, errMsg    sql.NullString
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(&ex.ID, &ex.PlaybookID, &ex.PlaybookVersion, &status, &triggerJSON, &ctxJSON,
			&currentStep, &errMsg, &ex.CreatedAt, &startedAt, &completedAt, &ex.UpdatedAt); err != nil {
			return nil, err
		}
		ex.Status = schema.ExecutionStatus(status)
		if err := json.Unmarshal([]byte(triggerJSON), &ex.TriggerSource); err != nil {
			return nil, fmt.Errorf("unmarshal trigger_source: %w", err)
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			_ = json.Unmarshal([]byte(ctxJSON.String), &ex.Context)
		}
		ex.CurrentStepID = currentStep.String
		ex.ErrorMessage = errMsg.String
		if startedAt.Valid {
			ex.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			ex.CompletedAt = &completedAt.Time
		}
		executions = append(executions, ex)
	}
	return executions, rows.Err()
}

// --- Step records ---

func (s *LibSQLStore) AppendStepRecord(ctx context.Context, rec *StepRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_records (execution_id, step_id, sequence, status, input, output, error, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.StepID, rec.Sequence, string(rec.Status),
		nullRaw(rec.Input), nullRaw(rec.Output), nullStr(rec.Error),
		timeOrNow(rec.StartedAt), nullTime(rec.CompletedAt), rec.DurationMs,
	)
	return err
}

func (s *LibSQLStore) ListStepRecords(ctx context.Context, executionID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, sequence, status, input, output, error, started_at, completed_at, duration_ms
		 FROM step_records WHERE execution_id = ? ORDER BY sequence ASC`, executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*StepRecord
	for rows.Next() {
		rec := &StepRecord{}
		var status string
		var input, output, errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.ExecutionID, &rec.StepID, &rec.Sequence, &status,
			&input, &output, &errMsg, &rec.StartedAt, &completedAt, &rec.DurationMs); err != nil {
			return nil, err
		}
		rec.Status = schema.StepStatus(status)
		rec.Input = rawOrNil(input)
		rec.Output = rawOrNil(output)
		rec.Error = errMsg.String
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- History log ---

// AppendHistory appends an event with a monotonically increasing per-execution
// sequence. The sequence read and insert run inside one transaction so
// concurrent appenders cannot interleave.
func (s *LibSQLStore) AppendHistory(ctx context.Context, event *HistoryEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Acquire the write lock up front. In WAL mode, BeginTx alone may start a
	// deferred transaction, letting another writer slip in between the
	// sequence read and the insert.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM history_events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history_events (execution_id, step_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, nullStr(event.StepID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history event: %w", err)
	}
	return nil
}

// ListHistory returns events for an execution with sequence > since, ordered
// by sequence ASC.
func (s *LibSQLStore) ListHistory(ctx context.Context, executionID string, since int64) ([]*HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, event_type, payload, timestamp, sequence
		 FROM history_events WHERE execution_id = ? AND sequence > ? ORDER BY sequence ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*HistoryEvent
	for rows.Next() {
		e := &HistoryEvent{}
		var stepID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &stepID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
