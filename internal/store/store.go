package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    _ "modernc.org/sqlite"
)

// Store wraps SQLite access for checkpoints, summaries, sections, failures
// and run records. The orchestrator is the only writer; the read API and
// CLI status commands share the read side.
type Store struct {
    db *sql.DB
}

func Open(path string) (*Store, error) {
    db, err := sql.Open("sqlite", path)
    if err != nil {
        return nil, err
    }
    s := &Store{db: db}
    if err := s.migrate(); err != nil {
        return nil, err
    }
    return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS checkpoints (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            admission_id TEXT NOT NULL,
            model_id TEXT NOT NULL,
            run_id TEXT,
            created_at TIMESTAMP
        );`,
        `CREATE UNIQUE INDEX IF NOT EXISTS idx_checkpoints_unit ON checkpoints(admission_id, model_id);`,
        `CREATE TABLE IF NOT EXISTS summaries (
            admission_id TEXT NOT NULL,
            model_id TEXT NOT NULL,
            full_text TEXT NOT NULL,
            section_order TEXT,
            run_id TEXT,
            created_at TIMESTAMP,
            PRIMARY KEY(admission_id, model_id)
        );`,
        `CREATE TABLE IF NOT EXISTS sections (
            admission_id TEXT NOT NULL,
            model_id TEXT NOT NULL,
            view_name TEXT NOT NULL,
            generated_text TEXT NOT NULL,
            prompt_text TEXT,
            features_json TEXT,
            statement_count INTEGER,
            dropped_json TEXT,
            prompt_tokens INTEGER,
            created_at TIMESTAMP,
            PRIMARY KEY(admission_id, model_id, view_name)
        );`,
        `CREATE TABLE IF NOT EXISTS unit_failures (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            admission_id TEXT,
            model_id TEXT,
            kind TEXT,
            message TEXT,
            run_id TEXT,
            created_at TIMESTAMP
        );`,
        `CREATE TABLE IF NOT EXISTS runs (
            run_id TEXT PRIMARY KEY,
            started_at TIMESTAMP,
            finished_at TIMESTAMP,
            status TEXT,
            units_total INTEGER,
            units_completed INTEGER,
            units_failed INTEGER,
            units_skipped INTEGER,
            error TEXT
        );`,
    }
    for _, stmt := range stmts {
        if _, err := s.db.Exec(stmt); err != nil {
            return err
        }
    }
    return nil
}

// UnitKey identifies one unit of work.
type UnitKey struct {
    AdmissionID string `json:"admission_id"`
    ModelID     string `json:"model_id"`
}

// Checkpoint marks one unit as durably completed.
type Checkpoint struct {
    AdmissionID string    `json:"admission_id"`
    ModelID     string    `json:"model_id"`
    RunID       string    `json:"run_id"`
    CreatedAt   time.Time `json:"created_at"`
}

// Summary is one assembled discharge note.
type Summary struct {
    AdmissionID  string    `json:"admission_id"`
    ModelID      string    `json:"model_id"`
    FullText     string    `json:"full_text"`
    SectionOrder []string  `json:"section_order"`
    RunID        string    `json:"run_id"`
    CreatedAt    time.Time `json:"created_at"`
}

// Section is the per-view provenance row behind a summary.
type Section struct {
    AdmissionID    string    `json:"admission_id"`
    ModelID        string    `json:"model_id"`
    ViewName       string    `json:"view_name"`
    GeneratedText  string    `json:"generated_text"`
    PromptText     string    `json:"prompt_text"`
    FeaturesJSON   string    `json:"features_json"`
    StatementCount int       `json:"statement_count"`
    DroppedLabels  []string  `json:"dropped_labels"`
    PromptTokens   int       `json:"prompt_tokens"`
    CreatedAt      time.Time `json:"created_at"`
}

// UnitFailure records a hard failure for one unit. Transient backend
// conditions are never written here; those units simply stay unmarked.
type UnitFailure struct {
    AdmissionID string    `json:"admission_id"`
    ModelID     string    `json:"model_id"`
    Kind        string    `json:"kind"`
    Message     string    `json:"message"`
    RunID       string    `json:"run_id"`
    CreatedAt   time.Time `json:"created_at"`
}

// Run is one orchestrator invocation.
type Run struct {
    RunID          string     `json:"run_id"`
    StartedAt      time.Time  `json:"started_at"`
    FinishedAt     *time.Time `json:"finished_at"`
    Status         string     `json:"status"`
    UnitsTotal     int        `json:"units_total"`
    UnitsCompleted int        `json:"units_completed"`
    UnitsFailed    int        `json:"units_failed"`
    UnitsSkipped   int        `json:"units_skipped"`
    Error          *string    `json:"error"`
}

// Counts summarizes table sizes for the status endpoints.
type Counts struct {
    Checkpoints int64 `json:"checkpoints"`
    Summaries   int64 `json:"summaries"`
    Sections    int64 `json:"sections"`
    Failures    int64 `json:"failures"`
}

var ErrDuplicate = errors.New("checkpoint already recorded")

// AppendCheckpoint appends to the completion log. The log is append-only;
// a second append for the same unit returns ErrDuplicate and changes
// nothing, which makes re-runs idempotent.
func (s *Store) AppendCheckpoint(ctx context.Context, cp Checkpoint) error {
    res, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints(admission_id, model_id, run_id, created_at) VALUES(?,?,?,?)
        ON CONFLICT(admission_id, model_id) DO NOTHING`, cp.AdmissionID, cp.ModelID, cp.RunID, cp.CreatedAt)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrDuplicate
    }
    return nil
}

// CompletedSet reads the full checkpoint log once.
func (s *Store) CompletedSet(ctx context.Context) (map[UnitKey]struct{}, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT admission_id, model_id FROM checkpoints`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    done := make(map[UnitKey]struct{})
    for rows.Next() {
        var key UnitKey
        if err := rows.Scan(&key.AdmissionID, &key.ModelID); err != nil {
            return nil, err
        }
        done[key] = struct{}{}
    }
    return done, rows.Err()
}

// SaveUnitResult writes the summary and its sections in one transaction.
// Existing rows for the unit are replaced, so a retried unit converges on
// the newest result.
func (s *Store) SaveUnitResult(ctx context.Context, sum Summary, secs []Section) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback()

    orderJSON, _ := json.Marshal(sum.SectionOrder)
    if _, err := tx.ExecContext(ctx, `INSERT INTO summaries(admission_id, model_id, full_text, section_order, run_id, created_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(admission_id, model_id) DO UPDATE SET full_text=excluded.full_text, section_order=excluded.section_order, run_id=excluded.run_id, created_at=excluded.created_at`,
        sum.AdmissionID, sum.ModelID, sum.FullText, string(orderJSON), sum.RunID, sum.CreatedAt); err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE admission_id=? AND model_id=?`, sum.AdmissionID, sum.ModelID); err != nil {
        return err
    }
    for _, sec := range secs {
        droppedJSON, _ := json.Marshal(sec.DroppedLabels)
        if _, err := tx.ExecContext(ctx, `INSERT INTO sections(admission_id, model_id, view_name, generated_text, prompt_text, features_json, statement_count, dropped_json, prompt_tokens, created_at)
            VALUES(?,?,?,?,?,?,?,?,?,?)`,
            sec.AdmissionID, sec.ModelID, sec.ViewName, sec.GeneratedText, sec.PromptText, sec.FeaturesJSON, sec.StatementCount, string(droppedJSON), sec.PromptTokens, sec.CreatedAt); err != nil {
            return err
        }
    }
    return tx.Commit()
}

// RecordFailure appends a hard unit failure.
func (s *Store) RecordFailure(ctx context.Context, f UnitFailure) error {
    _, err := s.db.ExecContext(ctx, `INSERT INTO unit_failures(admission_id, model_id, kind, message, run_id, created_at) VALUES(?,?,?,?,?,?)`,
        f.AdmissionID, f.ModelID, f.Kind, f.Message, f.RunID, f.CreatedAt)
    return err
}

// StartRun opens a run record.
func (s *Store) StartRun(ctx context.Context, runID string, unitsTotal int, ts time.Time) error {
    _, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, started_at, status, units_total, units_completed, units_failed, units_skipped) VALUES(?,?,?,?,0,0,0)`,
        runID, ts, "running", unitsTotal)
    return err
}

// FinishRun closes a run record with final counts.
func (s *Store) FinishRun(ctx context.Context, runID, status string, completed, failed, skipped int, errMsg *string, ts time.Time) error {
    _, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at=?, status=?, units_completed=?, units_failed=?, units_skipped=?, error=? WHERE run_id=?`,
        ts, status, completed, failed, skipped, errMsg, runID)
    return err
}

// LatestRun returns the most recent run record, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
    row := s.db.QueryRowContext(ctx, `SELECT run_id, started_at, finished_at, status, units_total, units_completed, units_failed, units_skipped, error FROM runs ORDER BY started_at DESC LIMIT 1`)
    var r Run
    var finished sql.NullTime
    var errMsg sql.NullString
    switch err := row.Scan(&r.RunID, &r.StartedAt, &finished, &r.Status, &r.UnitsTotal, &r.UnitsCompleted, &r.UnitsFailed, &r.UnitsSkipped, &errMsg); err {
    case nil:
        if finished.Valid {
            r.FinishedAt = &finished.Time
        }
        if errMsg.Valid {
            r.Error = &errMsg.String
        }
        return &r, nil
    case sql.ErrNoRows:
        return nil, nil
    default:
        return nil, err
    }
}

func (s *Store) ListSummaries(ctx context.Context, limit int) ([]Summary, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT admission_id, model_id, full_text, section_order, run_id, created_at FROM summaries ORDER BY created_at DESC, admission_id ASC LIMIT ?`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var sums []Summary
    for rows.Next() {
        sum, err := scanSummary(rows)
        if err != nil {
            return nil, err
        }
        sums = append(sums, sum)
    }
    return sums, rows.Err()
}

// GetSummary returns one summary with its sections, or nil when absent.
func (s *Store) GetSummary(ctx context.Context, admissionID, modelID string) (*Summary, []Section, error) {
    row := s.db.QueryRowContext(ctx, `SELECT admission_id, model_id, full_text, section_order, run_id, created_at FROM summaries WHERE admission_id=? AND model_id=?`, admissionID, modelID)
    var sum Summary
    var orderJSON sql.NullString
    err := row.Scan(&sum.AdmissionID, &sum.ModelID, &sum.FullText, &orderJSON, &sum.RunID, &sum.CreatedAt)
    if err == sql.ErrNoRows {
        return nil, nil, nil
    }
    if err != nil {
        return nil, nil, err
    }
    if orderJSON.Valid && orderJSON.String != "" {
        _ = json.Unmarshal([]byte(orderJSON.String), &sum.SectionOrder)
    }

    rows, err := s.db.QueryContext(ctx, `SELECT admission_id, model_id, view_name, generated_text, prompt_text, features_json, statement_count, dropped_json, prompt_tokens, created_at FROM sections WHERE admission_id=? AND model_id=? ORDER BY view_name ASC`, admissionID, modelID)
    if err != nil {
        return nil, nil, err
    }
    defer rows.Close()
    var secs []Section
    for rows.Next() {
        var sec Section
        var promptText, featuresJSON, droppedJSON sql.NullString
        if err := rows.Scan(&sec.AdmissionID, &sec.ModelID, &sec.ViewName, &sec.GeneratedText, &promptText, &featuresJSON, &sec.StatementCount, &droppedJSON, &sec.PromptTokens, &sec.CreatedAt); err != nil {
            return nil, nil, err
        }
        sec.PromptText = promptText.String
        sec.FeaturesJSON = featuresJSON.String
        if droppedJSON.Valid && droppedJSON.String != "" {
            _ = json.Unmarshal([]byte(droppedJSON.String), &sec.DroppedLabels)
        }
        secs = append(secs, sec)
    }
    return &sum, secs, rows.Err()
}

func (s *Store) ListFailures(ctx context.Context, limit int) ([]UnitFailure, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT admission_id, model_id, kind, message, run_id, created_at FROM unit_failures ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var fails []UnitFailure
    for rows.Next() {
        var f UnitFailure
        var runID sql.NullString
        if err := rows.Scan(&f.AdmissionID, &f.ModelID, &f.Kind, &f.Message, &runID, &f.CreatedAt); err != nil {
            return nil, err
        }
        f.RunID = runID.String
        fails = append(fails, f)
    }
    return fails, rows.Err()
}

// TableCounts reports table sizes for the status endpoints.
func (s *Store) TableCounts(ctx context.Context) (Counts, error) {
    var c Counts
    queries := []struct {
        sql  string
        dest *int64
    }{
        {`SELECT COUNT(*) FROM checkpoints`, &c.Checkpoints},
        {`SELECT COUNT(*) FROM summaries`, &c.Summaries},
        {`SELECT COUNT(*) FROM sections`, &c.Sections},
        {`SELECT COUNT(*) FROM unit_failures`, &c.Failures},
    }
    for _, q := range queries {
        if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
            return Counts{}, err
        }
    }
    return c, nil
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
    row := s.db.QueryRowContext(ctx, `SELECT 1`)
    var v int
    if err := row.Scan(&v); err != nil {
        return fmt.Errorf("db health: %w", err)
    }
    return nil
}

func scanSummary(rows *sql.Rows) (Summary, error) {
    var sum Summary
    var orderJSON sql.NullString
    if err := rows.Scan(&sum.AdmissionID, &sum.ModelID, &sum.FullText, &orderJSON, &sum.RunID, &sum.CreatedAt); err != nil {
        return Summary{}, err
    }
    if orderJSON.Valid && orderJSON.String != "" {
        _ = json.Unmarshal([]byte(orderJSON.String), &sum.SectionOrder)
    }
    return sum, nil
}
