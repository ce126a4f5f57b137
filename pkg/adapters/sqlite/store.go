// Package sqlite implements ports.Repository on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aretw0/choreo/pkg/domain"
)

// Store implements ports.Repository using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	conn.SetMaxOpenConns(1)

	if _, err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{db: conn}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTemplate upserts the canonical JSON of t.
func (s *Store) SaveTemplate(ctx context.Context, t *domain.Template) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO templates(id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		t.ID, string(body), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// LoadTemplate retrieves a template.
func (s *Store) LoadTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM templates WHERE id=?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	var t domain.Template
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}
	return &t, nil
}

// SaveRun upserts the run.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs(id, template_id, status, body, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, body=excluded.body`,
		run.ID, run.TemplateID, string(run.Status), string(body), run.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run.
func (s *Store) LoadRun(ctx context.Context, id string) (*domain.Run, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM runs WHERE id=?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	var run domain.Run
	if err := json.Unmarshal([]byte(body), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns run IDs ordered by ID.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendRunState inserts a visit. The partial unique index rejects a second
// open visit for the same run.
func (s *Store) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	data := rs.SlotData
	if data == nil {
		data = map[string]any{}
	}
	slots, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}
	var exited sql.NullInt64
	if rs.ExitedAt != nil {
		exited = sql.NullInt64{Int64: rs.ExitedAt.UnixNano(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO run_states(id, run_id, state_id, slot_data, entered_at, exited_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.RunID, rs.StateID, string(slots), rs.EnteredAt.UnixNano(), exited)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s already has an open state: %w", rs.RunID, domain.ErrStaleRun)
	}
	if err != nil {
		return fmt.Errorf("append run state: %w", err)
	}
	return nil
}

// CloseRunState sets exited_at on an open visit.
func (s *Store) CloseRunState(ctx context.Context, id string, exitedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE run_states SET exited_at=? WHERE id=? AND exited_at IS NULL`,
		exitedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("close run state: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

// PutSlot updates one key of the slot_data JSON document in place.
func (s *Store) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode slot %q: %w", name, err)
	}
	path := fmt.Sprintf(`$."%s"`, name)
	res, err := s.db.ExecContext(ctx, `UPDATE run_states SET slot_data=json_set(slot_data, ?, json(?))
		WHERE id=? AND exited_at IS NULL`, path, string(raw), runStateID)
	if err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return s.checkUpdated(ctx, res, runStateID)
}

// checkUpdated maps a zero-row update to not-found or closed.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM run_states WHERE id=?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return domain.ErrRunStateNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("run state %s is closed: %w", id, domain.ErrStaleRun)
}

const runStateColumns = `id, run_id, state_id, slot_data, entered_at, exited_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRunState(row scanner) (*domain.RunState, error) {
	var (
		rs      domain.RunState
		slots   string
		entered int64
		exited  sql.NullInt64
	)
	if err := row.Scan(&rs.ID, &rs.RunID, &rs.StateID, &slots, &entered, &exited); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slots), &rs.SlotData); err != nil {
		return nil, fmt.Errorf("run state %s: bad slot data: %w", rs.ID, err)
	}
	rs.EnteredAt = time.Unix(0, entered).UTC()
	if exited.Valid {
		at := time.Unix(0, exited.Int64).UTC()
		rs.ExitedAt = &at
	}
	return &rs, nil
}

// LoadRunState retrieves a visit.
func (s *Store) LoadRunState(ctx context.Context, id string) (*domain.RunState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runStateColumns+` FROM run_states WHERE id=?`, id)
	rs, err := scanRunState(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRunStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}
	return rs, nil
}

// ListRunStates returns the visits of a run ordered by entry time.
func (s *Store) ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runStateColumns+` FROM run_states
		WHERE run_id=? ORDER BY entered_at, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run states: %w", err)
	}
	defer rows.Close()
	var out []*domain.RunState
	for rows.Next() {
		rs, err := scanRunState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(serr.Error(), "UNIQUE")
		}
	}
	return false
}
