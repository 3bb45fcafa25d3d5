package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/pyflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db  *sql.DB
	log *EventLog
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/history.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
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

	s := &LibSQLStore{db: db}
	s.log = NewEventLog(s)
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Events returns the event log bound to this store.
func (s *LibSQLStore) Events() *EventLog { return s.log }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Translations ---

const translationColumns = `id, script_name, mode, source_hash, source, status, error_code, error_message,
	flow, dataset_count, recipe_count, note_count, duration_ms, created_at`

// SaveTranslation inserts t, or replaces the row with the same ID.
func (s *LibSQLStore) SaveTranslation(ctx context.Context, t *Translation) error {
	if t.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "translation has no id")
	}
	t.CreatedAt = timeOrNow(t.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translations (`+translationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   mode=excluded.mode, status=excluded.status, error_code=excluded.error_code, error_message=excluded.error_message,
		   flow=excluded.flow, dataset_count=excluded.dataset_count, recipe_count=excluded.recipe_count,
		   note_count=excluded.note_count, duration_ms=excluded.duration_ms`,
		t.ID, t.ScriptName, t.Mode, t.SourceHash, t.Source, t.Status,
		nullStr(t.ErrorCode), nullStr(t.ErrorMessage), nullRaw(t.Flow),
		t.DatasetCount, t.RecipeCount, t.NoteCount, t.DurationMs, t.CreatedAt,
	)
	if err != nil {
		return storeError("save translation", err)
	}
	return nil
}

// GetTranslation returns the translation with the given ID.
func (s *LibSQLStore) GetTranslation(ctx context.Context, id string) (*Translation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+translationColumns+` FROM translations WHERE id = ?`, id)
	t, err := scanTranslation(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("translation", id)
	}
	if err != nil {
		return nil, storeError("get translation", err)
	}
	return t, nil
}

// ListTranslations returns translations newest first.
func (s *LibSQLStore) ListTranslations(ctx context.Context, filter TranslationFilter) ([]*Translation, error) {
	query := `SELECT ` + translationColumns + ` FROM translations`
	var where []string
	var args []any

	if filter.ScriptName != "" {
		where = append(where, "script_name = ?")
		args = append(args, filter.ScriptName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, filter.Mode)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list translations", err)
	}
	defer rows.Close()

	var out []*Translation
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, storeError("scan translation", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTranslation removes a translation and its events.
func (s *LibSQLStore) DeleteTranslation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM translation_events WHERE translation_id = ?`, id); err != nil {
		return storeError("delete translation events", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM translations WHERE id = ?`, id)
	if err != nil {
		return storeError("delete translation", err)
	}
	return checkRowsAffected(res, "translation", id)
}

// --- Events ---

// AppendEvent appends an event through the event log.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	return s.log.AppendEvent(ctx, event)
}

// GetEvents returns events of a translation with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, translationID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, translation_id, sequence, event_type, phase, payload, timestamp
		 FROM translation_events WHERE translation_id = ? AND sequence > ? ORDER BY sequence`,
		translationID, since)
	if err != nil {
		return nil, storeError("get events", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var phase, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TranslationID, &e.Sequence, &e.Type, &phase, &payload, &e.Timestamp); err != nil {
			return nil, storeError("scan event", err)
		}
		e.Phase = phase.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanTranslation(sc scanner) (*Translation, error) {
	t := &Translation{}
	var errCode, errMsg, flow sql.NullString
	err := sc.Scan(&t.ID, &t.ScriptName, &t.Mode, &t.SourceHash, &t.Source, &t.Status,
		&errCode, &errMsg, &flow, &t.DatasetCount, &t.RecipeCount, &t.NoteCount, &t.DurationMs, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.ErrorCode = errCode.String
	t.ErrorMessage = errMsg.String
	t.Flow = rawOrNil(flow)
	return t, nil
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
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

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r []byte) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
