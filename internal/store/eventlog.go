package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/pyflow/pkg/schema"
)

// EventLog provides append and replay operations for translation phase
// events on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing
// per-translation sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	if event.TranslationID == "" || event.Type == "" {
		return schema.NewError(schema.ErrCodeStore, "event needs a translation id and a type")
	}
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Force the write lock before reading the sequence; in WAL mode BeginTx
	// alone starts a deferred transaction.
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
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM translation_events WHERE translation_id = ?`,
		event.TranslationID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO translation_events (translation_id, sequence, event_type, phase, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.TranslationID, seq, event.Type, nullStr(event.Phase), nullRaw(event.Payload), event.Timestamp,
	)
	if err != nil {
		return storeError("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// Record appends an event whose payload is v encoded as JSON.
func (el *EventLog) Record(ctx context.Context, translationID, eventType, phase string, v any) error {
	var payload json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = b
	}
	return el.AppendEvent(ctx, &Event{
		TranslationID: translationID,
		Type:          eventType,
		Phase:         phase,
		Payload:       payload,
	})
}

// Replay rebuilds the timeline of a translation from its events. A gap in
// the sequence is a STORE_ERROR.
func (el *EventLog) Replay(ctx context.Context, translationID string) (*Timeline, error) {
	events, err := el.store.GetEvents(ctx, translationID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	if len(events) == 0 {
		return nil, storeNotFound("events of translation", translationID)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in translation %s: expected %d, got %d", translationID, expected, e.Sequence)
		}
	}

	tl := &Timeline{TranslationID: translationID, Phases: []*PhaseRecord{}}
	for _, e := range events {
		ts := e.Timestamp
		switch e.Type {
		case EventStarted:
			tl.StartedAt = &ts
		case EventPhaseDone:
			tl.Phases = append(tl.Phases, &PhaseRecord{Phase: e.Phase, CompletedAt: ts, Payload: e.Payload})
		case EventFallback:
			tl.FellBack = true
		case EventCompleted:
			tl.Status = StatusSucceeded
			tl.FinishedAt = &ts
		case EventFailed:
			tl.Status = StatusFailed
			tl.FinishedAt = &ts
			tl.Error = e.Payload
		}
	}
	return tl, nil
}

// Duration reports the elapsed time between start and finish, or zero
// while the translation is unfinished.
func (tl *Timeline) Duration() time.Duration {
	if tl.StartedAt == nil || tl.FinishedAt == nil {
		return 0
	}
	return tl.FinishedAt.Sub(*tl.StartedAt)
}
