package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyflow/pkg/schema"
)

func TestEventLog_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusRunning)

	for _, typ := range []string{EventStarted, EventPhaseDone, EventCompleted} {
		require.NoError(t, s.AppendEvent(ctx, &Event{TranslationID: tr.ID, Type: typ}))
	}

	events, err := s.GetEvents(ctx, tr.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	since, err := s.GetEvents(ctx, tr.ID, 2)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, EventCompleted, since[0].Type)
}

func TestEventLog_ConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusRunning)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Events().Record(ctx, tr.ID, EventPhaseDone, "analyze", nil))
		}()
	}
	wg.Wait()

	events, err := s.GetEvents(ctx, tr.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestEventLog_RequiresTranslationAndType(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendEvent(context.Background(), &Event{Type: EventStarted})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	err = s.AppendEvent(context.Background(), &Event{TranslationID: "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestEventLog_Replay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusRunning)
	el := s.Events()

	require.NoError(t, el.Record(ctx, tr.ID, EventStarted, "", map[string]string{"mode": "auto"}))
	require.NoError(t, el.Record(ctx, tr.ID, EventFallback, "analyze", map[string]string{"reason": "PROVIDER_ERROR"}))
	require.NoError(t, el.Record(ctx, tr.ID, EventPhaseDone, "analyze", map[string]int{"transformations": 4}))
	require.NoError(t, el.Record(ctx, tr.ID, EventPhaseDone, "assemble", nil))
	require.NoError(t, el.Record(ctx, tr.ID, EventCompleted, "", nil))

	tl, err := el.Replay(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, tl.Status)
	assert.True(t, tl.FellBack)
	require.NotNil(t, tl.StartedAt)
	require.NotNil(t, tl.FinishedAt)
	assert.GreaterOrEqual(t, tl.Duration().Nanoseconds(), int64(0))

	require.Len(t, tl.Phases, 2)
	assert.Equal(t, "analyze", tl.Phases[0].Phase)
	var payload map[string]int
	require.NoError(t, json.Unmarshal(tl.Phases[0].Payload, &payload))
	assert.Equal(t, 4, payload["transformations"])
	assert.Equal(t, "assemble", tl.Phases[1].Phase)
}

func TestEventLog_ReplayFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusRunning)
	el := s.Events()

	require.NoError(t, el.Record(ctx, tr.ID, EventStarted, "", nil))
	require.NoError(t, el.Record(ctx, tr.ID, EventFailed, "analyze",
		map[string]string{"code": schema.ErrCodeSyntax}))

	tl, err := el.Replay(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tl.Status)
	assert.Empty(t, tl.Phases)
	assert.JSONEq(t, `{"code":"SYNTAX_ERROR"}`, string(tl.Error))
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusRunning)
	el := s.Events()

	require.NoError(t, el.Record(ctx, tr.ID, EventStarted, "", nil))
	require.NoError(t, el.Record(ctx, tr.ID, EventPhaseDone, "analyze", nil))
	require.NoError(t, el.Record(ctx, tr.ID, EventCompleted, "", nil))
	_, err := s.DB().Exec(`DELETE FROM translation_events WHERE translation_id = ? AND sequence = 2`, tr.ID)
	require.NoError(t, err)

	_, err = el.Replay(ctx, tr.ID)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestEventLog_ReplayUnknownTranslation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Events().Replay(context.Background(), "missing")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}
