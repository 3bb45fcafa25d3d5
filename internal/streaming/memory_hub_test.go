package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	event := Event{
		TranslationID: "t-1",
		Script:        "sales.py",
		Type:          "phase.completed",
		Phase:         "parse",
		Payload:       map[string]any{"statements": 4},
	}
	require.NoError(t, hub.Publish(ctx, event))
	assert.Equal(t, event, receive(t, ch))
}

func TestFilterByTranslation(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{TranslationID: "t-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-2", Type: "translation.started"}))
	require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-1", Type: "translation.started"}))

	assert.Equal(t, "t-1", receive(t, ch).TranslationID)
	assertQuiet(t, ch)
}

func TestFilterByType(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{Types: []string{"translation.completed", "translation.failed"}})
	require.NoError(t, err)
	defer cancel()

	for _, typ := range []string{"translation.started", "translation.completed", "phase.completed", "translation.failed"} {
		require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-1", Type: typ}))
	}
	assert.Equal(t, "translation.completed", receive(t, ch).Type)
	assert.Equal(t, "translation.failed", receive(t, ch).Type)
	assertQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel2()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-1", Type: "translation.started"}))
	for _, ch := range []<-chan Event{ch1, ch2} {
		assert.Equal(t, "t-1", receive(t, ch).TranslationID)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	cancel()
	cancel()
	require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-1", Type: "translation.started"}))

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub(4)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	for range 10 {
		require.NoError(t, hub.Publish(ctx, Event{TranslationID: "t-1", Type: "tick"}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, 4, drained)
	assert.Equal(t, uint64(6), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = hub.Publish(ctx, Event{TranslationID: "t-concurrent", Type: "tick"})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, Filter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Subscribers())
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, Event{TranslationID: "t-1"}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
