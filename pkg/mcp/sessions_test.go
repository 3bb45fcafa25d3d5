package mcp

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("client-1", "session-abc")
	sid, ok := r.SessionFor("client-1")
	assert.True(t, ok)
	assert.Equal(t, "session-abc", sid)
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("unknown")
	assert.False(t, ok)
}

func TestSessionRegistry_Overwrite(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("client-1", "session-old")
	r.Register("client-1", "session-new")

	sid, ok := r.SessionFor("client-1")
	assert.True(t, ok)
	assert.Equal(t, "session-new", sid)
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("client-1", "session-abc")
	r.Register("client-2", "session-abc")
	r.Register("client-3", "session-xyz")

	r.Remove("session-abc")

	_, ok := r.SessionFor("client-1")
	assert.False(t, ok, "client-1 should be removed")

	_, ok = r.SessionFor("client-2")
	assert.False(t, ok, "client-2 should be removed")

	sid, ok := r.SessionFor("client-3")
	assert.True(t, ok, "client-3 should still exist")
	assert.Equal(t, "session-xyz", sid)
}

func TestSessionRegistry_Concurrent(t *testing.T) {
	r := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			r.Register(id, "session-"+id)
			_, _ = r.SessionFor(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}
