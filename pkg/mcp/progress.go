package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/rendis/pyflow/internal/streaming"
)

// followTranslation forwards hub events of one translation to the client
// as info log notifications. The returned stop func waits until every
// received event has been forwarded.
func (s *PyflowServer) followTranslation(ctx context.Context, clientID string) (string, func()) {
	id := uuid.NewString()
	if s.hub == nil || clientID == "" {
		return id, func() {}
	}
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.Filter{TranslationID: id})
	if err != nil {
		s.logger.Warn("progress subscription failed", "client_id", clientID, "error", err)
		return id, func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			payload := map[string]any{
				"level":  "info",
				"logger": "pyflow",
				"data": map[string]any{
					"translation_id": e.TranslationID,
					"event_type":     e.Type,
					"phase":          e.Phase,
					"payload":        e.Payload,
				},
			}
			if nErr := s.notifier.Notify(context.WithoutCancel(ctx), clientID, payload); nErr != nil {
				s.logger.Debug("progress notification failed", "client_id", clientID, "error", nErr)
			}
		}
	}()
	return id, func() {
		cancel()
		<-done
	}
}
