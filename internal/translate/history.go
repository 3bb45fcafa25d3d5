package translate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/pyflow/internal/logging"
	"github.com/rendis/pyflow/internal/store"
	"github.com/rendis/pyflow/internal/streaming"
	"github.com/rendis/pyflow/pkg/schema"
)

// history records one translation in the store and publishes its events to
// the hub. Either may be nil; with neither, history is nil and every method
// is a no-op. Failures are logged and never fail the translation itself.
type history struct {
	store  store.Store
	hub    streaming.Hub
	logger *slog.Logger
	row    *store.Translation
}

func (t *Translator) newHistory(ctx context.Context, res *Result, script Script, mode Mode) *history {
	if t.store == nil && t.hub == nil {
		return nil
	}
	h := &history{
		store:  t.store,
		hub:    t.hub,
		logger: t.logger,
		row: &store.Translation{
			ID:         res.ID,
			ScriptName: script.Name,
			Mode:       string(mode),
			SourceHash: SourceHash(script.Source),
			Source:     script.Source,
			Status:     store.StatusRunning,
		},
	}
	h.save(ctx)
	h.event(ctx, store.EventStarted, "", map[string]any{"mode": mode})
	return h
}

func (h *history) phase(ctx context.Context, phase string, payload map[string]any) {
	if h == nil {
		return
	}
	h.event(ctx, store.EventPhaseDone, phase, payload)
}

func (h *history) fallback(ctx context.Context, cause error) {
	if h == nil {
		return
	}
	h.event(ctx, store.EventFallback, logging.PhaseAnalyze, map[string]any{
		"code":    schema.ErrorCode(cause),
		"message": errMessage(cause),
	})
}

func (h *history) finish(ctx context.Context, res *Result, err error) {
	if h == nil {
		return
	}
	ctx = logging.WithPhase(ctx, logging.PhasePersist)
	h.row.Mode = string(res.Mode)
	h.row.DurationMs = res.Duration.Milliseconds()
	if err != nil {
		h.row.Status = store.StatusFailed
		h.row.ErrorCode = schema.ErrorCode(err)
		if h.row.ErrorCode == "" {
			h.row.ErrorCode = schema.ErrCodeInternal
		}
		h.row.ErrorMessage = errMessage(err)
		h.event(ctx, store.EventFailed, "", map[string]any{"code": h.row.ErrorCode, "message": h.row.ErrorMessage})
	} else {
		h.row.Status = store.StatusSucceeded
		h.check(ctx, "encode flow", h.row.SetFlow(res.Flow))
		h.event(ctx, store.EventCompleted, "", flowCounts(res.Flow))
	}
	h.save(ctx)
}

func (h *history) save(ctx context.Context) {
	if h.store == nil {
		return
	}
	h.check(ctx, "save translation", h.store.SaveTranslation(ctx, h.row))
}

func (h *history) event(ctx context.Context, typ, phase string, payload map[string]any) {
	if h.hub != nil {
		h.check(ctx, "publish event", h.hub.Publish(ctx, streaming.Event{
			TranslationID: h.row.ID,
			Script:        h.row.ScriptName,
			Type:          typ,
			Phase:         phase,
			Payload:       payload,
		}))
	}
	if h.store == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.check(ctx, "encode event", err)
			return
		}
		raw = b
	}
	h.check(ctx, "append event", h.store.AppendEvent(ctx, &store.Event{
		TranslationID: h.row.ID,
		Type:          typ,
		Phase:         phase,
		Payload:       raw,
	}))
}

func (h *history) check(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logging.LogWith(ctx, h.logger).Warn("history not recorded", slog.String("op", op), slog.String("error", err.Error()))
}
