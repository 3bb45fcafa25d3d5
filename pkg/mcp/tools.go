package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/rendis/pyflow/internal/diagram"
	"github.com/rendis/pyflow/internal/store"
	"github.com/rendis/pyflow/internal/translate"
	"github.com/rendis/pyflow/pkg/schema"
)

const defaultScriptName = "script.py"

// handleTranslate runs a script through the translation pipeline.
func (s *PyflowServer) handleTranslate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	if s.translator == nil {
		return mcp.NewToolResultError("translator is not configured"), nil
	}

	cfg := s.translator.Config()
	if m := req.GetString("mode", ""); m != "" {
		mode, modeErr := translate.ParseMode(m)
		if modeErr != nil {
			return mcp.NewToolResultError(modeErr.Error()), nil
		}
		cfg.Mode = mode
	}
	cfg.Optimize = req.GetBool("optimize", cfg.Optimize)
	cfg.Strict = req.GetBool("strict", cfg.Strict)
	cfg.Prefix = req.GetString("prefix", cfg.Prefix)
	cfg.Suffix = req.GetString("suffix", cfg.Suffix)
	cfg.Cron = req.GetString("cron", cfg.Cron)
	cfg.Explain = req.GetBool("explain", cfg.Explain)

	clientID := req.GetString("client_id", "")
	if clientID != "" {
		s.captureSession(ctx, clientID)
	}

	id, stop := s.followTranslation(ctx, clientID)
	script := translate.Script{ID: id, Name: req.GetString("name", defaultScriptName), Source: source}
	res, runErr := s.translator.TranslateWith(ctx, script, cfg)
	stop()
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("translation failed: %v", runErr)), nil
	}

	if res.FellBack && clientID != "" {
		payload := map[string]any{
			"level":  "warning",
			"logger": "pyflow",
			"data": map[string]any{
				"translation_id": res.ID,
				"message":        "language model unavailable, flow built by static analysis",
			},
		}
		if nErr := s.notifier.Notify(ctx, clientID, payload); nErr != nil {
			s.logger.Warn("fallback notification failed", "client_id", clientID, "error", nErr)
		}
	}

	if req.GetString("format", "json") == "yaml" {
		out, yErr := yaml.Marshal(res.Flow)
		if yErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode flow: %v", yErr)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}

	out := map[string]any{
		"id":          res.ID,
		"script":      res.Script,
		"mode":        res.Mode,
		"fell_back":   res.FellBack,
		"duration_ms": res.Duration.Milliseconds(),
		"flow":        res.Flow,
		"validation":  res.Validation,
	}
	if res.Explanation != "" {
		out["explanation"] = res.Explanation
	}
	return marshalResult(out)
}

// handleValidate checks a flow document without translating anything.
func (s *PyflowServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "flow", nil)
	if doc == nil {
		return mcp.NewToolResultError("flow is required"), nil
	}
	if s.validator == nil {
		return mcp.NewToolResultError("validator is not configured"), nil
	}

	result := &schema.ValidationResult{}
	if flow, err := schema.FlowFromMap(doc); err != nil {
		result.AddError("/", schema.ErrorCode(err), err.Error())
	} else {
		result = s.validator.Validate(flow)
	}

	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   issuesOrEmpty(result.Errors),
		"warnings": issuesOrEmpty(result.Warnings),
	})
}

// handleDiagram draws a persisted translation or an inline flow document.
func (s *PyflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "svg" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or svg"), nil
	}

	var flow *schema.Flow
	id := req.GetString("id", "")
	doc := mcp.ParseStringMap(req, "flow", nil)
	switch {
	case doc != nil:
		f, fErr := schema.FlowFromMap(doc)
		if fErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid flow: %v", fErr)), nil
		}
		flow = f
	case id != "":
		f, lErr := s.loadFlow(ctx, id)
		if lErr != nil {
			return mcp.NewToolResultError(lErr.Error()), nil
		}
		flow = f
	default:
		return mcp.NewToolResultError("one of id or flow is required"), nil
	}

	model, buildErr := diagram.Build(flow)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		svg, imgErr := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	}
}

// handleHistory queries persisted translations and their phase logs.
func (s *PyflowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("history is disabled: no store configured"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)
	id := req.GetString("id", "")
	if resource != "translations" && id == "" {
		return mcp.NewToolResultError(fmt.Sprintf("id is required for %s", resource)), nil
	}

	switch resource {
	case "translations":
		return s.queryTranslations(ctx, filter)
	case "translation":
		t, getErr := s.store.GetTranslation(ctx, id)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", getErr)), nil
		}
		return marshalResult(t)
	case "events":
		events, evErr := s.store.GetEvents(ctx, id, int64(extractInt(filter, "since", 0)))
		if evErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", evErr)), nil
		}
		return marshalResult(map[string]any{"events": events})
	case "timeline":
		if s.timelines == nil {
			return mcp.NewToolResultError("timeline replay is not available"), nil
		}
		tl, tlErr := s.timelines.Replay(ctx, id)
		if tlErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("replay failed: %v", tlErr)), nil
		}
		return marshalResult(map[string]any{
			"timeline":    tl,
			"duration_ms": tl.Duration().Milliseconds(),
		})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *PyflowServer) queryTranslations(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	tf := store.TranslationFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if name, ok := filter["script_name"].(string); ok {
		tf.ScriptName = name
	}
	if status, ok := filter["status"].(string); ok {
		tf.Status = status
	}
	if mode, ok := filter["mode"].(string); ok {
		tf.Mode = mode
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			tf.Since = &t
		}
	}

	translations, err := s.store.ListTranslations(ctx, tf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	// Listings omit sources and flows; fetch a single translation for those.
	for _, t := range translations {
		t.Source = ""
		t.Flow = nil
	}
	return marshalResult(map[string]any{"translations": translations})
}

// --- Internal helpers ---

// loadFlow decodes the flow of a persisted translation.
func (s *PyflowServer) loadFlow(ctx context.Context, id string) (*schema.Flow, error) {
	if s.store == nil {
		return nil, fmt.Errorf("history is disabled: no store configured")
	}
	t, err := s.store.GetTranslation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("translation lookup failed: %w", err)
	}
	flow, err := t.DecodeFlow()
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("translation %s has no flow (status %s)", id, t.Status)
	}
	return flow, nil
}

func issuesOrEmpty(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the client ID to its current MCP session for notifications.
func (s *PyflowServer) captureSession(ctx context.Context, clientID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
