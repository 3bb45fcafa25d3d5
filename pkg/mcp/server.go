package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/pyflow/internal/store"
	"github.com/rendis/pyflow/internal/streaming"
	"github.com/rendis/pyflow/internal/translate"
	"github.com/rendis/pyflow/internal/validation"
)

// TimelineReader replays the phase log of a persisted translation.
type TimelineReader interface {
	Replay(ctx context.Context, translationID string) (*store.Timeline, error)
}

// PyflowServerDeps holds the dependencies for creating a PyflowServer.
// Store and Timelines are optional; without them pyflow.history reports
// that history is disabled. Hub must be the one the Translator publishes
// to for clients to receive progress notifications.
type PyflowServerDeps struct {
	Translator *translate.Translator
	Validator  validation.Validator
	Store      store.Store
	Timelines  TimelineReader
	Hub        streaming.Hub
	Logger     *slog.Logger
}

// PyflowServer wraps an MCP server with pyflow tool handlers.
type PyflowServer struct {
	translator *translate.Translator
	validator  validation.Validator
	store      store.Store
	timelines  TimelineReader
	hub        streaming.Hub
	sessions   *SessionRegistry
	notifier   ClientNotifier
	logger     *slog.Logger
	mcpServer  *server.MCPServer
}

// NewPyflowServer creates a PyflowServer with all tools registered.
func NewPyflowServer(deps PyflowServerDeps) *PyflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &PyflowServer{
		translator: deps.Translator,
		validator:  deps.Validator,
		store:      deps.Store,
		timelines:  deps.Timelines,
		hub:        deps.Hub,
		sessions:   NewSessionRegistry(),
		logger:     logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"pyflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("pyflow translates pandas/numpy/sklearn scripts into DSS-style Flow DAGs of datasets and recipes. Use pyflow.translate to convert a script, pyflow.validate to check a flow document, pyflow.diagram to draw a flow, and pyflow.history to list past translations and their phase timelines."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PyflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PyflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *PyflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: translateTool(), Handler: s.handleTranslate},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func translateTool() mcp.Tool {
	return mcp.NewTool("pyflow.translate",
		mcp.WithDescription("Translate a Python data-processing script into a Flow of datasets and recipes"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Python source code of the script")),
		mcp.WithString("name", mcp.Description("Script file name, used to name the flow (default: script.py)")),
		mcp.WithString("mode",
			mcp.Enum("auto", "static", "semantic"),
			mcp.Description("Analysis path: static pattern matching, semantic (language model) or auto (semantic with static fallback)"),
		),
		mcp.WithBoolean("optimize", mcp.Description("Merge prepare chains and drop orphan datasets (default: server setting)")),
		mcp.WithBoolean("strict", mcp.Description("Fail on references to undefined datasets instead of creating placeholders")),
		mcp.WithString("prefix", mcp.Description("Prefix for generated dataset names")),
		mcp.WithString("suffix", mcp.Description("Suffix for generated dataset names")),
		mcp.WithString("cron", mcp.Description("Attach a time-based scenario with this cron expression")),
		mcp.WithBoolean("explain", mcp.Description("Also ask the language model for a prose summary of the script")),
		mcp.WithString("format",
			mcp.Enum("json", "yaml"),
			mcp.Description("Output format of the flow (default: json)"),
		),
		mcp.WithString("client_id", mcp.Description("Caller ID; phase progress and fallback notices are pushed to this client's session")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("pyflow.validate",
		mcp.WithDescription("Validate a flow document against the flow schema, reference rules and DAG constraints"),
		mcp.WithObject("flow", mcp.Required(), mcp.Description("Flow document as exported by pyflow.translate")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("pyflow.history",
		mcp.WithDescription("Query past translations, their events, or a replayed phase timeline"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("translations", "translation", "events", "timeline"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithString("id", mcp.Description("Translation ID (required for translation, events and timeline)")),
		mcp.WithObject("filter", mcp.Description("Filter criteria for translations (script_name, status, mode, since, limit, offset)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("pyflow.diagram",
		mcp.WithDescription("Draw a flow as ASCII art, Mermaid flowchart syntax, or SVG"),
		mcp.WithString("id", mcp.Description("ID of a persisted translation")),
		mcp.WithObject("flow", mcp.Description("Flow document to draw instead of a persisted translation")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "svg"),
			mcp.Description("Output format"),
		),
	)
}
