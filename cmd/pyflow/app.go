package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/pyflow/internal/analyzer/semantic"
	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/llm"
	"github.com/rendis/pyflow/internal/logging"
	"github.com/rendis/pyflow/internal/store"
	"github.com/rendis/pyflow/internal/streaming"
	"github.com/rendis/pyflow/internal/translate"
	"github.com/rendis/pyflow/internal/validation"
)

// app holds the resolved configuration and lazily built components shared
// by all commands.
type app struct {
	cfg    Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer

	store     *store.LibSQLStore
	client    llm.Client
	validator *validation.FlowValidator
	// hub, when set before translator is called, receives phase events.
	hub *streaming.MemoryHub
}

func newApp(cfg Config, stdout, stderr io.Writer) *app {
	return &app{
		cfg:    cfg,
		logger: loggerFor(cfg, stderr),
		stdout: stdout,
		stderr: stderr,
	}
}

func loggerFor(cfg Config, w io.Writer) *slog.Logger {
	return logging.New(w, cfg.LogLevel, cfg.LogFormat)
}

// openStore opens and migrates the history database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) flowValidator() (*validation.FlowValidator, error) {
	if a.validator != nil {
		return a.validator, nil
	}
	v, err := validation.NewFlowValidator()
	if err != nil {
		return nil, err
	}
	a.validator = v
	return v, nil
}

// catalog builds the pattern catalog with the configured rule packs.
func (a *app) catalog() (*catalog.Catalog, error) {
	c := catalog.New(catalog.WithLogger(a.logger))
	for _, path := range a.cfg.RulesFiles {
		n, err := c.LoadRulesFile(path)
		if err != nil {
			return nil, fmt.Errorf("load rules %s: %w", path, err)
		}
		a.logger.Info("rule pack loaded", slog.String("path", path), slog.Int("rules", n))
	}
	return c, nil
}

// semantic builds the semantic analyzer, or returns nil when no language
// model is configured.
func (a *app) semantic(ctx context.Context) (*semantic.Analyzer, error) {
	if !a.cfg.LLM.Enabled() {
		return nil, nil
	}
	client, err := llm.New(ctx, a.cfg.LLM.client(), a.logger)
	if err != nil {
		return nil, err
	}
	a.client = client

	v, err := a.flowValidator()
	if err != nil {
		return nil, err
	}
	opts := []semantic.Option{
		semantic.WithLogger(a.logger),
		semantic.WithValidator(v.Schema()),
		semantic.WithRetries(a.cfg.LLM.Retries, a.cfg.LLM.Backoff),
	}
	if a.cfg.LLM.Timeout > 0 {
		opts = append(opts, semantic.WithTimeout(a.cfg.LLM.Timeout))
	}
	if a.cfg.LLM.CacheSize > 0 {
		opts = append(opts, semantic.WithCache(a.cfg.LLM.CacheSize))
	}
	return semantic.New(llm.NewCompleter(client), opts...)
}

// translator wires the full pipeline from the configuration.
func (a *app) translator(ctx context.Context) (*translate.Translator, error) {
	tcfg, err := a.cfg.translateConfig()
	if err != nil {
		return nil, err
	}
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	v, err := a.flowValidator()
	if err != nil {
		return nil, err
	}
	opts := []translate.Option{
		translate.WithConfig(tcfg),
		translate.WithCatalog(cat),
		translate.WithValidator(v),
		translate.WithLogger(a.logger),
	}
	if a.hub != nil {
		opts = append(opts, translate.WithHub(a.hub))
	}

	sem, err := a.semantic(ctx)
	if err != nil {
		return nil, err
	}
	if sem != nil {
		opts = append(opts, translate.WithSemantic(sem))
	}

	if a.cfg.History {
		s, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, translate.WithStore(s))
	}
	return translate.New(opts...)
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
