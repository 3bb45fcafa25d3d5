package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyflow/internal/llm"
	"github.com/rendis/pyflow/internal/translate"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	applyEnv(&cfg, envMap(map[string]string{
		"PYFLOW_LOG_LEVEL":      "debug",
		"PYFLOW_HISTORY":        "false",
		"PYFLOW_MODE":           "static",
		"PYFLOW_CONCURRENCY":    "8",
		"PYFLOW_RULES":          "a.yaml" + string(os.PathListSeparator) + "b.yaml",
		"PYFLOW_LLM_PROVIDER":   "openai",
		"PYFLOW_LLM_RPS":        "0.5",
		"PYFLOW_LLM_TIMEOUT":    "5s",
		"PYFLOW_LLM_CACHE_SIZE": "32",
		"OPENAI_API_KEY":        "sk-test",
		"GEMINI_API_KEY":        "ignored",
	}))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.History)
	assert.Equal(t, "static", cfg.Mode)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.RulesFiles)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 0.5, cfg.LLM.RPS)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 32, cfg.LLM.CacheSize)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.LLM.Enabled())
}

func TestApplyEnv_IgnoresMalformedValues(t *testing.T) {
	cfg := defaultConfig()
	applyEnv(&cfg, envMap(map[string]string{
		"PYFLOW_HISTORY":     "maybe",
		"PYFLOW_CONCURRENCY": "many",
		"PYFLOW_LLM_TIMEOUT": "soon",
	}))
	assert.True(t, cfg.History)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.LLM.Enabled())
}

func TestApplyEnv_ExplicitKeyWins(t *testing.T) {
	cfg := defaultConfig()
	applyEnv(&cfg, envMap(map[string]string{
		"PYFLOW_LLM_API_KEY": "explicit",
		"GEMINI_API_KEY":     "fallback",
	}))
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("PYFLOW_MODE", "")
	t.Setenv("PYFLOW_LLM_PROVIDER", "")
	t.Setenv("PYFLOW_PREFIX", "stg_")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: semantic
strict: true
prefix: raw_
llm:
  provider: fake
  retries: 5
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "semantic", cfg.Mode)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "stg_", cfg.Prefix)
	assert.True(t, cfg.Optimize)
	assert.Equal(t, 5, cfg.LLM.Retries)
	assert.True(t, cfg.LLM.Enabled())

	tc, err := cfg.translateConfig()
	require.NoError(t, err)
	assert.Equal(t, translate.ModeSemantic, tc.Mode)
	assert.Equal(t, "stg_", tc.Prefix)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mode: [unterminated"), 0o644))
	_, err = loadConfig(bad)
	assert.Error(t, err)
}

func TestTranslateConfig_BadMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = "psychic"
	_, err := cfg.translateConfig()
	assert.Error(t, err)
}
