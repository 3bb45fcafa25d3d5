package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/pyflow/internal/llm"
	"github.com/rendis/pyflow/internal/translate"
)

// Config holds all pyflow settings.
// Priority: flags > env vars (.env included) > settings.yaml > defaults.
type Config struct {
	LogLevel    string    `yaml:"log_level"`
	LogFormat   string    `yaml:"log_format"`
	DBPath      string    `yaml:"db_path"`
	History     bool      `yaml:"history"`
	Mode        string    `yaml:"mode"`
	Optimize    bool      `yaml:"optimize"`
	Recommend   bool      `yaml:"recommend"`
	Strict      bool      `yaml:"strict"`
	Prefix      string    `yaml:"prefix"`
	Suffix      string    `yaml:"suffix"`
	Concurrency int       `yaml:"concurrency"`
	RulesFiles  []string  `yaml:"rules_files"`
	BinDir      string    `yaml:"bin_dir"`
	LLM         LLMConfig `yaml:"llm"`
}

// LLMConfig configures the language model behind the semantic path.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	RPS       float64       `yaml:"rps"`
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	Backoff   time.Duration `yaml:"backoff"`
	CacheSize int           `yaml:"cache_size"`
}

// Enabled reports whether enough is configured to build a client.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" || c.Provider == llm.ProviderFake
}

func (c LLMConfig) client() llm.Config {
	return llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		RPS:      c.RPS,
		Burst:    c.Burst,
	}
}

func defaultConfig() Config {
	return Config{
		LogLevel:    "warn",
		LogFormat:   "text",
		DBPath:      filepath.Join(pyflowDir(), "history.db"),
		History:     true,
		Mode:        string(translate.ModeAuto),
		Optimize:    true,
		Recommend:   true,
		Concurrency: 4,
		BinDir:      filepath.Join(pyflowDir(), "bin"),
		LLM: LLMConfig{
			Provider: llm.ProviderGemini,
			RPS:      2,
			Burst:    2,
			Timeout:  60 * time.Second,
			Retries:  2,
			Backoff:  500 * time.Millisecond,
		},
	}
}

func pyflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pyflow"
	}
	return filepath.Join(home, ".pyflow")
}

func settingsPath() string {
	return filepath.Join(pyflowDir(), "settings.yaml")
}

// loadConfig layers defaults, the YAML settings file, a .env file and
// PYFLOW_* environment variables. An explicit path must exist; the default
// settings file is optional.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// A missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()
	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// applyEnv overrides cfg from environment variables.
func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("PYFLOW_LOG_LEVEL", &cfg.LogLevel)
	str("PYFLOW_LOG_FORMAT", &cfg.LogFormat)
	str("PYFLOW_DB_PATH", &cfg.DBPath)
	boolean("PYFLOW_HISTORY", &cfg.History)
	str("PYFLOW_MODE", &cfg.Mode)
	boolean("PYFLOW_OPTIMIZE", &cfg.Optimize)
	boolean("PYFLOW_RECOMMEND", &cfg.Recommend)
	boolean("PYFLOW_STRICT", &cfg.Strict)
	str("PYFLOW_PREFIX", &cfg.Prefix)
	str("PYFLOW_SUFFIX", &cfg.Suffix)
	integer("PYFLOW_CONCURRENCY", &cfg.Concurrency)
	str("PYFLOW_BIN_DIR", &cfg.BinDir)
	if v := getenv("PYFLOW_RULES"); v != "" {
		cfg.RulesFiles = filepath.SplitList(v)
	}

	str("PYFLOW_LLM_PROVIDER", &cfg.LLM.Provider)
	str("PYFLOW_LLM_MODEL", &cfg.LLM.Model)
	str("PYFLOW_LLM_BASE_URL", &cfg.LLM.BaseURL)
	integer("PYFLOW_LLM_RETRIES", &cfg.LLM.Retries)
	integer("PYFLOW_LLM_CACHE_SIZE", &cfg.LLM.CacheSize)
	integer("PYFLOW_LLM_BURST", &cfg.LLM.Burst)
	if v := getenv("PYFLOW_LLM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.RPS = f
		}
	}
	if v := getenv("PYFLOW_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}

	// Provider-specific key variables are accepted as a fallback.
	str("PYFLOW_LLM_API_KEY", &cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case llm.ProviderOpenAI:
			cfg.LLM.APIKey = getenv("OPENAI_API_KEY")
		case llm.ProviderGemini, "":
			cfg.LLM.APIKey = getenv("GEMINI_API_KEY")
		}
	}
}

// translateConfig converts the settings into per-translation defaults.
func (c Config) translateConfig() (translate.Config, error) {
	mode, err := translate.ParseMode(c.Mode)
	if err != nil {
		return translate.Config{}, err
	}
	return translate.Config{
		Mode:      mode,
		Optimize:  c.Optimize,
		Recommend: c.Recommend,
		Strict:    c.Strict,
		Prefix:    c.Prefix,
		Suffix:    c.Suffix,
	}, nil
}
