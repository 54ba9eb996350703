// Package config loads applybot settings: defaults, then the TOML config
// file, then APPLYBOT_* environment variables, then secret stores for the
// model API key.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Data      DataConfig
	Storage   StorageConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Apply     ApplyConfig
	Pacing    PacingConfig
	Prompt    PromptConfig
	WebDriver WebDriverConfig
	Site      SiteConfig
	Server    ServerConfig
	Log       LogConfig
}

type DataConfig struct {
	Dir string
}

type StorageConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

type LLMConfig struct {
	Vendor            string
	Model             string
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	Temperature       float64
	FallbackWait      time.Duration
}

type ApplyConfig struct {
	OnceAtCompany bool
	// MaxPages bounds the number of result pages visited; 0 means no limit.
	MaxPages int
}

type PacingConfig struct {
	MinimumPageSeconds int
	PageBreakLow       time.Duration
	PageBreakHigh      time.Duration
	ActionLow          time.Duration
	ActionHigh         time.Duration
}

type PromptConfig struct {
	ConfirmTimeout time.Duration
}

type WebDriverConfig struct {
	URL     string
	Browser string
}

type SiteConfig struct {
	BaseURL string
	// Selectors is an optional YAML file overriding the built-in selectors.
	Selectors string
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Data:    DataConfig{Dir: defaultDataDir()},
		Storage: StorageConfig{Backend: "sqlite"},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		LLM: LLMConfig{
			Vendor:       "openai",
			Model:        "gpt-4o-mini",
			Temperature:  0.4,
			FallbackWait: 30 * time.Second,
		},
		Apply: ApplyConfig{OnceAtCompany: true},
		Pacing: PacingConfig{
			MinimumPageSeconds: 60,
			PageBreakLow:       20 * time.Second,
			PageBreakHigh:      40 * time.Second,
			ActionLow:          time.Second,
			ActionHigh:         2 * time.Second,
		},
		Prompt:    PromptConfig{ConfirmTimeout: 120 * time.Second},
		WebDriver: WebDriverConfig{URL: "http://localhost:9515", Browser: "chrome"},
		Site:      SiteConfig{BaseURL: "https://hh.ru"},
		Server:    ServerConfig{Port: 4100},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration from the config file, environment variables and
// secret stores. A non-empty dataDir replaces data.dir before secrets are
// resolved, so secrets.yaml is read from the folder the run will use.
//
// The config file lives at $XDG_CONFIG_HOME/applybot/config.toml. Environment
// variables (APPLYBOT_*) override file values. The API key is taken from
// APPLYBOT_LLM_API_KEY, then <data.dir>/secrets.yaml, then the macOS
// Keychain (service: applybot, account: llm_api_key).
func Load(dataDir string) (Config, error) {
	return loadWith(newFileBackend(configFilePath()), keychainReader{}, dataDir)
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain, dataDir string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}

	if cfg.LLM.APIKey == "" {
		s, err := ReadSecrets(cfg.Data.Dir)
		if err != nil {
			return Config{}, err
		}
		cfg.LLM.APIKey = s.LLMAPIKey
	}

	// Try platform keychain for API key if still empty.
	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get("applybot", "llm_api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// RequireAPIKey fails when the configured vendor needs a key and none was
// found. Local vendors run without one.
func (c Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" || strings.EqualFold(c.LLM.Vendor, "ollama") {
		return nil
	}
	return fmt.Errorf("missing required config: API key for %s. "+
		"Set it via environment variable APPLYBOT_LLM_API_KEY or llm_api_key in %s%s",
		c.LLM.Vendor, filepath.Join(c.Data.Dir, SecretsFile), apiKeyHint())
}

// LoadDotEnv loads .env from the working directory and from dataDir, if
// present. Variables already set in the environment win.
func LoadDotEnv(dataDir string) error {
	for _, p := range []string{".env", filepath.Join(dataDir, ".env")} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
		slog.Debug("environment loaded", "file", p)
	}
	return nil
}

// ParseLogLevel maps log.level to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
