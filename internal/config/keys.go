package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "data.dir", typ: kString, env: "APPLYBOT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Data.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Data.Dir },
	},
	{
		key: "storage.backend", typ: kString, env: "APPLYBOT_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "redis.addr", typ: kString, env: "APPLYBOT_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.db", typ: kInt, env: "APPLYBOT_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
		extract: func(cfg Config) any { return cfg.Redis.DB },
	},
	{
		key: "redis.password", typ: kString, env: "APPLYBOT_REDIS_PASSWORD",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Redis.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Password },
	},
	{
		key: "llm.vendor", typ: kString, env: "APPLYBOT_LLM_VENDOR",
		apply:   func(cfg *Config, v any) { cfg.LLM.Vendor = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Vendor },
	},
	{
		key: "llm.model", typ: kString, env: "APPLYBOT_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.base_url", typ: kString, env: "APPLYBOT_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "APPLYBOT_LLM_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.requests_per_minute", typ: kInt, env: "APPLYBOT_LLM_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.LLM.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.RequestsPerMinute },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "APPLYBOT_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.fallback_wait", typ: kDuration, env: "APPLYBOT_LLM_FALLBACK_WAIT",
		apply:   func(cfg *Config, v any) { cfg.LLM.FallbackWait = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.FallbackWait },
	},
	{
		key: "apply.once_at_company", typ: kBool, env: "APPLYBOT_APPLY_ONCE_AT_COMPANY",
		apply:   func(cfg *Config, v any) { cfg.Apply.OnceAtCompany = v.(bool) },
		extract: func(cfg Config) any { return cfg.Apply.OnceAtCompany },
	},
	{
		key: "apply.max_pages", typ: kInt, env: "APPLYBOT_APPLY_MAX_PAGES",
		apply:   func(cfg *Config, v any) { cfg.Apply.MaxPages = v.(int) },
		extract: func(cfg Config) any { return cfg.Apply.MaxPages },
	},
	{
		key: "pacing.minimum_page_seconds", typ: kInt, env: "APPLYBOT_PACING_MINIMUM_PAGE_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Pacing.MinimumPageSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Pacing.MinimumPageSeconds },
	},
	{
		key: "pacing.page_break_low", typ: kDuration, env: "APPLYBOT_PACING_PAGE_BREAK_LOW",
		apply:   func(cfg *Config, v any) { cfg.Pacing.PageBreakLow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pacing.PageBreakLow },
	},
	{
		key: "pacing.page_break_high", typ: kDuration, env: "APPLYBOT_PACING_PAGE_BREAK_HIGH",
		apply:   func(cfg *Config, v any) { cfg.Pacing.PageBreakHigh = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pacing.PageBreakHigh },
	},
	{
		key: "pacing.action_low", typ: kDuration, env: "APPLYBOT_PACING_ACTION_LOW",
		apply:   func(cfg *Config, v any) { cfg.Pacing.ActionLow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pacing.ActionLow },
	},
	{
		key: "pacing.action_high", typ: kDuration, env: "APPLYBOT_PACING_ACTION_HIGH",
		apply:   func(cfg *Config, v any) { cfg.Pacing.ActionHigh = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pacing.ActionHigh },
	},
	{
		key: "prompt.confirm_timeout", typ: kDuration, env: "APPLYBOT_PROMPT_CONFIRM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Prompt.ConfirmTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Prompt.ConfirmTimeout },
	},
	{
		key: "webdriver.url", typ: kString, env: "APPLYBOT_WEBDRIVER_URL",
		apply:   func(cfg *Config, v any) { cfg.WebDriver.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.WebDriver.URL },
	},
	{
		key: "webdriver.browser", typ: kString, env: "APPLYBOT_WEBDRIVER_BROWSER",
		apply:   func(cfg *Config, v any) { cfg.WebDriver.Browser = v.(string) },
		extract: func(cfg Config) any { return cfg.WebDriver.Browser },
	},
	{
		key: "site.base_url", typ: kString, env: "APPLYBOT_SITE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Site.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Site.BaseURL },
	},
	{
		key: "site.selectors", typ: kString, env: "APPLYBOT_SITE_SELECTORS",
		apply:   func(cfg *Config, v any) { cfg.Site.Selectors = v.(string) },
		extract: func(cfg Config) any { return cfg.Site.Selectors },
	},
	{
		key: "server.port", typ: kInt, env: "APPLYBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "APPLYBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts raw text to the Go type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("could not parse config key, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
