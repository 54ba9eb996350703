// Package engine holds the vendor variants of llm.Backend and the factory
// that picks one from configuration.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/applybot/internal/llm"
)

// Vendor names accepted by llm.vendor.
const (
	VendorOpenAI     = "openai"
	VendorOpenRouter = "openrouter"
	VendorAnthropic  = "anthropic"
	VendorOllama     = "ollama"
	VendorGemini     = "gemini"
)

const defaultTimeout = 120 * time.Second

// Config selects and parameterizes a backend.
type Config struct {
	Vendor      string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// Vendors lists the supported vendor names.
func Vendors() []string {
	return []string{VendorOpenAI, VendorOpenRouter, VendorAnthropic, VendorOllama, VendorGemini}
}

// New builds the backend named by cfg.Vendor.
func New(ctx context.Context, cfg Config) (llm.Backend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("engine: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	switch strings.ToLower(cfg.Vendor) {
	case VendorOpenAI:
		return newOpenAI(cfg, defaultOpenAIURL, nil)
	case VendorOpenRouter:
		return newOpenAI(cfg, defaultOpenRouterURL, map[string]string{
			"HTTP-Referer": "https://github.com/kalambet/applybot",
			"X-Title":      "applybot",
		})
	case VendorAnthropic:
		return newAnthropic(cfg)
	case VendorOllama:
		return newOllama(cfg), nil
	case VendorGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("engine: unknown vendor %q (want one of %s)", cfg.Vendor, strings.Join(Vendors(), ", "))
	}
}

func requireKey(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("engine: %s requires an API key (set llm.api_key or APPLYBOT_LLM_API_KEY)", cfg.Vendor)
	}
	return nil
}

// splitSystem pulls system turns out of messages for vendors that take the
// system prompt separately.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var system []string
	rest := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
