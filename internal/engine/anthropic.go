package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/applybot/internal/llm"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 1024
)

type anthropicBackend struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func newAnthropic(cfg Config) (*anthropicBackend, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultAnthropicURL
	}
	return &anthropicBackend{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(base, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (b *anthropicBackend) Invoke(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	system, turns := splitSystem(messages)
	body, err := json.Marshal(messagesRequest{
		Model:       b.model,
		Messages:    turns,
		MaxTokens:   anthropicMaxTokens,
		System:      system,
		Temperature: b.temperature,
	})
	if err != nil {
		return llm.Reply{}, llm.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, llm.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// 529 is Anthropic's "overloaded"; treat it like a rate limit.
		status := resp.StatusCode
		if status == 529 {
			status = http.StatusTooManyRequests
		}
		return llm.Reply{}, llm.ErrorForStatus(status, resp.Header, strings.TrimSpace(string(raw)))
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.Reply{}, fmt.Errorf("decoding response: %w", err)
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return llm.Reply{
		Content: text.String(),
		Model:   out.Model,
		Usage: llm.Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			TotalTokens:  out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}
