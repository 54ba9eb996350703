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
	defaultOpenAIURL     = "https://api.openai.com/v1"
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// openAIBackend speaks the chat completions protocol shared by OpenAI and
// OpenRouter.
type openAIBackend struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	headers     map[string]string
	httpClient  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func newOpenAI(cfg Config, defaultURL string, headers map[string]string) (*openAIBackend, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultURL
	}
	return &openAIBackend{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(base, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		headers:     headers,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (b *openAIBackend) Invoke(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	in := chatRequest{Model: b.model, Messages: messages}
	if b.temperature > 0 {
		t := b.temperature
		in.Temperature = &t
	}
	body, err := json.Marshal(in)
	if err != nil {
		return llm.Reply{}, llm.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, llm.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return llm.Reply{}, llm.ErrorForStatus(resp.StatusCode, resp.Header, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.Reply{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return llm.Reply{}, fmt.Errorf("response has no choices")
	}

	return llm.Reply{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage: llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
	}, nil
}
