package engine

import (
	"context"
	"errors"

	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaBackend adapts the internal/ollama client to llm.Backend. It also
// satisfies ModelManager so startup can pull the configured model.
type OllamaBackend struct {
	client      *ollama.Client
	model       string
	temperature float64
}

func newOllama(cfg Config) *OllamaBackend {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	return &OllamaBackend{client: ollama.New(base), model: cfg.Model, temperature: cfg.Temperature}
}

func (b *OllamaBackend) Invoke(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	var opts *ollama.Options
	if b.temperature > 0 {
		opts = &ollama.Options{Temperature: b.temperature}
	}

	res, err := b.client.Chat(ctx, b.model, msgs, opts)
	if err != nil {
		var se *ollama.StatusError
		if errors.As(err, &se) {
			return llm.Reply{}, llm.ErrorForStatus(se.Code, se.Header, se.Body)
		}
		return llm.Reply{}, err
	}

	return llm.Reply{
		Content: res.Message.Content,
		Model:   res.Model,
		Usage: llm.Usage{
			InputTokens:  res.PromptEvalCount,
			OutputTokens: res.EvalCount,
			TotalTokens:  res.PromptEvalCount + res.EvalCount,
		},
	}, nil
}

func (b *OllamaBackend) IsRunning(ctx context.Context) bool { return b.client.IsRunning(ctx) }

func (b *OllamaBackend) HasModel(ctx context.Context, name string) bool {
	return b.client.HasModel(ctx, name)
}

func (b *OllamaBackend) PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error {
	return b.client.PullModel(ctx, name, onProgress)
}

// Model returns the configured model name.
func (b *OllamaBackend) Model() string { return b.model }
