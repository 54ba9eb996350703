package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/kalambet/applybot/internal/llm"
)

type geminiBackend struct {
	client      *genai.Client
	model       string
	temperature float64
}

func newGemini(ctx context.Context, cfg Config) (*geminiBackend, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiBackend{client: gc, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (b *geminiBackend) Invoke(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	system, turns := splitSystem(messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if b.temperature > 0 {
		t := float32(b.temperature)
		config.Temperature = &t
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return llm.Reply{}, geminiError(err)
	}

	reply := llm.Reply{Content: resp.Text(), Model: resp.ModelVersion}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage = llm.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return reply, nil
}

// geminiError maps genai API errors onto the retry classification. The SDK
// does not expose response headers, so rate limits use the fallback wait.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ErrorForStatus(apiErr.Code, http.Header{}, apiErr.Message)
	}
	return fmt.Errorf("gemini generation failed: %w", err)
}
