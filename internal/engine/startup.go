package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/ollama"
)

// ModelManager is implemented by backends that host models locally.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
}

// EnsureReady checks that a local backend is reachable and pulls model if it
// is missing, writing progress to w. Remote backends are returned untouched.
func EnsureReady(ctx context.Context, b llm.Backend, model string, w io.Writer) error {
	m, ok := b.(ModelManager)
	if !ok {
		return nil
	}
	if !m.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; start ollama and retry")
	}
	if m.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", model)
	err := m.PullModel(ctx, model, func(p ollama.PullProgress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
			return
		}
		fmt.Fprintf(w, "  %s\n", p.Status)
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
