package llm

import (
	"context"
	"time"
)

// InvocationRecord is the audit entry written for every successful call.
type InvocationRecord struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Time         time.Time `json:"time"`
	Prompts      []Message `json:"prompts"`
	Reply        string    `json:"reply"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"total_cost"`
}

// Recorder appends invocation records to the audit log.
type Recorder interface {
	AppendInvocation(ctx context.Context, rec InvocationRecord) error
}

// CostSummary aggregates invocation records.
type CostSummary struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"total_cost"`
}

// Add folds rec into s.
func (s *CostSummary) Add(rec InvocationRecord) {
	s.Calls++
	s.InputTokens += rec.InputTokens
	s.OutputTokens += rec.OutputTokens
	s.TotalTokens += rec.TotalTokens
	s.Cost += rec.Cost
}

// Summarize aggregates recs.
func Summarize(recs []InvocationRecord) CostSummary {
	var s CostSummary
	for _, r := range recs {
		s.Add(r)
	}
	return s
}
