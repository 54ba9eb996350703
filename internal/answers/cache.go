// Package answers caches generated answers to application questions so a
// question seen before is never sent to the model again.
package answers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kalambet/applybot/internal/canon"
)

// Entry is one answered question. Question is stored in canonical form.
type Entry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Store persists the ordered answer log.
type Store interface {
	LoadAnswers(ctx context.Context) ([]Entry, error)
	AppendAnswer(ctx context.Context, e Entry) error
}

// Cache matches questions by canonical equality only.
type Cache struct {
	store   Store
	entries []Entry
	logger  *slog.Logger
}

// Open loads every stored entry from store.
func Open(ctx context.Context, store Store, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := store.LoadAnswers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading answers: %w", err)
	}
	logger.Debug("answer cache loaded", "entries", len(entries))
	return &Cache{store: store, entries: entries, logger: logger}, nil
}

// Lookup returns the answer of the first entry whose question canonically
// equals question.
func (c *Cache) Lookup(question string) (string, bool) {
	key := canon.Text(question)
	for _, e := range c.entries {
		if canon.Text(e.Question) == key {
			return e.Answer, true
		}
	}
	return "", false
}

// Record appends (question, answer) and persists it immediately. The entry
// stays in memory even if persisting fails.
func (c *Cache) Record(ctx context.Context, question, answer string) error {
	e := Entry{Question: canon.Text(question), Answer: answer}
	c.entries = append(c.entries, e)
	if err := c.store.AppendAnswer(ctx, e); err != nil {
		return fmt.Errorf("persisting answer: %w", err)
	}
	c.logger.Debug("answer recorded", "question", e.Question)
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Entries returns a copy of the cache in insertion order.
func (c *Cache) Entries() []Entry { return slices.Clone(c.entries) }
