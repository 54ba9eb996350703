package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/applybot/internal/answers"
)

var _ answers.Store = (*Store)(nil)

// LoadAnswers returns every cached answer in insertion order.
func (s *Store) LoadAnswers(ctx context.Context) ([]answers.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT question, answer FROM answers ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	var out []answers.Entry
	for rows.Next() {
		var e answers.Entry
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendAnswer appends e. Duplicate questions are kept; lookups take the first.
func (s *Store) AppendAnswer(ctx context.Context, e answers.Entry) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO answers (question, answer) VALUES (?, ?)", e.Question, e.Answer); err != nil {
		return fmt.Errorf("inserting answer: %w", err)
	}
	return nil
}
