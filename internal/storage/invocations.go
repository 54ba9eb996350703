package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/applybot/internal/llm"
)

var _ llm.Recorder = (*Store)(nil)

// Fixed width so that text ordering is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AppendInvocation writes one model invocation record.
func (s *Store) AppendInvocation(ctx context.Context, rec llm.InvocationRecord) error {
	prompts, err := json.Marshal(rec.Prompts)
	if err != nil {
		return fmt.Errorf("marshaling prompts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations
		 (id, model, time, prompts, reply, input_tokens, output_tokens, total_tokens, total_cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.Time.UTC().Format(timeLayout), string(prompts), rec.Reply,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.Cost)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}
	return nil
}

const invocationColumns = `id, model, time, prompts, reply, input_tokens, output_tokens, total_tokens, total_cost`

// ListInvocations returns the most recent records, newest first. limit <= 0
// returns all of them.
func (s *Store) ListInvocations(ctx context.Context, limit int) ([]llm.InvocationRecord, error) {
	q := "SELECT " + invocationColumns + " FROM invocations ORDER BY time DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	var out []llm.InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetInvocation returns the record with the given id or ErrNotFound.
func (s *Store) GetInvocation(ctx context.Context, id string) (llm.InvocationRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+invocationColumns+" FROM invocations WHERE id = ?", id)
	rec, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return llm.InvocationRecord{}, ErrNotFound
	}
	return rec, err
}

// CostSummary aggregates the whole invocation log in SQL.
func (s *Store) CostSummary(ctx context.Context) (llm.CostSummary, error) {
	var sum llm.CostSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(total_tokens), 0), COALESCE(SUM(total_cost), 0)
		 FROM invocations`).
		Scan(&sum.Calls, &sum.InputTokens, &sum.OutputTokens, &sum.TotalTokens, &sum.Cost)
	if err != nil {
		return llm.CostSummary{}, fmt.Errorf("summarizing invocations: %w", err)
	}
	return sum, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(sc scanner) (llm.InvocationRecord, error) {
	var (
		rec     llm.InvocationRecord
		ts      string
		prompts string
	)
	if err := sc.Scan(&rec.ID, &rec.Model, &ts, &prompts, &rec.Reply,
		&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.Cost); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scanning invocation: %w", err)
	}
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return rec, fmt.Errorf("parsing invocation time %q: %w", ts, err)
	}
	rec.Time = t
	if err := json.Unmarshal([]byte(prompts), &rec.Prompts); err != nil {
		return rec, fmt.Errorf("decoding prompts: %w", err)
	}
	return rec, nil
}
