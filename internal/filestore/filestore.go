// Package filestore persists the ledger, the answer cache and the invocation
// log as plain JSON files under an output directory, so a run's state can be
// inspected and hand-edited.
package filestore

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
)

const (
	ledgerFile      = "companies.json"
	answersFile     = "answers.json"
	invocationsFile = "model_calls.jsonl"
)

var (
	_ ledger.Store  = (*Store)(nil)
	_ answers.Store = (*Store)(nil)
	_ llm.Recorder  = (*Store)(nil)
)

// ledgerDoc is the on-disk ledger: user login -> job title -> company -> jobs.
type ledgerDoc map[string]map[string]map[string][]string

// Store reads and writes the JSON files in dir.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates dir if needed and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the files live in.
func (s *Store) Dir() string { return s.dir }

// Close is a no-op; files are closed after every operation.
func (s *Store) Close() error { return nil }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// readJSON decodes name into v. A missing or empty file leaves v untouched.
func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name atomically with the indented encoding of v.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

func (s *Store) loadLedger() (ledgerDoc, error) {
	doc := ledgerDoc{}
	if err := s.readJSON(ledgerFile, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadPartition returns id's slice of companies.json.
func (s *Store) LoadPartition(_ context.Context, id ledger.Identity) (ledger.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	return ledger.Partition(doc[id.UserLogin][id.JobTitle]).Clone(), nil
}

// SavePartition rewrites companies.json with id's partition replaced. Other
// users and titles already in the file are preserved.
func (s *Store) SavePartition(_ context.Context, id ledger.Identity, p ledger.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLedger()
	if err != nil {
		return err
	}
	if doc[id.UserLogin] == nil {
		doc[id.UserLogin] = map[string]map[string][]string{}
	}
	doc[id.UserLogin][id.JobTitle] = p.Clone()
	return s.writeJSON(ledgerFile, doc)
}

// ListIdentities returns every identity present in companies.json.
func (s *Store) ListIdentities(_ context.Context) ([]ledger.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	var ids []ledger.Identity
	for user, titles := range doc {
		for title := range titles {
			ids = append(ids, ledger.Identity{UserLogin: user, JobTitle: title})
		}
	}
	slices.SortFunc(ids, func(a, b ledger.Identity) int {
		return cmp.Or(cmp.Compare(a.UserLogin, b.UserLogin), cmp.Compare(a.JobTitle, b.JobTitle))
	})
	return ids, nil
}

// LoadAnswers returns answers.json in file order.
func (s *Store) LoadAnswers(_ context.Context) ([]answers.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []answers.Entry
	if err := s.readJSON(answersFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendAnswer rewrites answers.json with e appended.
func (s *Store) AppendAnswer(_ context.Context, e answers.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []answers.Entry
	if err := s.readJSON(answersFile, &all); err != nil {
		return err
	}
	return s.writeJSON(answersFile, append(all, e))
}

// AppendInvocation appends rec as one line of model_calls.jsonl.
func (s *Store) AppendInvocation(_ context.Context, rec llm.InvocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}

	f, err := os.OpenFile(s.path(invocationsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", invocationsFile, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", invocationsFile, err)
	}
	return f.Close()
}

// ListInvocations returns the newest limit records, newest first. limit <= 0
// returns all of them.
func (s *Store) ListInvocations(_ context.Context, limit int) ([]llm.InvocationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(invocationsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", invocationsFile, err)
	}
	defer f.Close()

	var recs []llm.InvocationRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec llm.InvocationRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", invocationsFile, n, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", invocationsFile, err)
	}

	slices.Reverse(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// CostSummary aggregates the whole invocation log.
func (s *Store) CostSummary(ctx context.Context) (llm.CostSummary, error) {
	recs, err := s.ListInvocations(ctx, 0)
	if err != nil {
		return llm.CostSummary{}, err
	}
	return llm.Summarize(recs), nil
}
