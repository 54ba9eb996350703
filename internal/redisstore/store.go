// Package redisstore keeps the ledger, the answer cache and the invocation
// log in Redis so several machines can share one application history.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
)

const defaultPrefix = "applybot"

var (
	_ ledger.Store  = (*Store)(nil)
	_ answers.Store = (*Store)(nil)
	_ llm.Recorder  = (*Store)(nil)
)

// Store is the Redis persistence backend. Layout under the key prefix:
//
//	<prefix>:ledger:<user>:<title>  hash company -> JSON job list
//	<prefix>:identities             set of JSON-encoded identities
//	<prefix>:answers                list of JSON answer entries
//	<prefix>:invocations            list of JSON invocation records
type Store struct {
	client   *goredis.Client
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) { s.password = password }
}

func WithDB(db int) Option {
	return func(s *Store) { s.db = db }
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// New connects to addr and pings it.
func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	s := &Store{prefix: defaultPrefix, addr: addr}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) ledgerKey(id ledger.Identity) string {
	return s.prefix + ":ledger:" + id.UserLogin + ":" + id.JobTitle
}

func (s *Store) identitiesKey() string  { return s.prefix + ":identities" }
func (s *Store) answersKey() string     { return s.prefix + ":answers" }
func (s *Store) invocationsKey() string { return s.prefix + ":invocations" }

func (s *Store) LoadPartition(ctx context.Context, id ledger.Identity) (ledger.Partition, error) {
	fields, err := s.client.HGetAll(ctx, s.ledgerKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading ledger for %s: %w", id, err)
	}
	p := make(ledger.Partition, len(fields))
	for company, raw := range fields {
		var jobs []string
		if err := json.Unmarshal([]byte(raw), &jobs); err != nil {
			return nil, fmt.Errorf("decoding jobs for %q: %w", company, err)
		}
		p[company] = jobs
	}
	return p, nil
}

// SavePartition replaces id's hash atomically.
func (s *Store) SavePartition(ctx context.Context, id ledger.Identity, p ledger.Partition) error {
	member, err := json.Marshal([2]string{id.UserLogin, id.JobTitle})
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}

	values := make([]any, 0, 2*len(p))
	for _, company := range p.Companies() {
		jobs, err := json.Marshal(p[company])
		if err != nil {
			return fmt.Errorf("encoding jobs for %q: %w", company, err)
		}
		values = append(values, company, string(jobs))
	}

	key := s.ledgerKey(id)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values...)
	}
	pipe.SAdd(ctx, s.identitiesKey(), string(member))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving ledger for %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]ledger.Identity, error) {
	members, err := s.client.SMembers(ctx, s.identitiesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	slices.Sort(members)

	ids := make([]ledger.Identity, 0, len(members))
	for _, m := range members {
		var pair [2]string
		if err := json.Unmarshal([]byte(m), &pair); err != nil {
			return nil, fmt.Errorf("decoding identity %q: %w", m, err)
		}
		ids = append(ids, ledger.Identity{UserLogin: pair[0], JobTitle: pair[1]})
	}
	return ids, nil
}

func (s *Store) LoadAnswers(ctx context.Context) ([]answers.Entry, error) {
	raws, err := s.client.LRange(ctx, s.answersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading answers: %w", err)
	}
	out := make([]answers.Entry, 0, len(raws))
	for _, raw := range raws {
		var e answers.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decoding answer: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) AppendAnswer(ctx context.Context, e answers.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding answer: %w", err)
	}
	if err := s.client.RPush(ctx, s.answersKey(), string(raw)).Err(); err != nil {
		return fmt.Errorf("appending answer: %w", err)
	}
	return nil
}

func (s *Store) AppendInvocation(ctx context.Context, rec llm.InvocationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}
	if err := s.client.RPush(ctx, s.invocationsKey(), string(raw)).Err(); err != nil {
		return fmt.Errorf("appending invocation: %w", err)
	}
	return nil
}

// ListInvocations returns up to limit records, newest first. limit <= 0
// returns all of them.
func (s *Store) ListInvocations(ctx context.Context, limit int) ([]llm.InvocationRecord, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := s.client.LRange(ctx, s.invocationsKey(), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading invocations: %w", err)
	}

	out := make([]llm.InvocationRecord, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var rec llm.InvocationRecord
		if err := json.Unmarshal([]byte(raws[i]), &rec); err != nil {
			return nil, fmt.Errorf("decoding invocation: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) CostSummary(ctx context.Context) (llm.CostSummary, error) {
	recs, err := s.ListInvocations(ctx, 0)
	if err != nil {
		return llm.CostSummary{}, err
	}
	return llm.Summarize(recs), nil
}
