// Package persist opens the persistence backend selected by storage.backend.
package persist

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/filestore"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/redisstore"
	"github.com/kalambet/applybot/internal/storage"
)

// Backend names accepted by storage.backend.
const (
	SQLite = "sqlite"
	JSON   = "json"
	Redis  = "redis"
)

// Backend is everything the run and the operator surfaces need from
// persistence.
type Backend interface {
	ledger.Store
	answers.Store
	llm.Recorder

	ListIdentities(ctx context.Context) ([]ledger.Identity, error)
	ListInvocations(ctx context.Context, limit int) ([]llm.InvocationRecord, error)
	CostSummary(ctx context.Context) (llm.CostSummary, error)
	Close() error
}

var (
	_ Backend = (*storage.Store)(nil)
	_ Backend = (*filestore.Store)(nil)
	_ Backend = (*redisstore.Store)(nil)
)

// Config selects and locates a backend.
type Config struct {
	Backend       string
	DataDir       string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
}

// Open opens the configured backend. The sqlite database and the JSON files
// live under <DataDir>/output.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	out := filepath.Join(cfg.DataDir, "output")

	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case SQLite, "":
		b, err = openSQLite(out)
	case JSON:
		b, err = openFiles(out)
	case Redis:
		b, err = openRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want sqlite, json or redis)", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	return b, nil
}

func openSQLite(dir string) (Backend, error) {
	s, err := storage.Open(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openFiles(dir string) (Backend, error) {
	s, err := filestore.Open(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(ctx context.Context, cfg Config) (Backend, error) {
	s, err := redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithDB(cfg.RedisDB), redisstore.WithPassword(cfg.RedisPassword))
	if err != nil {
		return nil, err
	}
	return s, nil
}
