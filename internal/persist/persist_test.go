package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/applybot/internal/ledger"
)

func TestOpen_FileBackends(t *testing.T) {
	for _, tc := range []struct {
		backend string
		file    string
	}{
		{SQLite, "applybot.db"},
		{JSON, "companies.json"},
	} {
		t.Run(tc.backend, func(t *testing.T) {
			dir := t.TempDir()
			b, err := Open(context.Background(), Config{Backend: tc.backend, DataDir: dir})
			require.NoError(t, err)
			defer b.Close()

			id := ledger.Identity{UserLogin: "alice", JobTitle: "sre"}
			require.NoError(t, b.SavePartition(context.Background(), id, ledger.Partition{"acme": {"sre"}}))

			_, err = os.Stat(filepath.Join(dir, "output", tc.file))
			assert.NoError(t, err)
		})
	}
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "mongo", DataDir: t.TempDir()})
	assert.ErrorContains(t, err, "unknown storage backend")
}
