package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = Identity{UserLogin: "alice", JobTitle: "backend-engineer"}

func openLedger(t *testing.T, store Store, opts Options) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store, alice, opts)
	require.NoError(t, err)
	return l
}

func TestAlreadyHandled_OncePerCompany(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, NewMemoryStore(), Options{ApplyOnceAtCompany: true})

	require.NoError(t, l.Record(ctx, "Acme", "Go Developer"))

	assert.True(t, l.AlreadyHandled("Acme", "Go Developer"))
	assert.True(t, l.AlreadyHandled("acme", "Rust Developer"), "company-level dedup should dominate")
	assert.False(t, l.AlreadyHandled("Globex", "Go Developer"))
}

func TestAlreadyHandled_OncePerJob(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, NewMemoryStore(), Options{ApplyOnceAtCompany: false})

	require.NoError(t, l.Record(ctx, "Acme", "Go Developer"))

	assert.True(t, l.AlreadyHandled("Acme", "Go Developer"))
	assert.True(t, l.AlreadyHandled(" ACME ", "go developer"), "lookups are canonical")
	assert.False(t, l.AlreadyHandled("Acme", "Rust Developer"))
}

func TestAlreadyHandled_IdempotentAcrossPolicies(t *testing.T) {
	ctx := context.Background()
	pairs := [][2]string{{"Acme", "J1"}, {"Globex", "J2"}, {"Initech", "J3"}}

	for _, once := range []bool{true, false} {
		l := openLedger(t, NewMemoryStore(), Options{ApplyOnceAtCompany: once})
		for _, p := range pairs {
			require.NoError(t, l.Record(ctx, p[0], p[1]))
		}
		for range 2 {
			for _, p := range pairs {
				assert.True(t, l.AlreadyHandled(p[0], p[1]), "once=%v pair=%v", once, p)
			}
		}
	}
}

func TestRecord_IdempotentInsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := openLedger(t, store, Options{})

	require.NoError(t, l.Record(ctx, "Acme", "J1"))
	require.NoError(t, l.Record(ctx, "acme", "j1"))
	require.NoError(t, l.Record(ctx, "Acme", "J2"))

	assert.Equal(t, Partition{"acme": {"j1", "j2"}}, l.Snapshot())
	assert.Equal(t, 2, store.Saves(), "duplicate record should not flush")
}

func TestRecord_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := openLedger(t, store, Options{ApplyOnceAtCompany: true})

	require.NoError(t, l.Record(ctx, "Acme", "J1"))

	reopened := openLedger(t, store, Options{ApplyOnceAtCompany: true})
	assert.True(t, reopened.AlreadyHandled("Acme", "anything"))
}

func TestOpen_PartitionsByIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := openLedger(t, store, Options{ApplyOnceAtCompany: true})
	require.NoError(t, l.Record(ctx, "Acme", "J1"))

	other, err := Open(ctx, store, Identity{UserLogin: "alice", JobTitle: "data-engineer"}, Options{ApplyOnceAtCompany: true})
	require.NoError(t, err)
	assert.False(t, other.AlreadyHandled("Acme", "J1"))
}

func TestIsBlacklisted(t *testing.T) {
	l := openLedger(t, NewMemoryStore(), Options{Blacklist: []string{`"Evil Corp"`, "  Initech,"}})

	assert.True(t, l.IsBlacklisted("evil corp"))
	assert.True(t, l.IsBlacklisted("INITECH"))
	assert.False(t, l.IsBlacklisted("Acme"))
}

func TestScenario_AliceBackendEngineer(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, NewMemoryStore(), Options{ApplyOnceAtCompany: true})

	listings := [][2]string{{"A", "J1"}, {"B", "J2"}, {"A", "J3"}}
	var applied [][2]string
	for _, li := range listings {
		if l.IsBlacklisted(li[0]) || l.AlreadyHandled(li[0], li[1]) {
			continue
		}
		require.NoError(t, l.Record(ctx, li[0], li[1]))
		applied = append(applied, li)
	}

	assert.Equal(t, [][2]string{{"A", "J1"}, {"B", "J2"}}, applied)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) SavePartition(context.Context, Identity, Partition) error { return f.err }

func TestRecord_FlushFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	l := openLedger(t, failingStore{MemoryStore: NewMemoryStore(), err: boom}, Options{})

	err := l.Record(ctx, "Acme", "J1")
	require.ErrorIs(t, err, boom)
	assert.True(t, l.AlreadyHandled("Acme", "J1"))
}
