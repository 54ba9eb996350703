package answers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCache(t *testing.T, store Store) *Cache {
	t.Helper()
	c, err := Open(context.Background(), store, nil)
	require.NoError(t, err)
	return c
}

func TestRecordThenLookup(t *testing.T) {
	c := openCache(t, NewMemoryStore())

	require.NoError(t, c.Record(context.Background(), "Why do you want to join us?", "Because."))

	got, ok := c.Lookup("Why do you want to join us?")
	require.True(t, ok)
	assert.Equal(t, "Because.", got)
}

func TestLookup_CanonicalEquality(t *testing.T) {
	c := openCache(t, NewMemoryStore())
	require.NoError(t, c.Record(context.Background(), "Expected  Salary?", "200k"))

	got, ok := c.Lookup("  expected salary?\n")
	require.True(t, ok)
	assert.Equal(t, "200k", got)

	_, ok = c.Lookup("expected salary range?")
	assert.False(t, ok, "near matches must miss")
}

func TestLookup_Miss(t *testing.T) {
	c := openCache(t, NewMemoryStore())
	_, ok := c.Lookup("never asked")
	assert.False(t, ok)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	store := NewMemoryStore(
		Entry{Question: "notice period?", Answer: "two weeks"},
		Entry{Question: "Notice Period?", Answer: "one month"},
	)
	c := openCache(t, store)

	got, ok := c.Lookup("NOTICE PERIOD?")
	require.True(t, ok)
	assert.Equal(t, "two weeks", got)
}

func TestRecord_PersistsCanonicalQuestion(t *testing.T) {
	store := NewMemoryStore()
	c := openCache(t, store)
	require.NoError(t, c.Record(context.Background(), `  "Remote?"  `, "Yes"))

	stored, err := store.LoadAnswers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Question: "remote?", Answer: "Yes"}}, stored)

	reopened := openCache(t, store)
	got, ok := reopened.Lookup("REMOTE?")
	require.True(t, ok)
	assert.Equal(t, "Yes", got)
}

type brokenStore struct{ MemoryStore }

func (b *brokenStore) AppendAnswer(context.Context, Entry) error { return errors.New("read-only") }

func TestRecord_StoreError(t *testing.T) {
	c := openCache(t, &brokenStore{})
	err := c.Record(context.Background(), "q", "a")
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}
