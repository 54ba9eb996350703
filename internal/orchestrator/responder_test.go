package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/applybot/internal/answerer"
	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/resume"
	"github.com/kalambet/applybot/internal/site"
)

type stubAnswerer struct {
	answer string
	err    error
	calls  int
	job    listing.Listing
}

func (s *stubAnswerer) Answer(context.Context, string) (answerer.Reply, error) {
	s.calls++
	return answerer.Reply{Text: s.answer}, s.err
}

func (s *stubAnswerer) WriteCoverLetter(context.Context) (string, error) {
	return "Dear " + s.job.CompanyName, nil
}

func (s *stubAnswerer) SetJob(l listing.Listing) { s.job = l }

type failingAnswerStore struct {
	answers.MemoryStore
	err error
}

func (s *failingAnswerStore) AppendAnswer(context.Context, answers.Entry) error { return s.err }

func newResponder(t *testing.T, store answers.Store, a Answerer) (*Responder, *answers.Cache) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	cache, err := answers.Open(context.Background(), store, logger)
	require.NoError(t, err)
	return NewResponder(cache, a, logger), cache
}

func TestAnswerQuestion_CacheHit(t *testing.T) {
	store := answers.NewMemoryStore(answers.Entry{Question: "why go?", Answer: "Because."})
	a := &stubAnswerer{answer: "unused"}
	r, _ := newResponder(t, store, a)

	got, err := r.AnswerQuestion(context.Background(), "  Why Go?")
	require.NoError(t, err)
	assert.Equal(t, "Because.", got)
	assert.Zero(t, a.calls)
}

func TestAnswerQuestion_MissRecords(t *testing.T) {
	store := answers.NewMemoryStore()
	a := &stubAnswerer{answer: "Five years."}
	r, cache := newResponder(t, store, a)
	ctx := context.Background()

	got, err := r.AnswerQuestion(ctx, "Years of Go?")
	require.NoError(t, err)
	assert.Equal(t, "Five years.", got)

	got, err = r.AnswerQuestion(ctx, "years of go?")
	require.NoError(t, err)
	assert.Equal(t, "Five years.", got)
	assert.Equal(t, 1, a.calls, "second lookup is served from the cache")

	assert.Equal(t, 1, cache.Len())
	stored, err := store.LoadAnswers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []answers.Entry{{Question: "years of go?", Answer: "Five years."}}, stored)
}

func TestAnswerQuestion_UnroutableIsSkipped(t *testing.T) {
	for _, err := range []error{
		&answerer.ClassificationError{Question: "q", Reply: "???"},
		&answerer.MissingSectionError{Question: "q", Section: "projects"},
	} {
		r, cache := newResponder(t, answers.NewMemoryStore(), &stubAnswerer{err: err})

		_, got := r.AnswerQuestion(context.Background(), "q")
		assert.ErrorIs(t, got, site.ErrSkipQuestion)
		assert.ErrorIs(t, got, err)
		assert.Zero(t, cache.Len())
	}
}

func TestAnswerQuestion_PersistFailure(t *testing.T) {
	boom := errors.New("read-only file system")
	r, _ := newResponder(t, &failingAnswerStore{err: boom}, &stubAnswerer{answer: "ok"})

	_, err := r.AnswerQuestion(context.Background(), "q")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, site.ErrSkipQuestion)
}

func TestAnswerQuestion_ModelErrorPropagates(t *testing.T) {
	r, _ := newResponder(t, answers.NewMemoryStore(), &stubAnswerer{err: context.Canceled})

	_, err := r.AnswerQuestion(context.Background(), "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, site.ErrSkipQuestion)
}

func TestCoverLetterUsesBoundJob(t *testing.T) {
	r, _ := newResponder(t, answers.NewMemoryStore(), &stubAnswerer{})
	r.SetJob(listing.Listing{CompanyName: "Acme", Title: "Go"})

	got, err := r.CoverLetter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dear Acme", got)
}

// scriptedModel replies in order.
type scriptedModel struct{ replies []string }

func (m *scriptedModel) Complete(context.Context, string) (string, error) {
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func TestAnswerQuestion_CoverLetterNotReused(t *testing.T) {
	profile, err := resume.Parse([]byte("personal_information:\n  email: alice@example.com\n"))
	require.NoError(t, err)
	model := &scriptedModel{replies: []string{"Cover letter", "Dear Acme", "Cover letter", "Dear Globex"}}
	a := answerer.New(model, slog.New(slog.DiscardHandler))
	a.SetResume(profile, "Alice, Go developer.")

	store := answers.NewMemoryStore()
	r, cache := newResponder(t, store, a)
	ctx := context.Background()

	r.SetJob(listing.Listing{CompanyName: "Acme", Title: "Go developer"})
	first, err := r.AnswerQuestion(ctx, "Why do you want to join us?")
	require.NoError(t, err)

	r.SetJob(listing.Listing{CompanyName: "Globex", Title: "Go developer"})
	second, err := r.AnswerQuestion(ctx, "Why do you want to join us?")
	require.NoError(t, err)

	assert.Equal(t, "Dear Acme", first)
	assert.Equal(t, "Dear Globex", second)
	assert.Zero(t, cache.Len())
	stored, err := store.LoadAnswers(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
