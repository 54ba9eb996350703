package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/applybot/internal/answerer"
	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/site"
)

// Answerer generates answers and cover letters. *answerer.Answerer
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (answerer.Reply, error)
	WriteCoverLetter(ctx context.Context) (string, error)
	SetJob(l listing.Listing)
}

// Responder answers application questions from the cache first and the
// answerer second, recording every newly generated answer.
type Responder struct {
	cache    *answers.Cache
	answerer Answerer
	logger   *slog.Logger
}

var _ site.Responder = (*Responder)(nil)

func NewResponder(cache *answers.Cache, a Answerer, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{cache: cache, answerer: a, logger: logger}
}

// SetJob binds the listing the next cover letter is written for.
func (r *Responder) SetJob(l listing.Listing) { r.answerer.SetJob(l) }

// AnswerQuestion returns the cached answer for question or generates and
// records a new one. Job-specific answers such as cover letters are never
// recorded, so they can never be served for another vacancy. Questions the
// answerer cannot route are reported as site.ErrSkipQuestion; a failure to
// persist is a *PersistenceError.
func (r *Responder) AnswerQuestion(ctx context.Context, question string) (string, error) {
	if a, ok := r.cache.Lookup(question); ok {
		r.logger.Debug("answer found in cache", "question", question)
		return a, nil
	}

	reply, err := r.answerer.Answer(ctx, question)
	var ce *answerer.ClassificationError
	var me *answerer.MissingSectionError
	if errors.As(err, &ce) || errors.As(err, &me) {
		return "", fmt.Errorf("%w: %w", site.ErrSkipQuestion, err)
	}
	if err != nil {
		return "", err
	}

	if !reply.Reusable() {
		r.logger.Debug("job-specific answer not cached", "question", question, "section", reply.Section)
		return reply.Text, nil
	}
	if err := r.cache.Record(ctx, question, reply.Text); err != nil {
		return "", &PersistenceError{Op: "recording answer", Err: err}
	}
	return reply.Text, nil
}

// CoverLetter writes a letter for the listing bound with SetJob.
func (r *Responder) CoverLetter(ctx context.Context) (string, error) {
	return r.answerer.WriteCoverLetter(ctx)
}
