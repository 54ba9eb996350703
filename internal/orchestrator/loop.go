// Package orchestrator runs the apply loop: it walks result pages, checks
// every listing against the ledger and applies to the new ones.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/applybot/internal/driver"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/pacing"
	"github.com/kalambet/applybot/internal/site"
)

// PersistenceError wraps a ledger or answer cache write failure. It ends
// the run; in-memory state is kept as it was.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Pager opens result pages. *site.Pager satisfies it.
type Pager interface {
	NextPage(ctx context.Context, n int) (bool, error)
}

// Scraper lists and reads vacancies. *site.Scraper satisfies it.
type Scraper interface {
	Listings(ctx context.Context) ([]driver.Element, error)
	Scrape(ctx context.Context) (listing.Listing, error)
}

// Tabs opens a listing in its own tab and returns to the results.
// *site.Browser satisfies it.
type Tabs interface {
	OpenListing(ctx context.Context, el driver.Element) error
	CloseListing(ctx context.Context) error
}

// Applier sends the response for the focused vacancy. *site.Applier
// satisfies it.
type Applier interface {
	Apply(ctx context.Context) (site.Outcome, error)
}

// Options bounds and paces a run.
type Options struct {
	// MaxPages stops the run after that many result pages; 0 is unlimited.
	MaxPages int
	// MinimumPageDuration is the least time spent on one result page.
	MinimumPageDuration time.Duration
	PageBreakLow        time.Duration
	PageBreakHigh       time.Duration
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Pager     Pager
	Scraper   Scraper
	Tabs      Tabs
	Applier   Applier
	Responder *Responder
	Ledger    *ledger.Ledger
	Pacer     *pacing.Pacer
	Logger    *slog.Logger
}

// Stats counts what a run did.
type Stats struct {
	Pages          int
	Listings       int
	Applied        int
	AlreadyApplied int
	Blacklisted    int
	Duplicates     int
	Failed         int
}

// Loop is the apply loop. It is not safe for concurrent use.
type Loop struct {
	Deps
	opts  Options
	stats Stats
}

// NewLoop creates a Loop. Zero pacing options take the defaults.
func NewLoop(deps Deps, opts Options) *Loop {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pacer == nil {
		deps.Pacer = pacing.New(pacing.Options{Logger: deps.Logger})
	}
	if opts.MinimumPageDuration == 0 {
		opts.MinimumPageDuration = time.Minute
	}
	if opts.PageBreakHigh == 0 {
		opts.PageBreakLow, opts.PageBreakHigh = 20*time.Second, 40*time.Second
	}
	return &Loop{Deps: deps, opts: opts}
}

// Stats returns the counters of the current run.
func (l *Loop) Stats() Stats { return l.stats }

// Run applies page by page until the pages run out, MaxPages is reached,
// ctx ends or a persistence error occurs.
func (l *Loop) Run(ctx context.Context) error {
	for page := 1; l.opts.MaxPages == 0 || page <= l.opts.MaxPages; page++ {
		ok, err := l.Pager.NextPage(ctx, page)
		if err != nil {
			return fmt.Errorf("opening page %d: %w", page, err)
		}
		if !ok {
			l.Logger.Info("no more result pages", "pages", page-1)
			return nil
		}

		start := l.Pacer.Now()
		l.stats.Pages++
		if err := l.runPage(ctx, page); err != nil {
			return err
		}

		if err := l.Pacer.EnforceMinimumPageDuration(ctx, start, l.opts.MinimumPageDuration); err != nil {
			return err
		}
		if err := l.Pacer.PauseInterruptible(ctx, l.opts.PageBreakLow, l.opts.PageBreakHigh); err != nil {
			return err
		}
	}
	l.Logger.Info("page limit reached", "max_pages", l.opts.MaxPages)
	return nil
}

func (l *Loop) runPage(ctx context.Context, page int) error {
	els, err := l.Scraper.Listings(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		l.Logger.Warn("could not list vacancies, abandoning page", "page", page, "error", err)
		return nil
	}
	l.Logger.Info("result page opened", "page", page, "listings", len(els))

	failed := 0
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.stats.Listings++
		err := l.handle(ctx, el)
		if err == nil {
			continue
		}
		if fatal(ctx, err) {
			return err
		}
		failed++
		l.stats.Failed++
		l.Logger.Warn("listing skipped", "page", page, "listing", el.Text, "error", err)
	}
	if len(els) > 0 && failed == len(els) {
		l.Logger.Warn("every listing on the page failed, moving on", "page", page)
	}
	return nil
}

// fatal reports errors that end the run rather than one listing.
func fatal(ctx context.Context, err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) || ctx.Err() != nil
}

// handle opens one listing, applies if it is new and returns to the
// results tab.
func (l *Loop) handle(ctx context.Context, el driver.Element) error {
	if err := l.Tabs.OpenListing(ctx, el); err != nil {
		return fmt.Errorf("opening listing: %w", err)
	}
	err := l.consider(ctx)
	if cerr := l.Tabs.CloseListing(ctx); cerr != nil && err == nil {
		err = fmt.Errorf("closing listing: %w", cerr)
	}
	return err
}

func (l *Loop) consider(ctx context.Context) error {
	job, err := l.Scraper.Scrape(ctx)
	if err != nil {
		return err
	}
	company, title := job.Key()
	log := l.Logger.With("company", company, "job", title)

	if l.Ledger.IsBlacklisted(company) {
		l.stats.Blacklisted++
		log.Info("company is blacklisted, skipping")
		return nil
	}
	if l.Ledger.AlreadyHandled(company, title) {
		l.stats.Duplicates++
		log.Info("already applied, skipping")
		return nil
	}

	l.Responder.SetJob(job)
	outcome, err := l.Applier.Apply(ctx)
	if err != nil {
		return fmt.Errorf("applying: %w", err)
	}

	// Only a finished application is recorded; a failed one stays eligible
	// for the next run.
	if err := l.Ledger.Record(ctx, job.CompanyName, job.Title); err != nil {
		return &PersistenceError{Op: "recording application", Err: err}
	}
	switch outcome {
	case site.Applied:
		l.stats.Applied++
	case site.AlreadyApplied:
		l.stats.AlreadyApplied++
	}
	log.Info("vacancy handled", "outcome", outcome.String())
	return nil
}
