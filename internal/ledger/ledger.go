// Package ledger records which companies and jobs were already applied to so
// repeated runs never apply twice.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kalambet/applybot/internal/canon"
)

// Identity names one search profile. Ledger state is partitioned by it so the
// same user can run independent searches for different roles.
type Identity struct {
	UserLogin string
	JobTitle  string
}

func (id Identity) String() string {
	return id.UserLogin + "/" + id.JobTitle
}

// Partition maps a canonical company name to the canonical job titles applied
// to at that company, in the order they were recorded.
type Partition map[string][]string

// Clone returns a deep copy of p.
func (p Partition) Clone() Partition {
	out := make(Partition, len(p))
	for company, jobs := range p {
		out[company] = slices.Clone(jobs)
	}
	return out
}

// Companies returns the company names in p, sorted.
func (p Partition) Companies() []string {
	out := make([]string, 0, len(p))
	for company := range p {
		out = append(out, company)
	}
	slices.Sort(out)
	return out
}

// Store persists ledger partitions. Implemented by storage.Store,
// filestore.Store and redisstore.Store.
type Store interface {
	LoadPartition(ctx context.Context, id Identity) (Partition, error)
	SavePartition(ctx context.Context, id Identity, p Partition) error
}

// Options configures a Ledger.
type Options struct {
	// ApplyOnceAtCompany makes any recorded job at a company count as handled
	// for every other job there.
	ApplyOnceAtCompany bool
	// Blacklist holds company names that are never applied to. Entries are
	// canonicalized once on Open.
	Blacklist []string
	Logger    *slog.Logger
}

// Ledger is the in-memory view of one identity's partition plus the static
// blacklist. It is not safe for concurrent use; the apply loop is its only
// writer.
type Ledger struct {
	id                 Identity
	store              Store
	applyOnceAtCompany bool
	blacklist          map[string]struct{}
	companies          Partition
	logger             *slog.Logger
}

// Open loads the partition for id from store. A missing partition yields an
// empty ledger.
func Open(ctx context.Context, store Store, id Identity, opts Options) (*Ledger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p, err := store.LoadPartition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading ledger for %s: %w", id, err)
	}
	if p == nil {
		p = Partition{}
	}

	l := &Ledger{
		id:                 id,
		store:              store,
		applyOnceAtCompany: opts.ApplyOnceAtCompany,
		blacklist:          canon.Set(opts.Blacklist),
		companies:          p,
		logger:             logger,
	}
	logger.Debug("ledger loaded", "identity", id.String(), "companies", len(p), "blacklisted", len(l.blacklist))
	return l, nil
}

// Identity returns the search profile this ledger is partitioned by.
func (l *Ledger) Identity() Identity { return l.id }

// IsBlacklisted reports whether company is on the blacklist.
func (l *Ledger) IsBlacklisted(company string) bool {
	_, ok := l.blacklist[canon.Text(company)]
	return ok
}

// AlreadyHandled reports whether applying to job at company would duplicate
// an earlier application under the configured policy.
func (l *Ledger) AlreadyHandled(company, job string) bool {
	jobs, ok := l.companies[canon.Text(company)]
	if !ok {
		return false
	}
	if l.applyOnceAtCompany {
		return true
	}
	return slices.Contains(jobs, canon.Text(job))
}

// Record adds (company, job) and flushes the partition. Recording a pair that
// is already present is a no-op and does not touch the store.
//
// On a flush failure the in-memory entry is kept: the persisted ledger may lag
// reality by one application but is never ahead of it.
func (l *Ledger) Record(ctx context.Context, company, job string) error {
	c, j := canon.Text(company), canon.Text(job)
	if slices.Contains(l.companies[c], j) {
		return nil
	}
	l.companies[c] = append(l.companies[c], j)
	l.logger.Debug("ledger entry recorded", "company", c, "job", j)
	return l.Flush(ctx)
}

// Flush persists the full partition.
func (l *Ledger) Flush(ctx context.Context) error {
	if err := l.store.SavePartition(ctx, l.id, l.companies.Clone()); err != nil {
		return fmt.Errorf("flushing ledger for %s: %w", l.id, err)
	}
	return nil
}

// Snapshot returns a copy of the current partition.
func (l *Ledger) Snapshot() Partition {
	return l.companies.Clone()
}
