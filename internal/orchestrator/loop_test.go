package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/applybot/internal/answerer"
	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/driver"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/pacing"
	"github.com/kalambet/applybot/internal/site"
)

var alice = ledger.Identity{UserLogin: "alice", JobTitle: "backend-engineer"}

// fakeSite plays result pages of listings. Element IDs are "page/index".
type fakeSite struct {
	pages      [][]listing.Listing
	page       int
	open       *listing.Listing
	scrapeErr  map[string]error
	applyErr   error
	answered   map[string]site.Outcome
	navigated  []int
	applied    []string
	closed     int
	boundJobs  []string
	onNextPage func(n int)
}

func (f *fakeSite) NextPage(_ context.Context, n int) (bool, error) {
	f.navigated = append(f.navigated, n)
	if f.onNextPage != nil {
		f.onNextPage(n)
	}
	if n > len(f.pages) {
		return false, nil
	}
	f.page = n - 1
	return true, nil
}

func (f *fakeSite) Listings(context.Context) ([]driver.Element, error) {
	var els []driver.Element
	for i, l := range f.pages[f.page] {
		els = append(els, driver.Element{ID: string(rune('0' + i)), Text: l.Title})
	}
	return els, nil
}

func (f *fakeSite) OpenListing(_ context.Context, el driver.Element) error {
	l := f.pages[f.page][int(el.ID[0]-'0')]
	f.open = &l
	return nil
}

func (f *fakeSite) CloseListing(context.Context) error {
	f.open = nil
	f.closed++
	return nil
}

func (f *fakeSite) Scrape(context.Context) (listing.Listing, error) {
	if err := f.scrapeErr[f.open.Title]; err != nil {
		return listing.Listing{}, err
	}
	return *f.open, nil
}

func (f *fakeSite) Apply(context.Context) (site.Outcome, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	f.applied = append(f.applied, f.open.CompanyName+"/"+f.open.Title)
	return f.answered[f.open.Title], nil
}

// jobRecorder stands in for the answerer and remembers bound jobs.
type jobRecorder struct {
	site *fakeSite
}

func (j jobRecorder) Answer(context.Context, string) (answerer.Reply, error) {
	return answerer.Reply{Text: "yes"}, nil
}

func (j jobRecorder) WriteCoverLetter(context.Context) (string, error) { return "letter", nil }

func (j jobRecorder) SetJob(l listing.Listing) {
	j.site.boundJobs = append(j.site.boundJobs, l.Title)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestLoop(t *testing.T, fs *fakeSite, store ledger.Store, lopts ledger.Options, opts Options) (*Loop, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	lopts.Logger = logger

	led, err := ledger.Open(ctx, store, alice, lopts)
	require.NoError(t, err)
	cache, err := answers.Open(ctx, answers.NewMemoryStore(), logger)
	require.NoError(t, err)

	loop := NewLoop(Deps{
		Pager:     fs,
		Scraper:   fs,
		Tabs:      fs,
		Applier:   fs,
		Responder: NewResponder(cache, jobRecorder{site: fs}, logger),
		Ledger:    led,
		Pacer:     pacing.New(pacing.Options{Sleep: noSleep, Logger: logger}),
		Logger:    logger,
	}, opts)
	return loop, led
}

func aliceListings() []listing.Listing {
	return []listing.Listing{
		{CompanyName: "A", Title: "J1"},
		{CompanyName: "B", Title: "J2"},
		{CompanyName: "A", Title: "J3"},
	}
}

func TestRun_OncePerCompany(t *testing.T) {
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, led := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{ApplyOnceAtCompany: true}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"A/J1", "B/J2"}, fs.applied)
	want := ledger.Partition{"a": {"j1"}, "b": {"j2"}}
	if diff := cmp.Diff(want, led.Snapshot()); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, loop.Stats().Duplicates)
	assert.Equal(t, 3, fs.closed, "every opened tab is closed")
	assert.Equal(t, []int{1, 2}, fs.navigated)
}

func TestRun_OncePerJob(t *testing.T) {
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, led := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{ApplyOnceAtCompany: false}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"A/J1", "B/J2", "A/J3"}, fs.applied)
	want := ledger.Partition{"a": {"j1", "j3"}, "b": {"j2"}}
	if diff := cmp.Diff(want, led.Snapshot()); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"J1", "J2", "J3"}, fs.boundJobs)
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	store := ledger.NewMemoryStore()
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, _ := newTestLoop(t, fs, store, ledger.Options{ApplyOnceAtCompany: false}, Options{})
	require.NoError(t, loop.Run(context.Background()))

	again := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, _ = newTestLoop(t, again, store, ledger.Options{ApplyOnceAtCompany: false}, Options{})
	require.NoError(t, loop.Run(context.Background()))

	assert.Empty(t, again.applied)
	assert.Equal(t, 3, loop.Stats().Duplicates)
}

func TestRun_Blacklist(t *testing.T) {
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, led := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{Blacklist: []string{" a "}}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"B/J2"}, fs.applied)
	assert.Equal(t, 2, loop.Stats().Blacklisted)
	assert.Equal(t, []string{"b"}, led.Snapshot().Companies())
}

func TestRun_MaxPages(t *testing.T) {
	fs := &fakeSite{pages: [][]listing.Listing{
		{{CompanyName: "A", Title: "J1"}},
		{{CompanyName: "B", Title: "J2"}},
		{{CompanyName: "C", Title: "J3"}},
	}}
	loop, _ := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{}, Options{MaxPages: 2})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []int{1, 2}, fs.navigated)
	assert.Equal(t, []string{"A/J1", "B/J2"}, fs.applied)
	assert.Equal(t, 2, loop.Stats().Pages)
}

func TestRun_DriverErrorsSkipListings(t *testing.T) {
	fs := &fakeSite{
		pages: [][]listing.Listing{aliceListings(), {{CompanyName: "C", Title: "J4"}}},
		scrapeErr: map[string]error{
			"J1": driver.ErrNoSuchElement,
			"J2": driver.ErrTimeout,
			"J3": driver.ErrNoSuchElement,
		},
	}
	loop, _ := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"C/J4"}, fs.applied, "a failed page is abandoned and the loop advances")
	assert.Equal(t, 3, loop.Stats().Failed)
	assert.Equal(t, 4, fs.closed)
}

func TestRun_PersistenceErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}}
	loop, _ := newTestLoop(t, fs, failingLedgerStore{err: boom}, ledger.Options{}, Options{})

	err := loop.Run(context.Background())

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A/J1"}, fs.applied, "the run stops after the first unrecorded application")
	assert.Equal(t, 1, fs.closed)
}

func TestRun_ApplyErrorSkipsListing(t *testing.T) {
	store := ledger.NewMemoryStore()
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings()}, applyErr: driver.ErrTimeout}
	loop, led := newTestLoop(t, fs, store, ledger.Options{ApplyOnceAtCompany: true}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, 3, loop.Stats().Failed)
	assert.Empty(t, led.Snapshot(), "failed applications are not recorded")
	assert.Zero(t, store.Saves())

	reopened, err := ledger.Open(context.Background(), store, alice, ledger.Options{ApplyOnceAtCompany: true})
	require.NoError(t, err)
	assert.False(t, reopened.AlreadyHandled("A", "J1"), "the next run may retry the company")
}

func TestRun_RecordsOnlyAfterApply(t *testing.T) {
	store := ledger.NewMemoryStore()
	fs := &fakeSite{pages: [][]listing.Listing{{{CompanyName: "A", Title: "J1"}}}}
	loop, led := newTestLoop(t, fs, store, ledger.Options{ApplyOnceAtCompany: true}, Options{})
	var savesAtApply []int
	loop.Applier = applyHook{fs: fs, before: func() { savesAtApply = append(savesAtApply, store.Saves()) }}

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []int{0}, savesAtApply, "nothing is persisted before the application is sent")
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, []string{"a"}, led.Snapshot().Companies())
}

// applyHook runs before the wrapped site's Apply.
type applyHook struct {
	fs     *fakeSite
	before func()
}

func (h applyHook) Apply(ctx context.Context) (site.Outcome, error) {
	h.before()
	return h.fs.Apply(ctx)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fs := &fakeSite{pages: [][]listing.Listing{aliceListings(), aliceListings()}}
	fs.onNextPage = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	loop, _ := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{ApplyOnceAtCompany: false}, Options{})

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fs.applied, 3)
}

func TestRun_AlreadyAppliedOutcome(t *testing.T) {
	fs := &fakeSite{
		pages:    [][]listing.Listing{aliceListings()},
		answered: map[string]site.Outcome{"J2": site.AlreadyApplied},
	}
	loop, _ := newTestLoop(t, fs, ledger.NewMemoryStore(), ledger.Options{ApplyOnceAtCompany: true}, Options{})

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, Stats{Pages: 1, Listings: 3, Applied: 1, AlreadyApplied: 1, Duplicates: 1}, loop.Stats())
}

type failingLedgerStore struct{ err error }

func (failingLedgerStore) LoadPartition(context.Context, ledger.Identity) (ledger.Partition, error) {
	return nil, nil
}

func (s failingLedgerStore) SavePartition(context.Context, ledger.Identity, ledger.Partition) error {
	return s.err
}
