package site

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/applybot/internal/driver/drivertest"
	"github.com/kalambet/applybot/internal/pacing"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestBrowser(f *drivertest.Fake) *Browser {
	return NewBrowser(f, BrowserOptions{
		Pacer:  pacing.New(pacing.Options{Sleep: noSleep}),
		Logger: slog.New(slog.DiscardHandler),
	})
}

func TestScrollToReachesTarget(t *testing.T) {
	f := drivertest.New()
	b := newTestBrowser(f)

	require.NoError(t, b.ScrollTo(context.Background(), 1000))
	require.NotEmpty(t, f.Scrolls)
	last := f.Scrolls[len(f.Scrolls)-1]
	assert.InDelta(t, 1000, last, scrollTolerance)
	for i := 1; i < len(f.Scrolls); i++ {
		assert.Greater(t, f.Scrolls[i], f.Scrolls[i-1], "scrolling must be monotonic")
	}

	n := len(f.Scrolls)
	require.NoError(t, b.ScrollTo(context.Background(), 0))
	assert.Less(t, f.Scrolls[len(f.Scrolls)-1], last)
	assert.Greater(t, len(f.Scrolls), n)
}

func TestScrollToWithinToleranceDoesNotMove(t *testing.T) {
	f := drivertest.New()
	b := newTestBrowser(f)

	require.NoError(t, b.ScrollTo(context.Background(), scrollTolerance))
	assert.Empty(t, f.Scrolls)
}

func TestOpenAndCloseListingRestoresScroll(t *testing.T) {
	f := drivertest.New()
	sel := DefaultSelectors()
	f.SetMatches(sel.Get("serp.listing"), "Go developer")
	el := f.Matches[sel.Get("serp.listing")][0]
	f.OnClick[el.ID] = func(f *drivertest.Fake) error {
		f.OpenTab()
		return nil
	}
	b := newTestBrowser(f)
	ctx := context.Background()

	require.NoError(t, b.OpenListing(ctx, el))
	assert.Equal(t, 1, f.Tab)
	assert.Equal(t, 0, b.pos)
	assert.NotZero(t, b.results)

	require.NoError(t, b.CloseListing(ctx))
	assert.Equal(t, 0, f.Tab)
	assert.Equal(t, 1, f.Closed)
	assert.Equal(t, b.results, b.pos)
}
