package site

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/applybot/internal/driver"
	"github.com/kalambet/applybot/internal/pacing"
)

// Slow scrolling moves in small steps so a scroll takes about
// scrollDuration and stops within scrollTolerance pixels of the target.
const (
	scrollDuration  = 2 * time.Second
	scrollStep      = 10 * time.Millisecond
	scrollTolerance = 30
	scrollSettle    = 500 * time.Millisecond
)

// BrowserOptions configures a Browser.
type BrowserOptions struct {
	Selectors Selectors
	BaseURL   string
	Pacer     *pacing.Pacer
	// ActionLow and ActionHigh bound the pause after clicks that open or
	// close pages.
	ActionLow  time.Duration
	ActionHigh time.Duration
	Logger     *slog.Logger
}

// Browser wraps a driver.Driver with the site's selectors and human-paced
// scrolling and clicking. The site components share one Browser.
type Browser struct {
	d          driver.Driver
	sel        Selectors
	baseURL    string
	pacer      *pacing.Pacer
	actionLow  time.Duration
	actionHigh time.Duration
	logger     *slog.Logger

	// pos is the last scroll offset set in the focused tab; results holds
	// the results tab offset while a listing tab is open.
	pos     int
	results int
}

// NewBrowser creates a Browser. Missing options take defaults.
func NewBrowser(d driver.Driver, opts BrowserOptions) *Browser {
	b := &Browser{
		d:          d,
		sel:        opts.Selectors,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		pacer:      opts.Pacer,
		actionLow:  opts.ActionLow,
		actionHigh: opts.ActionHigh,
		logger:     opts.Logger,
	}
	if b.sel == nil {
		b.sel = DefaultSelectors()
	}
	if b.baseURL == "" {
		b.baseURL = "https://hh.ru"
	}
	if b.pacer == nil {
		b.pacer = pacing.New(pacing.Options{})
	}
	if b.actionHigh == 0 {
		b.actionLow, b.actionHigh = time.Second, 2*time.Second
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Driver returns the underlying driver.
func (b *Browser) Driver() driver.Driver { return b.d }

// Selectors returns the selector table in use.
func (b *Browser) Selectors() Selectors { return b.sel }

func (b *Browser) url(pathKey string) string {
	return b.baseURL + b.sel.Get(pathKey)
}

// Pause waits a short random time, as a person would between actions.
func (b *Browser) Pause(ctx context.Context) error {
	return b.pacer.PauseShort(ctx, b.actionLow, b.actionHigh)
}

// ResetScroll records that a fresh page is shown at the top.
func (b *Browser) ResetScroll() { b.pos = 0 }

// ScrollTo scrolls slowly from the current offset towards y.
func (b *Browser) ScrollTo(ctx context.Context, y int) error {
	distance := y - b.pos
	if distance < 0 {
		distance = -distance
	}
	steps := int(scrollDuration/scrollStep) + 1
	step := distance/steps + 1

	dir := 1
	if y < b.pos {
		dir, step = -1, -step
	}
	for dir*(y-b.pos) > scrollTolerance {
		b.pos += step
		if err := b.d.ScrollTo(ctx, b.pos); err != nil {
			return fmt.Errorf("scrolling to %d: %w", y, err)
		}
		if err := b.pacer.PauseShort(ctx, scrollStep, scrollStep); err != nil {
			return err
		}
	}
	return b.pacer.PauseShort(ctx, scrollSettle, scrollSettle)
}

// ClickElement scrolls el into view and clicks it.
func (b *Browser) ClickElement(ctx context.Context, el driver.Element) error {
	if err := b.ScrollTo(ctx, el.Y); err != nil {
		return err
	}
	return b.d.ClickElement(ctx, el)
}

// first returns the first match of the selector named by key.
func (b *Browser) first(ctx context.Context, key string, args ...any) (driver.Element, error) {
	sel := b.sel.Get(key, args...)
	els, err := b.d.ListMatches(ctx, sel)
	if err != nil {
		return driver.Element{}, err
	}
	if len(els) == 0 {
		return driver.Element{}, fmt.Errorf("%s: %w", key, driver.ErrNoSuchElement)
	}
	return els[0], nil
}

// click scrolls to and clicks the first match of the selector named by key.
func (b *Browser) click(ctx context.Context, key string, args ...any) error {
	el, err := b.first(ctx, key, args...)
	if err != nil {
		return err
	}
	return b.ClickElement(ctx, el)
}

func (b *Browser) typeInto(ctx context.Context, key, text string, args ...any) error {
	return b.d.Type(ctx, b.sel.Get(key, args...), text)
}

func (b *Browser) exists(ctx context.Context, key string, args ...any) (bool, error) {
	return driver.Exists(ctx, b.d, b.sel.Get(key, args...))
}

// OpenListing clicks a result link and focuses the tab it opens.
func (b *Browser) OpenListing(ctx context.Context, el driver.Element) error {
	if err := b.ClickElement(ctx, el); err != nil {
		return err
	}
	if err := b.Pause(ctx); err != nil {
		return err
	}
	if err := b.d.SwitchTab(ctx, -1); err != nil {
		return err
	}
	b.results, b.pos = b.pos, 0
	return nil
}

// CloseListing closes the vacancy tab and returns to the results tab.
func (b *Browser) CloseListing(ctx context.Context) error {
	if err := b.d.CloseCurrentTab(ctx); err != nil {
		return err
	}
	if err := b.Pause(ctx); err != nil {
		return err
	}
	if err := b.d.SwitchTab(ctx, 0); err != nil {
		return err
	}
	b.pos = b.results
	return nil
}
