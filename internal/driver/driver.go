// Package driver defines the browser capability the apply loop is built on.
// Selectors are opaque strings interpreted by the implementation.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSuchElement is returned when a selector matches nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrTimeout is returned when a page or element did not become ready in time.
	ErrTimeout = errors.New("driver timeout")
)

// KeyEnter and KeyTab can be embedded in text passed to Type.
const (
	KeyEnter = "\ue007"
	KeyTab   = "\ue004"
)

// Element is one match of a selector.
type Element struct {
	// ID is the implementation's handle for the element.
	ID   string
	Text string
	// Y is the element's vertical offset in the page, used for scrolling.
	Y int
}

// Driver is a single browser session.
type Driver interface {
	NavigateTo(ctx context.Context, url string) error
	// Click clicks the first match of sel.
	Click(ctx context.Context, sel string) error
	ClickElement(ctx context.Context, el Element) error
	// Type clears the first match of sel and types text into it.
	Type(ctx context.Context, sel, text string) error
	// SendKeys types keys into the first match of sel without clearing it.
	SendKeys(ctx context.Context, sel, keys string) error
	ReadText(ctx context.Context, sel string) (string, error)
	// ListMatches returns every match of sel in document order. No match is
	// an empty slice, not an error.
	ListMatches(ctx context.Context, sel string) ([]Element, error)
	ScrollPosition(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) error
	CloseCurrentTab(ctx context.Context) error
	// SwitchTab focuses tab i; negative i counts from the last tab.
	SwitchTab(ctx context.Context, i int) error
	// SwitchFrame focuses the first frame matching sel; "" returns to the
	// top-level document.
	SwitchFrame(ctx context.Context, sel string) error
}

// Exists reports whether sel matches at least one element.
func Exists(ctx context.Context, d Driver, sel string) (bool, error) {
	els, err := d.ListMatches(ctx, sel)
	if err != nil {
		return false, err
	}
	return len(els) > 0, nil
}

// WaitFor polls every interval until sel matches or timeout elapses. It
// returns ErrTimeout when the element never appears.
func WaitFor(ctx context.Context, d Driver, sel string, timeout, interval time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		ok, err := Exists(ctx, d, sel)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("waiting for %s: %w", sel, ErrTimeout)
		case <-tick.C:
		}
	}
}
