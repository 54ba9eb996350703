// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kalambet/applybot/internal/driver"
)

// Typed is one Type or SendKeys call.
type Typed struct {
	Sel  string
	Text string
	// Keys is set for SendKeys, which does not clear the field.
	Keys bool
}

// Fake is a scriptable driver.Driver. A selector exists when it has an entry
// in Texts, Matches or OnClick.
type Fake struct {
	mu sync.Mutex

	Texts   map[string]string
	Matches map[string][]driver.Element
	// OnClick runs after a successful click on the selector (or element ID),
	// outside the lock, so hooks may call Set, Remove and OpenTab.
	OnClick map[string]func(f *Fake) error
	// Fail makes any operation on the selector return the error.
	Fail map[string]error

	URLs    []string
	Clicks  []string
	Typed   []Typed
	Frames  []string
	Scrolls []int
	Tabs    int
	Tab     int
	Closed  int
}

// New returns an empty Fake with one open tab.
func New() *Fake {
	return &Fake{
		Texts:   map[string]string{},
		Matches: map[string][]driver.Element{},
		OnClick: map[string]func(*Fake) error{},
		Fail:    map[string]error{},
		Tabs:    1,
	}
}

var _ driver.Driver = (*Fake)(nil)

// Set makes sel exist with the given text.
func (f *Fake) Set(sel, text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Texts[sel] = text
	return f
}

// SetMatches makes sel match one element per text.
func (f *Fake) SetMatches(sel string, texts ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	els := make([]driver.Element, len(texts))
	for i, t := range texts {
		els[i] = driver.Element{ID: fmt.Sprintf("%s#%d", sel, i), Text: t, Y: 100 * (i + 1)}
	}
	f.Matches[sel] = els
	return f
}

// Remove makes sel match nothing.
func (f *Fake) Remove(sel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Texts, sel)
	delete(f.Matches, sel)
	delete(f.OnClick, sel)
}

func (f *Fake) exists(sel string) bool {
	if _, ok := f.Texts[sel]; ok {
		return true
	}
	if len(f.Matches[sel]) > 0 {
		return true
	}
	_, ok := f.OnClick[sel]
	return ok
}

func (f *Fake) check(sel string) error {
	if err := f.Fail[sel]; err != nil {
		return err
	}
	if !f.exists(sel) {
		return fmt.Errorf("%s: %w", sel, driver.ErrNoSuchElement)
	}
	return nil
}

// click records key and returns its hook, to be run after unlocking.
func (f *Fake) click(key string) func(*Fake) error {
	f.Clicks = append(f.Clicks, key)
	return f.OnClick[key]
}

func run(f *Fake, hook func(*Fake) error) error {
	if hook == nil {
		return nil
	}
	return hook(f)
}

func (f *Fake) NavigateTo(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.URLs = append(f.URLs, url)
	return nil
}

func (f *Fake) Click(_ context.Context, sel string) error {
	f.mu.Lock()
	if err := f.check(sel); err != nil {
		f.mu.Unlock()
		return err
	}
	hook := f.click(sel)
	f.mu.Unlock()
	return run(f, hook)
}

func (f *Fake) ClickElement(_ context.Context, el driver.Element) error {
	f.mu.Lock()
	if err := f.Fail[el.ID]; err != nil {
		f.mu.Unlock()
		return err
	}
	hook := f.click(el.ID)
	f.mu.Unlock()
	return run(f, hook)
}

func (f *Fake) Type(_ context.Context, sel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return err
	}
	f.Typed = append(f.Typed, Typed{Sel: sel, Text: text})
	return nil
}

func (f *Fake) SendKeys(_ context.Context, sel, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return err
	}
	f.Typed = append(f.Typed, Typed{Sel: sel, Text: keys, Keys: true})
	return nil
}

func (f *Fake) ReadText(_ context.Context, sel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return "", err
	}
	if t, ok := f.Texts[sel]; ok {
		return t, nil
	}
	if els := f.Matches[sel]; len(els) > 0 {
		return els[0].Text, nil
	}
	return "", nil
}

func (f *Fake) ListMatches(_ context.Context, sel string) ([]driver.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[sel]; err != nil {
		return nil, err
	}
	if els, ok := f.Matches[sel]; ok {
		return append([]driver.Element(nil), els...), nil
	}
	if t, ok := f.Texts[sel]; ok {
		return []driver.Element{{ID: sel, Text: t}}, nil
	}
	if _, ok := f.OnClick[sel]; ok {
		return []driver.Element{{ID: sel}}, nil
	}
	return nil, nil
}

func (f *Fake) ScrollPosition(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Scrolls) == 0 {
		return 0, nil
	}
	return f.Scrolls[len(f.Scrolls)-1], nil
}

func (f *Fake) ScrollTo(_ context.Context, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolls = append(f.Scrolls, y)
	return nil
}

func (f *Fake) CloseCurrentTab(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Tabs <= 1 {
		return fmt.Errorf("closing last tab")
	}
	f.Tabs--
	f.Closed++
	f.Tab = 0
	return nil
}

func (f *Fake) SwitchTab(_ context.Context, i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 {
		i += f.Tabs
	}
	if i < 0 || i >= f.Tabs {
		return fmt.Errorf("tab %d: %w", i, driver.ErrNoSuchElement)
	}
	f.Tab = i
	return nil
}

func (f *Fake) SwitchFrame(_ context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sel != "" {
		if err := f.check(sel); err != nil {
			return err
		}
	}
	f.Frames = append(f.Frames, sel)
	return nil
}

// OpenTab simulates a click that opens a new tab. Use it from OnClick.
func (f *Fake) OpenTab() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tabs++
}

// TypedInto returns everything typed into sel, joined by "|".
func (f *Fake) TypedInto(sel string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var parts []string
	for _, t := range f.Typed {
		if t.Sel == sel {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "|")
}

// Clicked reports whether key (a selector or element ID) was clicked.
func (f *Fake) Clicked(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Clicks {
		if c == key {
			return true
		}
	}
	return false
}
