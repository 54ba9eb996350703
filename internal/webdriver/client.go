// Package webdriver implements driver.Driver over the W3C WebDriver HTTP
// protocol, as spoken by chromedriver and geckodriver.
//
// Selectors are "css:<selector>" or "xpath:<expression>"; a selector without
// a prefix is treated as CSS.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/applybot/internal/driver"
)

// elementKey is the W3C web element identifier.
const elementKey = "element-6066-11e4-a52f-4f94c4c6b76c"

// Error is a WebDriver error response.
type Error struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdriver: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps protocol error codes to the driver sentinels.
func (e *Error) Unwrap() error {
	switch e.Code {
	case "no such element", "no such frame", "no such window", "stale element reference":
		return driver.ErrNoSuchElement
	case "timeout", "script timeout":
		return driver.ErrTimeout
	}
	return nil
}

// Options configures a session.
type Options struct {
	// Browser is the browserName capability, "chrome" by default.
	Browser string
	// Args are passed to the browser, e.g. "--start-maximized".
	Args   []string
	Logger *slog.Logger
}

// Session is one browser session. It implements driver.Driver.
type Session struct {
	baseURL    string
	id         string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ driver.Driver = (*Session)(nil)

// NewSession starts a browser session on the WebDriver server at baseURL.
func NewSession(ctx context.Context, baseURL string, opts Options) (*Session, error) {
	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	browser := opts.Browser
	if browser == "" {
		browser = "chrome"
	}

	caps := map[string]any{"browserName": browser}
	if len(opts.Args) > 0 {
		switch browser {
		case "firefox":
			caps["moz:firefoxOptions"] = map[string]any{"args": opts.Args}
		default:
			caps["goog:chromeOptions"] = map[string]any{"args": opts.Args}
		}
	}

	var created struct {
		SessionID string `json:"sessionId"`
	}
	in := map[string]any{"capabilities": map[string]any{"alwaysMatch": caps}}
	if err := s.call(ctx, http.MethodPost, "/session", in, &created); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if created.SessionID == "" {
		return nil, errors.New("webdriver: server returned no session id")
	}
	s.id = created.SessionID
	s.logger.Debug("webdriver session started", "session", s.id, "browser", browser)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Close ends the session and closes the browser.
func (s *Session) Close(ctx context.Context) error {
	return s.call(ctx, http.MethodDelete, "/session/"+s.id, nil, nil)
}

// call sends one command and decodes the "value" member of the reply into
// out, when out is non-nil.
func (s *Session) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webdriver %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode != http.StatusOK {
		e := &Error{Status: resp.StatusCode}
		if decodeErr != nil || json.Unmarshal(envelope.Value, e) != nil || e.Code == "" {
			e.Code = "unknown error"
			e.Message = strings.TrimSpace(string(raw))
		}
		return e
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding %s response: %w", path, decodeErr)
	}
	if out == nil || len(envelope.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Value, out); err != nil {
		return fmt.Errorf("decoding %s value: %w", path, err)
	}
	return nil
}

func (s *Session) path(parts ...string) string {
	return "/session/" + s.id + "/" + strings.Join(parts, "/")
}

// locator splits a selector into a W3C location strategy and value.
func locator(sel string) map[string]string {
	switch {
	case strings.HasPrefix(sel, "xpath:"):
		return map[string]string{"using": "xpath", "value": strings.TrimPrefix(sel, "xpath:")}
	case strings.HasPrefix(sel, "css:"):
		return map[string]string{"using": "css selector", "value": strings.TrimPrefix(sel, "css:")}
	default:
		return map[string]string{"using": "css selector", "value": sel}
	}
}

func (s *Session) findAll(ctx context.Context, sel string) ([]string, error) {
	var refs []map[string]string
	if err := s.call(ctx, http.MethodPost, s.path("elements"), locator(sel), &refs); err != nil {
		return nil, fmt.Errorf("finding %s: %w", sel, err)
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r[elementKey])
	}
	return ids, nil
}

func (s *Session) find(ctx context.Context, sel string) (string, error) {
	ids, err := s.findAll(ctx, sel)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%s: %w", sel, driver.ErrNoSuchElement)
	}
	return ids[0], nil
}

func (s *Session) NavigateTo(ctx context.Context, url string) error {
	return s.call(ctx, http.MethodPost, s.path("url"), map[string]string{"url": url}, nil)
}

func (s *Session) Click(ctx context.Context, sel string) error {
	id, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	return s.clickID(ctx, id)
}

func (s *Session) ClickElement(ctx context.Context, el driver.Element) error {
	return s.clickID(ctx, el.ID)
}

func (s *Session) clickID(ctx context.Context, id string) error {
	return s.call(ctx, http.MethodPost, s.path("element", id, "click"), struct{}{}, nil)
}

func (s *Session) Type(ctx context.Context, sel, text string) error {
	id, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	// Clearing fails on elements that are not editable; typing may still work.
	if err := s.call(ctx, http.MethodPost, s.path("element", id, "clear"), struct{}{}, nil); err != nil {
		s.logger.Debug("clear failed before typing", "selector", sel, "error", err)
	}
	return s.call(ctx, http.MethodPost, s.path("element", id, "value"), map[string]string{"text": text}, nil)
}

func (s *Session) SendKeys(ctx context.Context, sel, keys string) error {
	id, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	return s.call(ctx, http.MethodPost, s.path("element", id, "value"), map[string]string{"text": keys}, nil)
}

func (s *Session) ReadText(ctx context.Context, sel string) (string, error) {
	id, err := s.find(ctx, sel)
	if err != nil {
		return "", err
	}
	return s.text(ctx, id)
}

func (s *Session) text(ctx context.Context, id string) (string, error) {
	var text string
	if err := s.call(ctx, http.MethodGet, s.path("element", id, "text"), nil, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (s *Session) ListMatches(ctx context.Context, sel string) ([]driver.Element, error) {
	ids, err := s.findAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	els := make([]driver.Element, 0, len(ids))
	for _, id := range ids {
		text, err := s.text(ctx, id)
		if err != nil {
			return nil, err
		}
		var rect struct {
			Y float64 `json:"y"`
		}
		if err := s.call(ctx, http.MethodGet, s.path("element", id, "rect"), nil, &rect); err != nil {
			return nil, err
		}
		els = append(els, driver.Element{ID: id, Text: text, Y: int(rect.Y)})
	}
	return els, nil
}

func (s *Session) execute(ctx context.Context, script string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	in := map[string]any{"script": script, "args": args}
	return s.call(ctx, http.MethodPost, s.path("execute", "sync"), in, out)
}

func (s *Session) ScrollPosition(ctx context.Context) (int, error) {
	var y float64
	if err := s.execute(ctx, "return window.pageYOffset;", nil, &y); err != nil {
		return 0, err
	}
	return int(y), nil
}

func (s *Session) ScrollTo(ctx context.Context, y int) error {
	return s.execute(ctx, "window.scrollTo(0, arguments[0]);", []any{y}, nil)
}

func (s *Session) handles(ctx context.Context) ([]string, error) {
	var hs []string
	if err := s.call(ctx, http.MethodGet, s.path("window", "handles"), nil, &hs); err != nil {
		return nil, err
	}
	return hs, nil
}

func (s *Session) CloseCurrentTab(ctx context.Context) error {
	return s.call(ctx, http.MethodDelete, s.path("window"), nil, nil)
}

func (s *Session) SwitchTab(ctx context.Context, i int) error {
	hs, err := s.handles(ctx)
	if err != nil {
		return err
	}
	if i < 0 {
		i += len(hs)
	}
	if i < 0 || i >= len(hs) {
		return fmt.Errorf("tab %d of %d: %w", i, len(hs), driver.ErrNoSuchElement)
	}
	return s.call(ctx, http.MethodPost, s.path("window"), map[string]string{"handle": hs[i]}, nil)
}

func (s *Session) SwitchFrame(ctx context.Context, sel string) error {
	if sel == "" {
		return s.call(ctx, http.MethodPost, s.path("frame"), map[string]any{"id": nil}, nil)
	}
	id, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	ref := map[string]string{elementKey: id}
	return s.call(ctx, http.MethodPost, s.path("frame"), map[string]any{"id": ref}, nil)
}
