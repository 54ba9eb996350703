package site

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/driver"
	"github.com/kalambet/applybot/internal/prompt"
)

const (
	resumeListWait     = 10 * time.Second
	advancedAttempts   = 10
	advancedRetryWait  = 2 * time.Second
	treePopupWait      = 5 * time.Second
	confirmSearchQuery = "Check the search form in the browser. Press Enter to submit it now, or wait %s."
)

// SearchConfigurator opens the advanced search from the resume matching the
// job title, fills it in from a search profile and submits it.
type SearchConfigurator struct {
	*Browser
	prompter       prompt.Prompter
	confirmTimeout time.Duration
	retryWait      time.Duration
}

// NewSearchConfigurator creates a SearchConfigurator. A nil prompter
// submits without asking.
func NewSearchConfigurator(b *Browser, p prompt.Prompter, confirmTimeout time.Duration) *SearchConfigurator {
	return &SearchConfigurator{Browser: b, prompter: p, confirmTimeout: confirmTimeout, retryWait: advancedRetryWait}
}

// Configure fills in and submits the advanced search form.
func (s *SearchConfigurator) Configure(ctx context.Context, p *config.SearchProfile) error {
	s.ResetScroll()
	if err := s.openResume(ctx, p.JobTitle); err != nil {
		return err
	}
	if err := s.openAdvancedSearch(ctx); err != nil {
		return err
	}
	s.ResetScroll()

	if len(p.Keywords) > 0 {
		if err := s.enterEach(ctx, "search.keywords", []string{strings.Join(p.Keywords, ", ")}, true); err != nil {
			return fmt.Errorf("keywords: %w", err)
		}
	}
	s.clickOptions(ctx, "search_only", p.SearchOnly)
	if len(p.WordsToExclude) > 0 {
		if err := s.typeInto(ctx, "search.exclude", strings.Join(p.WordsToExclude, ", ")); err != nil {
			return fmt.Errorf("words to exclude: %w", err)
		}
	}
	if p.Specialization != "" {
		if err := s.pickFromTree(ctx, "search.specialization", p.Specialization); err != nil {
			return fmt.Errorf("specialization: %w", err)
		}
	}
	if p.Industry != "" {
		if err := s.pickFromTree(ctx, "search.industry", p.Industry); err != nil {
			return fmt.Errorf("industry: %w", err)
		}
	}
	if err := s.enterEach(ctx, "search.region", p.Regions, true); err != nil {
		return fmt.Errorf("regions: %w", err)
	}
	if err := s.enterEach(ctx, "search.district", p.Districts, false); err != nil {
		return fmt.Errorf("districts: %w", err)
	}
	if err := s.enterEach(ctx, "search.subway", p.Subway, false); err != nil {
		return fmt.Errorf("subway: %w", err)
	}
	if p.Income > 0 {
		if err := s.typeInto(ctx, "search.salary", strconv.Itoa(p.Income)); err != nil {
			return fmt.Errorf("income: %w", err)
		}
	}
	for _, g := range config.Groups {
		if g.Name == "search_only" {
			continue
		}
		s.clickOptions(ctx, g.Name, p.Group(g.Name))
	}

	if s.prompter != nil {
		msg := fmt.Sprintf(confirmSearchQuery, s.confirmTimeout)
		if _, _, err := s.prompter.Ask(ctx, msg, s.confirmTimeout); err != nil {
			return err
		}
	}
	if err := s.click(ctx, "search.submit"); err != nil {
		return fmt.Errorf("submitting search: %w", err)
	}
	return nil
}

// openResume opens the recommendations of the resume titled jobTitle.
func (s *SearchConfigurator) openResume(ctx context.Context, jobTitle string) error {
	if err := s.d.NavigateTo(ctx, s.url("paths.resumes")); err != nil {
		return fmt.Errorf("opening resumes: %w", err)
	}
	titles := s.sel.Get("resume.titles")
	if err := driver.WaitFor(ctx, s.d, titles, resumeListWait, time.Second); err != nil {
		return fmt.Errorf("resume list: %w", err)
	}
	els, err := s.d.ListMatches(ctx, titles)
	if err != nil {
		return err
	}
	idx := -1
	for i, el := range els {
		if strings.TrimSpace(el.Text) == jobTitle {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no resume titled %q among %d resumes", jobTitle, len(els))
	}

	buttons, err := s.d.ListMatches(ctx, s.sel.Get("resume.recommendations"))
	if err != nil {
		return err
	}
	if idx >= len(buttons) {
		return fmt.Errorf("resume %q has no recommendations button: %w", jobTitle, driver.ErrNoSuchElement)
	}
	return s.ClickElement(ctx, buttons[idx])
}

// openAdvancedSearch waits for the advanced search link, which appears
// only after the recommendations page finishes loading.
func (s *SearchConfigurator) openAdvancedSearch(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.click(ctx, "search.advanced")
		if err == nil {
			return nil
		}
		if !errors.Is(err, driver.ErrNoSuchElement) || attempt == advancedAttempts {
			return fmt.Errorf("opening advanced search: %w", err)
		}
		if err := s.pacer.PauseShort(ctx, s.retryWait, s.retryWait); err != nil {
			return err
		}
	}
}

// pickFromTree opens a tree selector popup with the opener key, searches for
// value and picks the exact match or else the first suggestion. The popup is
// closed unchanged when nothing matches.
func (s *SearchConfigurator) pickFromTree(ctx context.Context, opener, value string) error {
	if err := s.click(ctx, opener); err != nil {
		return err
	}
	search := s.sel.Get("tree.search")
	if err := driver.WaitFor(ctx, s.d, search, treePopupWait, treePopupWait/10); err != nil {
		return err
	}
	if err := s.d.Type(ctx, search, value); err != nil {
		return err
	}
	if err := s.Pause(ctx); err != nil {
		return err
	}

	matches, err := s.d.ListMatches(ctx, s.sel.Get("tree.exact", xpathLiteral(value)))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		if matches, err = s.d.ListMatches(ctx, s.sel.Get("tree.prefix")); err != nil {
			return err
		}
	}
	if len(matches) == 0 {
		s.logger.Warn("no match in selector popup, closing it", "value", value)
		return s.d.Click(ctx, s.sel.Get("tree.close"))
	}
	if err := s.d.ClickElement(ctx, matches[0]); err != nil {
		return err
	}
	return s.d.Click(ctx, s.sel.Get("tree.submit"))
}

// enterEach types every value followed by Tab into the field named by key.
// An optional field that is not on the page is skipped.
func (s *SearchConfigurator) enterEach(ctx context.Context, key string, values []string, required bool) error {
	if len(values) == 0 {
		return nil
	}
	if !required {
		ok, err := s.exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Debug("field not on page, skipping", "field", key)
			return nil
		}
	}
	for _, v := range values {
		if err := s.typeInto(ctx, key, v); err != nil {
			return err
		}
		if err := s.Pause(ctx); err != nil {
			return err
		}
		if err := s.d.SendKeys(ctx, s.sel.Get(key), driver.KeyTab); err != nil {
			return err
		}
		if err := s.Pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// clickOptions clicks the label of every true option in group. A label
// missing from the page is logged and skipped.
func (s *SearchConfigurator) clickOptions(ctx context.Context, group string, opts config.Options) {
	var order []string
	for _, g := range config.Groups {
		if g.Name == group {
			order = g.Options
		}
	}
	for _, name := range opts.Selected(order) {
		if err := s.click(ctx, optionKey(group, name)); err != nil {
			s.logger.Warn("could not set search option", "group", group, "option", name, "error", err)
		}
	}
}
