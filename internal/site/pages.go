package site

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/applybot/internal/driver"
	"github.com/kalambet/applybot/internal/listing"
)

const vacancyLoadWait = 10 * time.Second

// Pager moves between search result pages.
type Pager struct {
	*Browser
}

func NewPager(b *Browser) *Pager { return &Pager{Browser: b} }

// NextPage opens result page n (1-based; page 1 is already shown after the
// search). It reports false when the page link does not exist.
func (p *Pager) NextPage(ctx context.Context, n int) (bool, error) {
	if n <= 1 {
		p.ResetScroll()
		return true, nil
	}
	el, err := p.first(ctx, "pager.page", n)
	if errors.Is(err, driver.ErrNoSuchElement) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.ClickElement(ctx, el); err != nil {
		return false, fmt.Errorf("opening page %d: %w", n, err)
	}
	p.ResetScroll()
	return true, nil
}

// Scraper reads listings from result pages and vacancy pages.
type Scraper struct {
	*Browser
}

func NewScraper(b *Browser) *Scraper { return &Scraper{Browser: b} }

// Listings returns the vacancy links on the current result page.
func (s *Scraper) Listings(ctx context.Context) ([]driver.Element, error) {
	return s.d.ListMatches(ctx, s.sel.Get("serp.listing"))
}

// Scrape reads the vacancy shown in the focused tab. Fields missing from the
// page are left empty; a missing title is an error.
func (s *Scraper) Scrape(ctx context.Context) (listing.Listing, error) {
	if err := driver.WaitFor(ctx, s.d, s.sel.Get("vacancy.title"), vacancyLoadWait, time.Second); err != nil {
		return listing.Listing{}, fmt.Errorf("vacancy page: %w", err)
	}

	var l listing.Listing
	var err error
	read := func(keys ...string) string {
		for _, k := range keys {
			if err != nil {
				return ""
			}
			var text string
			text, err = s.d.ReadText(ctx, s.sel.Get(k))
			if errors.Is(err, driver.ErrNoSuchElement) {
				err = nil
				continue
			}
			if text = strings.TrimSpace(text); text != "" {
				return text
			}
		}
		return ""
	}

	l.Title = read("vacancy.title")
	l.Salary = read("vacancy.salary")
	l.Experience = read("vacancy.experience")
	l.EmploymentMode = read("vacancy.employment_mode")
	l.CompanyName = read("vacancy.company")
	l.Address = read("vacancy.address", "vacancy.location")
	l.Description = read("vacancy.branded_description", "vacancy.description")
	if err != nil {
		return listing.Listing{}, fmt.Errorf("scraping vacancy: %w", err)
	}
	if l.Title == "" {
		return listing.Listing{}, fmt.Errorf("vacancy title: %w", driver.ErrNoSuchElement)
	}

	skills, err := s.d.ListMatches(ctx, s.sel.Get("vacancy.skills"))
	if err != nil {
		return listing.Listing{}, fmt.Errorf("scraping skills: %w", err)
	}
	for _, el := range skills {
		if t := strings.TrimSpace(el.Text); t != "" {
			l.Skills = append(l.Skills, t)
		}
	}
	return l, nil
}
