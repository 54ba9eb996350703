// Package listing holds the job posting scraped from a vacancy page.
package listing

import (
	"fmt"
	"strings"

	"github.com/kalambet/applybot/internal/canon"
)

// Listing is one scraped vacancy. Only the canonical company and title are
// ever persisted; the rest lives for the duration of one application.
type Listing struct {
	Title          string   `json:"title"`
	Salary         string   `json:"salary,omitempty"`
	Experience     string   `json:"experience,omitempty"`
	EmploymentMode string   `json:"employment_mode,omitempty"`
	CompanyName    string   `json:"company_name"`
	Address        string   `json:"address,omitempty"`
	Description    string   `json:"description,omitempty"`
	Skills         []string `json:"skills,omitempty"`
}

// Key returns the canonical (company, title) pair used by the ledger.
func (l Listing) Key() (company, title string) {
	return canon.Text(l.CompanyName), canon.Text(l.Title)
}

// Text renders the listing for a prompt, skipping empty fields.
func (l Listing) Text() string {
	var sb strings.Builder
	field := func(name, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&sb, "%s: %s\n", name, v)
		}
	}
	field("Title", l.Title)
	field("Company", l.CompanyName)
	field("Salary", l.Salary)
	field("Experience", l.Experience)
	field("Employment", l.EmploymentMode)
	field("Address", l.Address)
	field("Skills", strings.Join(l.Skills, ", "))
	if d := strings.TrimSpace(l.Description); d != "" {
		fmt.Fprintf(&sb, "\nDescription:\n%s\n", d)
	}
	return strings.TrimSpace(sb.String())
}
