// Package site drives an hh.ru-style recruiting site through a
// driver.Driver: login, advanced search, result pages, vacancy scraping and
// the response form.
package site

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/kalambet/applybot/internal/config"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// Selectors maps a dotted key ("apply.response") to a driver selector.
type Selectors map[string]string

// DefaultSelectors returns the built-in table.
func DefaultSelectors() Selectors {
	s, err := parseSelectors(defaultSelectors)
	if err != nil {
		panic(fmt.Sprintf("site: embedded selectors: %v", err))
	}
	return s
}

func parseSelectors(data []byte) (Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing selectors: %w", err)
	}
	return s, nil
}

// LoadSelectors returns the built-in table with the entries of the YAML file
// at path laid over it. An empty path yields the defaults.
func LoadSelectors(path string) (Selectors, error) {
	s := DefaultSelectors()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading selectors: %w", err)
	}
	override, err := parseSelectors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	maps.Copy(s, override)
	return s, s.Validate()
}

// requiredKeys are looked up unconditionally by the adapter.
var requiredKeys = []string{
	"paths.home", "paths.resumes",
	"session.resumes_menu", "session.profile_menu",
	"login.open", "login.input", "login.submit", "login.done",
	"resume.titles", "resume.recommendations",
	"search.advanced", "search.keywords", "search.exclude", "search.specialization",
	"search.industry", "search.region", "search.district", "search.subway",
	"search.salary", "search.submit",
	"tree.search", "tree.exact", "tree.prefix", "tree.submit", "tree.close",
	"pager.page", "serp.listing",
	"vacancy.title", "vacancy.salary", "vacancy.experience", "vacancy.employment_mode",
	"vacancy.company", "vacancy.address", "vacancy.location",
	"vacancy.branded_description", "vacancy.description", "vacancy.skills",
	"apply.response", "apply.questions", "apply.question", "apply.question_input",
	"apply.letter_input", "apply.letter_submit", "apply.letter_toggle", "apply.letter_informer",
	"apply.chat_open", "apply.chat_frame", "apply.chat_action", "apply.chat_input",
}

// Validate reports keys the adapter needs that are missing or empty,
// including one option selector per search flag.
func (s Selectors) Validate() error {
	keys := slices.Clone(requiredKeys)
	for _, g := range config.Groups {
		for _, o := range g.Options {
			keys = append(keys, optionKey(g.Name, o))
		}
	}
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(s[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("selectors missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Get returns the selector for key with args substituted.
func (s Selectors) Get(key string, args ...any) string {
	v := s[key]
	if len(args) == 0 {
		return v
	}
	return fmt.Sprintf(v, args...)
}

func optionKey(group, option string) string {
	return "option." + group + "." + option
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(parts, `, '"', `) + ")"
}
