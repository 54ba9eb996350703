package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// Data folder layout.
const (
	SearchProfileFile = "config.yaml"
	ResumeProfileFile = "plain_text_resume.yaml"
	OutputDir         = "output"
)

// resumeCandidates are tried in order when locating the resume text.
var resumeCandidates = []string{"resume.txt", "resume.md", "resume.pdf", "resume.html", "resume.htm"}

// Options is a group of boolean search flags keyed by option name.
type Options map[string]bool

// Selected returns the names of the true options in the group's order.
func (o Options) Selected(order []string) []string {
	var out []string
	for _, name := range order {
		if o[name] {
			out = append(out, name)
		}
	}
	return out
}

// Group describes one block of flags in the search profile.
type Group struct {
	Name     string
	Options  []string
	Required bool
	// Single groups accept at most one true option.
	Single bool
}

// Groups lists every flag group with its options in display order.
var Groups = []Group{
	{Name: "search_only", Options: []string{"vacancy_name", "company_name", "vacancy_description"}},
	{Name: "education", Options: []string{"not_needed", "middle", "higher"}},
	{Name: "experience", Required: true, Single: true, Options: []string{"doesnt_matter", "no_experience", "between_1_and_3", "between_3_and_6", "more_than_6"}},
	{Name: "job_type", Options: []string{"full_time", "part_time", "project", "volunteer", "probation", "civil_law_contract"}},
	{Name: "work_schedule", Options: []string{"full_day", "shift", "flexible", "remote", "fly_in_fly_out"}},
	{Name: "side_job", Options: []string{"project", "part", "from_4_hours_per_day", "weekend", "evenings"}},
	{Name: "other_params", Options: []string{"with_address", "accept_handicapped", "not_from_agency", "accept_kids", "accredited_it", "low_performance"}},
	{Name: "sort_by", Required: true, Single: true, Options: []string{"relevance", "publication_time", "salary_desc", "salary_asc"}},
	{Name: "output_period", Required: true, Single: true, Options: []string{"all_time", "month", "week", "three_days", "one_day"}},
	{Name: "output_size", Required: true, Single: true, Options: []string{"show_20", "show_50", "show_100"}},
}

// SearchProfile is the content of config.yaml: who searches, for what, and
// how the site's advanced search form is filled in.
type SearchProfile struct {
	JobTitle       string   `yaml:"job_title"`
	Login          string   `yaml:"login"`
	Keywords       []string `yaml:"keywords"`
	SearchOnly     Options  `yaml:"search_only"`
	WordsToExclude []string `yaml:"words_to_exclude"`
	Specialization string   `yaml:"specialization"`
	Industry       string   `yaml:"industry"`
	Regions        []string `yaml:"regions"`
	Districts      []string `yaml:"districts"`
	Subway         []string `yaml:"subway"`
	Income         int      `yaml:"income"`
	Education      Options  `yaml:"education"`
	Experience     Options  `yaml:"experience"`
	JobType        Options  `yaml:"job_type"`
	WorkSchedule   Options  `yaml:"work_schedule"`
	SideJob        Options  `yaml:"side_job"`
	OtherParams    Options  `yaml:"other_params"`
	SortBy         Options  `yaml:"sort_by"`
	OutputPeriod   Options  `yaml:"output_period"`
	OutputSize     Options  `yaml:"output_size"`
	JobBlacklist   []string `yaml:"job_blacklist"`
}

// Group returns the flags of the named group, or nil.
func (p *SearchProfile) Group(name string) Options {
	switch name {
	case "search_only":
		return p.SearchOnly
	case "education":
		return p.Education
	case "experience":
		return p.Experience
	case "job_type":
		return p.JobType
	case "work_schedule":
		return p.WorkSchedule
	case "side_job":
		return p.SideJob
	case "other_params":
		return p.OtherParams
	case "sort_by":
		return p.SortBy
	case "output_period":
		return p.OutputPeriod
	case "output_size":
		return p.OutputSize
	}
	return nil
}

// ParseSearchProfile decodes and validates a search profile document.
func ParseSearchProfile(data []byte) (*SearchProfile, error) {
	var p SearchProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing search profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadSearchProfile reads and validates the search profile at path.
func LoadSearchProfile(path string) (*SearchProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading search profile: %w", err)
	}
	p, err := ParseSearchProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks required fields, option names and single-choice groups.
// All problems are reported together.
func (p *SearchProfile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.JobTitle) == "" {
		errs = append(errs, errors.New("job_title is required"))
	}
	if strings.TrimSpace(p.Login) == "" {
		errs = append(errs, errors.New("login is required"))
	}
	if p.Income < 0 {
		errs = append(errs, fmt.Errorf("income must not be negative, got %d", p.Income))
	}

	for _, g := range Groups {
		opts := p.Group(g.Name)
		if opts == nil {
			if g.Required {
				errs = append(errs, fmt.Errorf("%s is required", g.Name))
			}
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(opts)) {
			if !slices.Contains(g.Options, name) {
				errs = append(errs, fmt.Errorf("%s: unknown option %q (valid: %s)", g.Name, name, strings.Join(g.Options, ", ")))
			}
		}
		if selected := opts.Selected(g.Options); g.Single && len(selected) > 1 {
			errs = append(errs, fmt.Errorf("%s: only one option may be true, got %s", g.Name, strings.Join(selected, ", ")))
		}
	}
	return errors.Join(errs...)
}

// DataPaths locates the inputs of one run inside the data folder.
type DataPaths struct {
	Dir           string
	SearchProfile string
	ResumeProfile string
	Resume        string
	Output        string
}

// ValidateDataFolder checks that dir holds the search profile, the resume
// profile and a resume file, and creates the output folder.
func ValidateDataFolder(dir string) (DataPaths, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return DataPaths{}, fmt.Errorf("data folder not found: %w", err)
	}
	if !info.IsDir() {
		return DataPaths{}, fmt.Errorf("data folder %s is not a directory", dir)
	}

	paths := DataPaths{
		Dir:           dir,
		SearchProfile: filepath.Join(dir, SearchProfileFile),
		ResumeProfile: filepath.Join(dir, ResumeProfileFile),
		Output:        filepath.Join(dir, OutputDir),
	}

	var missing []string
	for _, f := range []string{SearchProfileFile, ResumeProfileFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	for _, f := range resumeCandidates {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			paths.Resume = filepath.Join(dir, f)
			break
		}
	}
	if paths.Resume == "" {
		missing = append(missing, "resume.txt")
	}
	if len(missing) > 0 {
		return DataPaths{}, fmt.Errorf("missing files in data folder %s: %s", dir, strings.Join(missing, ", "))
	}

	if err := os.MkdirAll(paths.Output, 0o755); err != nil {
		return DataPaths{}, fmt.Errorf("creating output folder: %w", err)
	}
	return paths, nil
}
