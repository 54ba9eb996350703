// Package resume loads the structured resume profile used to answer
// application questions and the free-text resume used for cover letters.
package resume

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// Section names, in the order the classifier lists them.
const (
	PersonalInformation = "personal_information"
	LegalAuthorization  = "legal_authorization"
	WorkPreferences     = "work_preferences"
	EducationDetails    = "education_details"
	ExperienceDetails   = "experience_details"
	Projects            = "projects"
	Availability        = "availability"
	SalaryExpectations  = "salary_expectations"
	Certifications      = "certifications"
	Languages           = "languages"
	Interests           = "interests"
)

// Sections lists every known section name.
var Sections = []string{
	PersonalInformation, LegalAuthorization, WorkPreferences, EducationDetails,
	ExperienceDetails, Projects, Availability, SalaryExpectations,
	Certifications, Languages, Interests,
}

// Profile is a parsed plain_text_resume.yaml. Each top-level key is a
// section; unknown keys are kept and can be looked up too.
type Profile struct {
	sections map[string]any
}

// Parse decodes a YAML resume profile.
func Parse(data []byte) (*Profile, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing resume profile: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("resume profile is empty")
	}
	return &Profile{sections: raw}, nil
}

// LoadProfile reads and parses the profile at path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resume profile: %w", err)
	}
	return Parse(data)
}

// Names returns the sections present in the profile: known ones first in
// classifier order, then any others sorted.
func (p *Profile) Names() []string {
	var known, extra []string
	for _, s := range Sections {
		if _, ok := p.sections[s]; ok {
			known = append(known, s)
		}
	}
	for k := range p.sections {
		if !slices.Contains(Sections, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(known, extra...)
}

// Section renders the named section as YAML text for a prompt. A missing or
// null section reports false.
func (p *Profile) Section(name string) (string, bool) {
	v, ok := p.sections[name]
	if !ok || v == nil {
		return "", false
	}
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(bytes.TrimSpace(out)), true
}

// String renders the whole profile.
func (p *Profile) String() string {
	var sb strings.Builder
	for _, name := range p.Names() {
		text, ok := p.Section(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", name, text)
	}
	return strings.TrimSpace(sb.String())
}
