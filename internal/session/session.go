// Package session sequences one application session: parameters, resume,
// answerer, login, search configuration and the apply loop. Each step checks
// the flags it depends on and fails fast when one is missing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/resume"
)

// State holds the progress flags. A flag never goes back to false except
// through Reset.
type State struct {
	ParametersSet       bool
	LoggedIn            bool
	SearchParametersSet bool
	ResumeProfileSet    bool
	AnswererSet         bool
}

// PreconditionError reports a step attempted before the steps it needs.
type PreconditionError struct {
	Operation string
	Missing   []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: missing precondition %s", e.Operation, strings.Join(e.Missing, ", "))
}

// Authenticator signs in on the site.
type Authenticator interface {
	Login(ctx context.Context) error
}

// SearchConfigurator fills in and submits the site search.
type SearchConfigurator interface {
	Configure(ctx context.Context, p *config.SearchProfile) error
}

// ApplyLoop walks result pages and applies to listings.
type ApplyLoop interface {
	Run(ctx context.Context) error
}

// ResumeBinder receives the resume the answers are generated from.
// *answerer.Answerer satisfies it.
type ResumeBinder interface {
	SetResume(profile *resume.Profile, text string)
}

// Deps are the collaborators a Machine delegates to.
type Deps struct {
	Auth   Authenticator
	Search SearchConfigurator
	Loop   ApplyLoop
	Logger *slog.Logger
}

// Machine is the session state machine. It is not safe for concurrent use.
type Machine struct {
	deps   Deps
	state  State
	params *config.SearchProfile
	prof   *resume.Profile
	text   string
	logger *slog.Logger
}

// New creates a Machine with every flag false.
func New(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{deps: deps, logger: logger}
}

// State returns a copy of the flags.
func (m *Machine) State() State { return m.state }

// Parameters returns the bound search profile, or nil.
func (m *Machine) Parameters() *config.SearchProfile { return m.params }

// BindParameters stores the search profile.
func (m *Machine) BindParameters(p *config.SearchProfile) error {
	if p == nil || strings.TrimSpace(p.JobTitle) == "" {
		return fmt.Errorf("bind parameters: search profile is empty")
	}
	m.params = p
	m.state.ParametersSet = true
	m.logger.Debug("session parameters bound", "login", p.Login, "job_title", p.JobTitle)
	return nil
}

// SetResumeProfile stores the structured profile and the resume text.
func (m *Machine) SetResumeProfile(p *resume.Profile, text string) error {
	if p == nil || len(p.Names()) == 0 {
		return fmt.Errorf("set resume profile: profile is empty")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("set resume profile: resume text is empty")
	}
	m.prof, m.text = p, text
	m.state.ResumeProfileSet = true
	return nil
}

// BindAnswerer hands the resume to the answerer.
func (m *Machine) BindAnswerer(b ResumeBinder) error {
	if err := m.require("bind answerer", flag{m.state.ResumeProfileSet, "resumeProfileSet"}); err != nil {
		return err
	}
	b.SetResume(m.prof, m.text)
	m.state.AnswererSet = true
	return nil
}

// Login signs in through the Authenticator.
func (m *Machine) Login(ctx context.Context) error {
	if err := m.require("login",
		flag{m.state.ResumeProfileSet, "resumeProfileSet"},
		flag{m.state.AnswererSet, "answererSet"},
	); err != nil {
		return err
	}
	if err := m.deps.Auth.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	m.state.LoggedIn = true
	m.logger.Info("logged in")
	return nil
}

// ConfigureSearch applies the bound search profile on the site.
func (m *Machine) ConfigureSearch(ctx context.Context) error {
	if err := m.require("configure search",
		flag{m.state.ParametersSet, "parametersSet"},
		flag{m.state.LoggedIn, "loggedIn"},
	); err != nil {
		return err
	}
	if err := m.deps.Search.Configure(ctx, m.params); err != nil {
		return fmt.Errorf("configure search: %w", err)
	}
	m.state.SearchParametersSet = true
	m.logger.Info("search configured", "job_title", m.params.JobTitle)
	return nil
}

// StartApplying runs the apply loop until pages run out or it fails.
func (m *Machine) StartApplying(ctx context.Context) error {
	if err := m.require("start applying",
		flag{m.state.LoggedIn, "loggedIn"},
		flag{m.state.ParametersSet, "parametersSet"},
		flag{m.state.SearchParametersSet, "searchParametersSet"},
	); err != nil {
		return err
	}
	m.logger.Info("applying started")
	return m.deps.Loop.Run(ctx)
}

// Reset clears every flag and bound value for a new session.
func (m *Machine) Reset() {
	m.state = State{}
	m.params, m.prof, m.text = nil, nil, ""
}

type flag struct {
	set  bool
	name string
}

// require fails with the names of every unset flag.
func (m *Machine) require(op string, flags ...flag) error {
	var missing []string
	for _, f := range flags {
		if !f.set {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &PreconditionError{Operation: op, Missing: missing}
	}
	return nil
}
