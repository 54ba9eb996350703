// Package answerer turns application questions into answers by routing each
// question to one resume section and asking the model about that section.
package answerer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/resume"
)

// CoverLetter is the pseudo-section for questions asking for a letter.
const CoverLetter = "cover_letter"

// maxLabelDistance bounds the edit distance accepted when the classifier
// reply names no label verbatim.
const maxLabelDistance = 3

var labels = []string{
	"Personal information", "Legal Authorization", "Work Preferences",
	"Education Details", "Experience Details", "Projects", "Availability",
	"Salary Expectations", "Certifications", "Languages", "Interests",
	"Cover letter",
}

var labelPattern = regexp.MustCompile(`(?i)(personal information|legal authorization|work preferences|education\s+details|experience details|projects|availability|salary\s+expectations|certifications|languages|interests|cover letter)`)

// ClassificationError means the classifier reply named no known section.
type ClassificationError struct {
	Question string
	Reply    string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("could not classify question %q (model replied %q)", e.Question, e.Reply)
}

// MissingSectionError means the question maps to a section the resume
// profile does not have.
type MissingSectionError struct {
	Question string
	Section  string
}

func (e *MissingSectionError) Error() string {
	return fmt.Sprintf("resume has no %s section for question %q", e.Section, e.Question)
}

// Completer is the model capability the answerer needs. *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Answerer answers questions for one candidate. SetResume must be called
// before Answer or WriteCoverLetter; SetJob before WriteCoverLetter.
type Answerer struct {
	llm     Completer
	profile *resume.Profile
	resume  string
	job     *listing.Listing
	logger  *slog.Logger
}

// New creates an Answerer backed by c.
func New(c Completer, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{llm: c, logger: logger}
}

// SetResume binds the structured profile and the resume text.
func (a *Answerer) SetResume(profile *resume.Profile, text string) {
	a.profile = profile
	a.resume = text
}

// SetJob binds the vacancy the next cover letter is written for.
func (a *Answerer) SetJob(l listing.Listing) {
	a.job = &l
}

// SectionName converts a classifier label to a section name.
func SectionName(label string) string {
	return strings.ReplaceAll(strings.Join(strings.Fields(strings.ToLower(label)), " "), " ", "_")
}

// ParseSection extracts the section name from a classifier reply. A reply
// without a verbatim label falls back to the closest label by edit distance.
func ParseSection(reply string) (string, bool) {
	if m := labelPattern.FindString(reply); m != "" {
		return SectionName(m), true
	}
	best, ok := BestMatch(strings.TrimSpace(reply), labels)
	if !ok || levenshtein.ComputeDistance(strings.ToLower(strings.TrimSpace(reply)), strings.ToLower(best)) > maxLabelDistance {
		return "", false
	}
	return SectionName(best), true
}

// BestMatch returns the option closest to text by case-insensitive
// Levenshtein distance. Ties keep the earlier option.
func BestMatch(text string, options []string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	text = strings.ToLower(text)
	best, bestDist := options[0], -1
	for _, o := range options {
		d := levenshtein.ComputeDistance(text, strings.ToLower(o))
		if bestDist < 0 || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best, true
}

// Classify maps question to a section name.
func (a *Answerer) Classify(ctx context.Context, question string) (string, error) {
	reply, err := a.llm.Complete(ctx, BuildClassifyPrompt(question))
	if err != nil {
		return "", fmt.Errorf("classifying question: %w", err)
	}
	section, ok := ParseSection(reply)
	if !ok {
		return "", &ClassificationError{Question: question, Reply: reply}
	}
	a.logger.Debug("question classified", "question", question, "section", section)
	return section, nil
}

// Reply is a generated answer and the section the question was routed to.
type Reply struct {
	Text    string
	Section string
}

// Reusable reports whether the answer may be served again for the same
// question. A cover letter is written for one job and is not.
func (r Reply) Reusable() bool { return r.Section != CoverLetter }

// Answer classifies question and answers it from the matching section.
func (a *Answerer) Answer(ctx context.Context, question string) (Reply, error) {
	if a.profile == nil {
		return Reply{}, fmt.Errorf("answerer has no resume profile")
	}
	section, err := a.Classify(ctx, question)
	if err != nil {
		return Reply{}, err
	}

	if section == CoverLetter {
		if a.job == nil {
			return Reply{}, &MissingSectionError{Question: question, Section: section}
		}
		letter, err := a.WriteCoverLetter(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: letter, Section: section}, nil
	}

	text, ok := a.profile.Section(section)
	if !ok {
		return Reply{}, &MissingSectionError{Question: question, Section: section}
	}

	answer, err := a.llm.Complete(ctx, BuildAnswerPrompt(section, text, question))
	if err != nil {
		return Reply{}, fmt.Errorf("answering question: %w", err)
	}
	return Reply{Text: cleanAnswer(answer), Section: section}, nil
}

// WriteCoverLetter writes a letter for the job bound with SetJob.
func (a *Answerer) WriteCoverLetter(ctx context.Context) (string, error) {
	if a.job == nil {
		return "", fmt.Errorf("no job bound for cover letter")
	}
	letter, err := a.llm.Complete(ctx, BuildCoverLetterPrompt(a.resume, a.job.Text()))
	if err != nil {
		return "", fmt.Errorf("writing cover letter: %w", err)
	}
	return cleanAnswer(letter), nil
}

// cleanAnswer drops template placeholders the model sometimes echoes.
func cleanAnswer(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "PLACEHOLDER", ""))
}
