package answerer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/applybot/internal/listing"
	"github.com/kalambet/applybot/internal/resume"
)

// scripted replies in order and remembers every prompt.
type scripted struct {
	replies []string
	err     error
	prompts []string
}

func (s *scripted) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

const profileYAML = `
personal_information:
  email: alice@example.com
  github: https://github.com/alice
experience_details:
  - position: Backend engineer
    company: Initech
    years: 4
    skills: [Go, PostgreSQL]
salary_expectations: 250000 RUB
`

func newAnswerer(t *testing.T, s *scripted) *Answerer {
	t.Helper()
	p, err := resume.Parse([]byte(profileYAML))
	require.NoError(t, err)
	a := New(s, nil)
	a.SetResume(p, "Alice, backend engineer with four years of Go.")
	return a
}

func TestParseSection(t *testing.T) {
	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"Experience Details", resume.ExperienceDetails, true},
		{"The answer is: salary expectations.", resume.SalaryExpectations, true},
		{"EDUCATION DETAILS", resume.EducationDetails, true},
		{"Cover letter", CoverLetter, true},
		{"Experiance Detials", resume.ExperienceDetails, true},
		{"I am not sure", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, ok := ParseSection(tt.reply)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBestMatch(t *testing.T) {
	got, ok := BestMatch("projcts", labels)
	require.True(t, ok)
	assert.Equal(t, "Projects", got)

	_, ok = BestMatch("anything", nil)
	assert.False(t, ok)
}

func TestAnswerUsesClassifiedSection(t *testing.T) {
	s := &scripted{replies: []string{"Experience Details", "  Four years of Go at Initech.  "}}
	a := newAnswerer(t, s)

	got, err := a.Answer(context.Background(), "How many years of Go do you have?")
	require.NoError(t, err)
	assert.Equal(t, "Four years of Go at Initech.", got.Text)
	assert.Equal(t, resume.ExperienceDetails, got.Section)
	assert.True(t, got.Reusable())

	require.Len(t, s.prompts, 2)
	assert.Contains(t, s.prompts[0], "How many years of Go do you have?")
	assert.Contains(t, s.prompts[1], "Initech")
	assert.Contains(t, s.prompts[1], "Resume section (experience_details)")
	assert.NotContains(t, s.prompts[1], "alice@example.com")
}

func TestAnswerMissingSection(t *testing.T) {
	s := &scripted{replies: []string{"Languages"}}
	a := newAnswerer(t, s)

	_, err := a.Answer(context.Background(), "Which languages do you speak?")
	var missing *MissingSectionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, resume.Languages, missing.Section)
	assert.Len(t, s.prompts, 1)
}

func TestAnswerUnclassifiable(t *testing.T) {
	s := &scripted{replies: []string{"no idea, sorry"}}
	a := newAnswerer(t, s)

	_, err := a.Answer(context.Background(), "What is your favourite colour?")
	var ce *ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "no idea, sorry", ce.Reply)
}

func TestAnswerCoverLetterQuestion(t *testing.T) {
	s := &scripted{replies: []string{"Cover letter", "Dear team, PLACEHOLDER I would like to join."}}
	a := newAnswerer(t, s)
	a.SetJob(listing.Listing{Title: "Go developer", CompanyName: "Globex", Description: "Build APIs in Go."})

	got, err := a.Answer(context.Background(), "Why do you want to work with us?")
	require.NoError(t, err)
	assert.Equal(t, "Dear team,  I would like to join.", got.Text)
	assert.False(t, got.Reusable(), "a letter is written for one job")
	assert.Contains(t, s.prompts[1], "Build APIs in Go.")
	assert.Contains(t, s.prompts[1], "four years of Go")
}

func TestAnswerCoverLetterWithoutJob(t *testing.T) {
	a := newAnswerer(t, &scripted{replies: []string{"Cover letter"}})
	_, err := a.Answer(context.Background(), "Motivation letter")
	var missing *MissingSectionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, CoverLetter, missing.Section)
}

func TestAnswerWithoutResume(t *testing.T) {
	a := New(&scripted{}, nil)
	_, err := a.Answer(context.Background(), "Email?")
	require.Error(t, err)
}

func TestModelErrorsPropagate(t *testing.T) {
	boom := errors.New("backend down")
	a := newAnswerer(t, &scripted{err: boom})
	_, err := a.Answer(context.Background(), "Email?")
	require.ErrorIs(t, err, boom)

	a.SetJob(listing.Listing{Title: "Go developer"})
	_, err = a.WriteCoverLetter(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestBuildAnswerPromptGuidance(t *testing.T) {
	p := BuildAnswerPrompt(resume.SalaryExpectations, "250000 RUB", "Desired salary?")
	assert.True(t, strings.Contains(p, "one figure or range"))
	assert.Contains(t, p, "same language as the question")
}
