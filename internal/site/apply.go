package site

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/applybot/internal/driver"
)

const questionWait = 3 * time.Second

// ErrSkipQuestion marks a question the Responder could not answer. The
// Applier leaves that field empty and carries on with the rest.
var ErrSkipQuestion = errors.New("question skipped")

// Responder produces the text the Applier types into the response form.
type Responder interface {
	AnswerQuestion(ctx context.Context, question string) (string, error)
	CoverLetter(ctx context.Context) (string, error)
}

// Outcome is the result of one Apply.
type Outcome int

const (
	Applied Outcome = iota
	// AlreadyApplied means the vacancy had no response button, which the
	// site hides after an earlier response.
	AlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already applied"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Applier fills in and sends the response form of the vacancy in the
// focused tab.
type Applier struct {
	*Browser
	r            Responder
	questionWait time.Duration
}

func NewApplier(b *Browser, r Responder) *Applier {
	return &Applier{Browser: b, r: r, questionWait: questionWait}
}

// Apply responds to the vacancy: it opens the response form, answers text
// questions and delivers a cover letter.
func (a *Applier) Apply(ctx context.Context) (Outcome, error) {
	ok, err := a.exists(ctx, "apply.response")
	if err != nil {
		return 0, err
	}
	if !ok {
		return AlreadyApplied, nil
	}

	if err := a.click(ctx, "apply.response"); err != nil {
		return 0, fmt.Errorf("opening response form: %w", err)
	}
	if err := a.answerQuestions(ctx); err != nil {
		return 0, err
	}
	if err := a.sendCoverLetter(ctx); err != nil {
		return 0, err
	}
	return Applied, a.Pause(ctx)
}

func (a *Applier) answerQuestions(ctx context.Context) error {
	err := driver.WaitFor(ctx, a.d, a.sel.Get("apply.questions"), a.questionWait, a.questionWait/6)
	if errors.Is(err, driver.ErrTimeout) {
		return nil
	}
	if err != nil {
		return err
	}

	questions, err := a.d.ListMatches(ctx, a.sel.Get("apply.questions"))
	if err != nil {
		return err
	}
	a.logger.Debug("questions found", "count", len(questions))

	for i, q := range questions {
		n := i + 1 // XPath positions are 1-based.
		hasInput, err := a.exists(ctx, "apply.question_input", n)
		if err != nil {
			return err
		}
		if !hasInput {
			continue
		}

		text := strings.TrimSpace(q.Text)
		answer, err := a.r.AnswerQuestion(ctx, text)
		if errors.Is(err, ErrSkipQuestion) {
			a.logger.Warn("question left unanswered", "question", text, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("answering %q: %w", text, err)
		}
		if err := a.Pause(ctx); err != nil {
			return err
		}
		if err := a.typeInto(ctx, "apply.question_input", answer, n); err != nil {
			return fmt.Errorf("entering answer: %w", err)
		}
	}
	return nil
}

// sendCoverLetter tries the popup letter field, then the letter toggle,
// then the chat with the employer.
func (a *Applier) sendCoverLetter(ctx context.Context) error {
	letter, err := a.r.CoverLetter(ctx)
	if err != nil {
		return fmt.Errorf("cover letter: %w", err)
	}

	if el, err := a.first(ctx, "apply.letter_input"); err == nil {
		if err := a.ScrollTo(ctx, el.Y); err != nil {
			return err
		}
		if err := a.typeInto(ctx, "apply.letter_input", letter); err != nil {
			return fmt.Errorf("entering cover letter: %w", err)
		}
		return a.click(ctx, "apply.letter_submit")
	} else if !errors.Is(err, driver.ErrNoSuchElement) {
		return err
	}

	if el, err := a.first(ctx, "apply.letter_toggle"); err == nil {
		if err := a.ClickElement(ctx, el); err != nil {
			return err
		}
		if err := a.typeInto(ctx, "apply.letter_informer", letter); err != nil {
			return fmt.Errorf("entering cover letter: %w", err)
		}
		if a.sel["apply.letter_send"] != "" {
			return a.click(ctx, "apply.letter_send")
		}
		return nil
	} else if !errors.Is(err, driver.ErrNoSuchElement) {
		return err
	}

	return a.sendViaChat(ctx, letter)
}

func (a *Applier) sendViaChat(ctx context.Context, letter string) error {
	if err := a.click(ctx, "apply.chat_open"); err != nil {
		return fmt.Errorf("opening chat: %w", err)
	}
	frame := a.sel.Get("apply.chat_frame")
	ok, err := driver.Exists(ctx, a.d, frame)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Warn("chat frame not found, cover letter not sent")
		return nil
	}

	if err := a.d.SwitchFrame(ctx, frame); err != nil {
		return err
	}
	sendErr := a.chat(ctx, letter)
	if err := a.d.SwitchFrame(ctx, ""); err != nil && sendErr == nil {
		sendErr = err
	}
	return sendErr
}

func (a *Applier) chat(ctx context.Context, letter string) error {
	if err := a.d.Click(ctx, a.sel.Get("apply.chat_action")); err != nil {
		return err
	}
	input := a.sel.Get("apply.chat_input")
	if err := a.d.Type(ctx, input, letter); err != nil {
		return err
	}
	if err := a.Pause(ctx); err != nil {
		return err
	}
	return a.d.SendKeys(ctx, input, driver.KeyEnter)
}
