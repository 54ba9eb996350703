// Package prompt asks the operator short questions with a deadline. A
// deadline passing is an answer too: it means "proceed".
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Prompter shows message and waits up to timeout for one line of input.
// answered is false when the timeout elapsed first; that is not an error.
type Prompter interface {
	Ask(ctx context.Context, message string, timeout time.Duration) (line string, answered bool, err error)
}

// Line reads operator input line by line from in. A single reader goroutine
// feeds every Ask, so a line is never lost between two prompts.
type Line struct {
	in  io.Reader
	out io.Writer

	start sync.Once
	lines chan string
}

// New returns a Line prompter reading in and writing prompts to out.
func New(in io.Reader, out io.Writer) *Line {
	return &Line{in: in, out: out}
}

// Stdio returns a prompter on the process's terminal, or a Silent one when
// stdin is not a terminal.
func Stdio() Prompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return Silent{}
	}
	return New(os.Stdin, os.Stderr)
}

func (l *Line) readLoop() {
	sc := bufio.NewScanner(l.in)
	for sc.Scan() {
		l.lines <- sc.Text()
	}
	close(l.lines)
}

func (l *Line) Ask(ctx context.Context, message string, timeout time.Duration) (string, bool, error) {
	l.start.Do(func() {
		l.lines = make(chan string, 16)
		go l.readLoop()
	})

	// Drop input typed before the question was shown.
drain:
	for {
		select {
		case _, ok := <-l.lines:
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}

	fmt.Fprintln(l.out, message)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	lines := l.lines
	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
			return "", false, nil
		case line, ok := <-lines:
			if !ok {
				// Input closed: nobody can answer, wait out the deadline.
				lines = nil
				continue
			}
			return strings.TrimSpace(line), true, nil
		}
	}
}

// Silent never receives an answer; Ask just waits for the timeout.
type Silent struct{}

func (Silent) Ask(ctx context.Context, _ string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer.C:
		return "", false, nil
	}
}
