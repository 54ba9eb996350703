// Package pacing spaces out browser actions so a run moves at a human pace.
package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kalambet/applybot/internal/prompt"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Pacer. Zero fields take defaults.
type Options struct {
	Clock  Clock
	Sleep  SleepFunc
	Rand   *rand.Rand
	Logger *slog.Logger
	// Prompter receives the skip question for interruptible pauses. Nil
	// makes them plain sleeps.
	Prompter prompt.Prompter
	// MinimumJitter is added to the upper bound of the remainder wait in
	// EnforceMinimumPageDuration.
	MinimumJitter time.Duration
}

// Pacer owns every deliberate delay of a run.
type Pacer struct {
	clock    Clock
	sleep    SleepFunc
	rnd      *rand.Rand
	prompter prompt.Prompter
	jitter   time.Duration
	logger   *slog.Logger
}

// New returns a Pacer with defaults filled in.
func New(opts Options) *Pacer {
	p := &Pacer{
		clock:    opts.Clock,
		sleep:    opts.Sleep,
		rnd:      opts.Rand,
		prompter: opts.Prompter,
		jitter:   opts.MinimumJitter,
		logger:   opts.Logger,
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	if p.sleep == nil {
		p.sleep = Sleep
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if p.jitter == 0 {
		p.jitter = 5 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now returns the pacer's current time.
func (p *Pacer) Now() time.Time { return p.clock.Now() }

// between returns a uniform duration in [low, high]. Swapped bounds are
// tolerated.
func (p *Pacer) between(low, high time.Duration) time.Duration {
	if high < low {
		low, high = high, low
	}
	if high == low {
		return low
	}
	return low + time.Duration(p.rnd.Int64N(int64(high-low)+1))
}

// PauseShort sleeps a random duration in [low, high]. Operator input does
// not shorten it; only ctx does.
func (p *Pacer) PauseShort(ctx context.Context, low, high time.Duration) error {
	return p.sleep(ctx, p.between(low, high))
}

// PauseInterruptible sleeps a random duration in [low, high] that the
// operator can cut short by entering a line while it runs.
func (p *Pacer) PauseInterruptible(ctx context.Context, low, high time.Duration) error {
	d := p.between(low, high).Round(time.Second)
	if p.prompter == nil {
		return p.sleep(ctx, d)
	}

	msg := fmt.Sprintf("Pausing for %.2f minute(s). Press Enter to stop waiting.", d.Minutes())
	_, skipped, err := p.prompter.Ask(ctx, msg, d)
	if err != nil {
		return err
	}
	if skipped {
		p.logger.Debug("pause skipped by operator", "planned", d)
	} else {
		p.logger.Debug("pause finished", "duration", d)
	}
	return nil
}

// EnforceMinimumPageDuration blocks until at least minimum has passed since
// start, plus up to the jitter. It returns at once when the page already
// took long enough.
func (p *Pacer) EnforceMinimumPageDuration(ctx context.Context, start time.Time, minimum time.Duration) error {
	left := minimum - p.clock.Now().Sub(start)
	if left <= 0 {
		return nil
	}
	p.logger.Debug("page finished early", "remaining", left)
	return p.PauseInterruptible(ctx, left, left+p.jitter)
}
