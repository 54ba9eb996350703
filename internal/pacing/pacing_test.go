package pacing

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type recordingSleep struct{ slept []time.Duration }

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

type fakePrompter struct {
	answer   bool
	timeouts []time.Duration
}

func (f *fakePrompter) Ask(_ context.Context, _ string, timeout time.Duration) (string, bool, error) {
	f.timeouts = append(f.timeouts, timeout)
	return "", f.answer, nil
}

func newTestPacer(clock Clock, s *recordingSleep, pr *fakePrompter) *Pacer {
	opts := Options{
		Clock: clock,
		Sleep: s.sleep,
		Rand:  rand.New(rand.NewPCG(1, 2)),
	}
	if pr != nil {
		opts.Prompter = pr
	}
	return New(opts)
}

func TestPauseShort_WithinBounds(t *testing.T) {
	s := &recordingSleep{}
	p := newTestPacer(&fakeClock{}, s, nil)

	for range 200 {
		require.NoError(t, p.PauseShort(context.Background(), time.Second, 2*time.Second))
	}
	for _, d := range s.slept {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestPauseShort_EqualAndSwappedBounds(t *testing.T) {
	s := &recordingSleep{}
	p := newTestPacer(&fakeClock{}, s, nil)

	require.NoError(t, p.PauseShort(context.Background(), 3*time.Second, 3*time.Second))
	require.NoError(t, p.PauseShort(context.Background(), 2*time.Second, time.Second))
	assert.Equal(t, 3*time.Second, s.slept[0])
	assert.GreaterOrEqual(t, s.slept[1], time.Second)
	assert.LessOrEqual(t, s.slept[1], 2*time.Second)
}

func TestPauseInterruptible_UsesPrompterAsTimer(t *testing.T) {
	s := &recordingSleep{}
	pr := &fakePrompter{answer: true}
	p := newTestPacer(&fakeClock{}, s, pr)

	require.NoError(t, p.PauseInterruptible(context.Background(), 20*time.Second, 40*time.Second))
	assert.Empty(t, s.slept, "prompter does the waiting")
	require.Len(t, pr.timeouts, 1)
	assert.GreaterOrEqual(t, pr.timeouts[0], 20*time.Second)
	assert.LessOrEqual(t, pr.timeouts[0], 40*time.Second)
}

func TestPauseInterruptible_NoPrompterSleeps(t *testing.T) {
	s := &recordingSleep{}
	p := newTestPacer(&fakeClock{}, s, nil)

	require.NoError(t, p.PauseInterruptible(context.Background(), 20*time.Second, 40*time.Second))
	require.Len(t, s.slept, 1)
}

func TestEnforceMinimumPageDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("fast page waits for the remainder", func(t *testing.T) {
		s := &recordingSleep{}
		p := newTestPacer(&fakeClock{now: start.Add(15 * time.Second)}, s, nil)

		require.NoError(t, p.EnforceMinimumPageDuration(context.Background(), start, time.Minute))
		require.Len(t, s.slept, 1)
		assert.GreaterOrEqual(t, s.slept[0], 45*time.Second)
		assert.LessOrEqual(t, s.slept[0], 50*time.Second)
	})

	t.Run("slow page does not wait", func(t *testing.T) {
		s := &recordingSleep{}
		p := newTestPacer(&fakeClock{now: start.Add(2 * time.Minute)}, s, nil)

		require.NoError(t, p.EnforceMinimumPageDuration(context.Background(), start, time.Minute))
		assert.Empty(t, s.slept)
	})
}

func TestSleep_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
