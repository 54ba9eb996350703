// Package llm wraps a language-model backend with unbounded retry, cost
// accounting and an invocation audit log.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultFallbackWait is slept after a failure that carries no retry hint.
const DefaultFallbackWait = 30 * time.Second

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// Model is the configured model name, used for pricing and the record
	// when the backend does not report one.
	Model        string
	FallbackWait time.Duration
	Prices       map[string]Price
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	Sleep   func(ctx context.Context, d time.Duration) error
	Now     func() time.Time
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Client retries a Backend until it succeeds or ctx is done. There is no
// attempt limit: throttling blocks the run rather than aborting it.
type Client struct {
	backend  Backend
	recorder Recorder
	model    string
	fallback time.Duration
	prices   map[string]Price
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Client. recorder may be nil to skip the audit log.
func New(backend Backend, recorder Recorder, opts Options) *Client {
	c := &Client{
		backend:  backend,
		recorder: recorder,
		model:    opts.Model,
		fallback: opts.FallbackWait,
		prices:   opts.Prices,
		limiter:  opts.Limiter,
		sleep:    opts.Sleep,
		now:      opts.Now,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
	}
	if c.fallback <= 0 {
		c.fallback = DefaultFallbackWait
	}
	if c.prices == nil {
		c.prices = DefaultPrices
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/kalambet/applybot/internal/llm")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Invoke(ctx, []Message{{Role: "user", Content: prompt}})
}

// Invoke sends messages to the backend and returns the reply content.
//
// Rate-limit errors sleep for the vendor's retry hint or the fallback wait;
// other errors sleep the fallback wait. Errors wrapped with Permanent are
// returned immediately. Exactly one InvocationRecord is written per
// successful call.
func (c *Client) Invoke(ctx context.Context, messages []Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.invoke", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", c.fail(span, fmt.Errorf("waiting for rate limiter: %w", err))
			}
		}

		reply, err := c.backend.Invoke(ctx, messages)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			c.record(ctx, span, messages, reply)
			return reply.Content, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", c.fail(span, ctxErr)
		}
		if IsPermanent(err) {
			attrs := []any{"attempt", attempt, "error", err}
			var se *StatusError
			if errors.As(err, &se) {
				attrs = append(attrs, "status", se.Status)
				if se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden {
					attrs = append(attrs, "hint", "check the API key")
				}
			}
			c.logger.Error("model call failed permanently, not retrying", attrs...)
			return "", c.fail(span, fmt.Errorf("invoking model: %w", err))
		}

		wait := c.fallback
		var rl *RateLimitError
		if errors.As(err, &rl) {
			if rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
			c.logger.Warn("model rate limited, waiting before retry", "attempt", attempt, "wait", wait, "hinted", rl.RetryAfter > 0)
		} else {
			c.logger.Error("model call failed, waiting before retry", "attempt", attempt, "wait", wait, "error", err)
		}
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
			attribute.Int64("wait_ms", wait.Milliseconds()),
		))

		if err := c.sleep(ctx, wait); err != nil {
			return "", c.fail(span, err)
		}
	}
}

func (c *Client) record(ctx context.Context, span trace.Span, messages []Message, reply Reply) {
	model := reply.Model
	if model == "" {
		model = c.model
	}
	usage := reply.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	cost := Cost(PriceFor(c.prices, model), usage)

	span.SetAttributes(
		attribute.String("llm.reply_model", model),
		attribute.Int("llm.input_tokens", usage.InputTokens),
		attribute.Int("llm.output_tokens", usage.OutputTokens),
		attribute.Float64("llm.cost_usd", cost),
	)
	c.logger.Debug("model call succeeded", "model", model, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens, "cost", cost)

	if c.recorder == nil {
		return
	}
	rec := InvocationRecord{
		ID:           uuid.NewString(),
		Model:        model,
		Time:         c.now().UTC(),
		Prompts:      slices.Clone(messages),
		Reply:        reply.Content,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		Cost:         cost,
	}
	// The audit log is not part of the call's result; a write failure is
	// reported but the reply is still returned.
	if err := c.recorder.AppendInvocation(ctx, rec); err != nil {
		c.logger.Error("failed to record model invocation", "id", rec.ID, "error", err)
	}
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
