// Package gateway performs single request/response exchanges with a text
// generation endpoint, retrying transient failures with bounded exponential
// backoff and attributing token usage per billing category.
//
// The pipeline keeps system prompts byte-stable across calls so the
// transport's prompt-prefix cache can hit; the gateway only carries the
// cache-eligibility flag through and reports cache-read vs cache-write
// token counts separately.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited is wrapped by transports when the endpoint signals a rate
// limit. Rate-limited calls are retried up to the request's retry budget;
// any other transport failure gets a much smaller number of attempts.
var ErrRateLimited = errors.New("rate limited")

// Usage counts tokens billed for one or more calls, split by category.
// Cache reads and writes carry different prices than ordinary input.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
}

// Request is one prompt exchange.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64

	// RetryBudget bounds attempts for rate-limited failures.
	// Zero means the gateway policy default.
	RetryBudget int

	// CacheSystem marks the system prompt for prompt-prefix caching.
	CacheSystem bool
}

// Transport performs a single uncached, unretried exchange.
type Transport interface {
	Complete(ctx context.Context, req Request) (string, Usage, error)
}

// Gateway wraps a Transport with retry/backoff and usage accounting.
type Gateway struct {
	transport Transport
	policy    RetryPolicy
	log       *zap.SugaredLogger

	// sleep is replaced in tests to avoid real delays.
	sleep func(time.Duration)
}

// New creates a Gateway. log may not be nil; pass zap.NewNop().Sugar() to
// silence it.
func New(transport Transport, policy RetryPolicy, log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		transport: transport,
		policy:    policy,
		log:       log,
		sleep:     time.Sleep,
	}
}

// Call performs the exchange, retrying per the gateway policy. The returned
// Usage covers all attempts, including failed ones that reported usage.
func (g *Gateway) Call(ctx context.Context, req Request) (string, Usage, error) {
	rateLimitBudget := req.RetryBudget
	if rateLimitBudget <= 0 {
		rateLimitBudget = g.policy.MaxAttempts
	}

	var total Usage
	delays := g.policy.delays()
	rateLimitAttempts := 0
	otherAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return "", total, err
		}

		text, usage, err := g.transport.Complete(ctx, req)
		total.Add(usage)
		if err == nil {
			return text, total, nil
		}

		if errors.Is(err, ErrRateLimited) {
			rateLimitAttempts++
			if rateLimitAttempts >= rateLimitBudget {
				return "", total, fmt.Errorf("gave up after %d rate-limited attempts: %w", rateLimitAttempts, err)
			}
		} else {
			otherAttempts++
			if otherAttempts >= g.policy.OtherAttempts {
				return "", total, fmt.Errorf("gave up after %d attempts: %w", otherAttempts, err)
			}
		}

		wait := delays.NextBackOff()
		g.log.Warnw("transport call failed, retrying",
			"error", err,
			"wait", wait,
			"rate_limited", errors.Is(err, ErrRateLimited),
		)
		g.sleep(wait)
	}
}
