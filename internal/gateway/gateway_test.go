package gateway

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// scriptTransport fails a fixed number of times with a given error, then
// succeeds.
type scriptTransport struct {
	failures int
	err      error
	attempts int
}

func (s *scriptTransport) Complete(ctx context.Context, req Request) (string, Usage, error) {
	s.attempts++
	usage := Usage{InputTokens: 10, OutputTokens: 5}
	if s.attempts <= s.failures {
		return "", usage, s.err
	}
	return "ok", usage, nil
}

func newTestGateway(tr Transport) (*Gateway, *[]time.Duration) {
	g := New(tr, DefaultRetryPolicy(), zap.NewNop().Sugar())
	var sleeps []time.Duration
	g.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return g, &sleeps
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	tr := &scriptTransport{}
	g, sleeps := newTestGateway(tr)

	text, usage, err := g.Call(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
	if usage.InputTokens != 10 || usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v on a clean call", *sleeps)
	}
}

func TestCallRetriesRateLimitWithGrowingDelays(t *testing.T) {
	tr := &scriptTransport{failures: 3, err: fmt.Errorf("api: %w", ErrRateLimited)}
	g, sleeps := newTestGateway(tr)

	text, usage, err := g.Call(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if !reflect.DeepEqual(*sleeps, want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}

	// Usage from failed attempts still counts: the endpoint billed them.
	if usage.InputTokens != 40 {
		t.Errorf("accumulated input tokens = %d, want 40", usage.InputTokens)
	}
	if tr.attempts != 4 {
		t.Errorf("attempts = %d, want 4", tr.attempts)
	}
}

func TestCallGivesUpAfterRateLimitBudget(t *testing.T) {
	tr := &scriptTransport{failures: 100, err: fmt.Errorf("api: %w", ErrRateLimited)}
	g, sleeps := newTestGateway(tr)

	_, _, err := g.Call(context.Background(), Request{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error %v does not wrap ErrRateLimited", err)
	}
	if !strings.Contains(err.Error(), "gave up after 5 rate-limited attempts") {
		t.Errorf("error = %v", err)
	}
	if tr.attempts != 5 {
		t.Errorf("attempts = %d, want 5", tr.attempts)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	if !reflect.DeepEqual(*sleeps, want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestCallRequestBudgetOverridesPolicy(t *testing.T) {
	tr := &scriptTransport{failures: 100, err: fmt.Errorf("api: %w", ErrRateLimited)}
	g, _ := newTestGateway(tr)

	_, _, err := g.Call(context.Background(), Request{User: "hi", RetryBudget: 2})
	if err == nil {
		t.Fatal("expected error")
	}
	if tr.attempts != 2 {
		t.Errorf("attempts = %d, want 2", tr.attempts)
	}
}

func TestCallOtherErrorsGetFewerAttempts(t *testing.T) {
	tr := &scriptTransport{failures: 100, err: errors.New("connection reset")}
	g, sleeps := newTestGateway(tr)

	_, _, err := g.Call(context.Background(), Request{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gave up after 3 attempts") {
		t.Errorf("error = %v", err)
	}
	if tr.attempts != 3 {
		t.Errorf("attempts = %d, want 3", tr.attempts)
	}
	if len(*sleeps) != 2 {
		t.Errorf("%d sleeps, want 2", len(*sleeps))
	}
}

func TestCallTransientThenRecovered(t *testing.T) {
	tr := &scriptTransport{failures: 2, err: errors.New("temporary upstream error")}
	g, _ := newTestGateway(tr)

	text, _, err := g.Call(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
	if tr.attempts != 3 {
		t.Errorf("attempts = %d, want 3", tr.attempts)
	}
}

func TestCallHonorsCanceledContext(t *testing.T) {
	tr := &scriptTransport{}
	g, _ := newTestGateway(tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Call(ctx, Request{User: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if tr.attempts != 0 {
		t.Errorf("transport called %d times after cancellation", tr.attempts)
	}
}
