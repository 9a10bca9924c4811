package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"flightdesk/internal/domain"
)

// RateLimiter is a token bucket shared by every tool of a registry.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond calls on average with bursts of burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a call may run now without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a call may run or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

type rateLimitedTool struct {
	domain.Tool
	limiter *RateLimiter
}

// WithRateLimiter makes t wait on limiter before each execution. A call that
// cannot be scheduled before ctx ends yields a retryable error result.
func WithRateLimiter(t domain.Tool, limiter *RateLimiter) domain.Tool {
	return &rateLimitedTool{Tool: t, limiter: limiter}
}

func (t *rateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return &domain.ToolResult{
			IsError:     true,
			IsRetryable: true,
			Content:     fmt.Sprintf("%s: rate limited: %v", t.Name(), err),
		}, nil
	}
	return t.Tool.Execute(ctx, params)
}
