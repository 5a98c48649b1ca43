package llm

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ziadkadry99/paper2code/internal/metrics"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retry runs op until it succeeds, fails permanently, or the attempt budget
// is spent. Only errors classified by IsTransient are retried. target labels
// the retry metric and log line.
func Retry[T any](ctx context.Context, policy RetryPolicy, target string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.IncRetry(target)
			log.Printf("llm: %s: transient failure, retrying in %s: %v", target, wait.Round(time.Millisecond), err)
		}),
	)
}

// RetryingProvider retries transient Complete failures with backoff.
type RetryingProvider struct {
	provider Provider
	policy   RetryPolicy
}

// NewRetryingProvider wraps provider with the given retry policy.
func NewRetryingProvider(provider Provider, policy RetryPolicy) Provider {
	return &RetryingProvider{provider: provider, policy: policy}
}

func (r *RetryingProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	target := r.provider.Name()
	if req.Label != "" {
		target += "/" + req.Label
	}
	return Retry(ctx, r.policy, target, func() (*CompletionResponse, error) {
		return r.provider.Complete(ctx, req)
	})
}
