package llm

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ziadkadry99/paper2code/internal/metrics"
)

// LimitedProvider caps concurrent calls to the wrapped provider and spaces
// them to a requests-per-minute budget. A slot is held for one attempt only,
// so callers backing off between retries do not block others.
type LimitedProvider struct {
	provider Provider
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

// NewLimitedProvider wraps provider. A zero maxConcurrent or rpm disables
// that limit.
func NewLimitedProvider(provider Provider, maxConcurrent, rpm int) Provider {
	l := &LimitedProvider{provider: provider}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if rpm > 0 {
		burst := maxConcurrent
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
	}
	return l
}

func (l *LimitedProvider) Name() string {
	return l.provider.Name()
}

func (l *LimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer l.sem.Release(1)
	}

	done := metrics.TrackInFlight()
	defer done()

	resp, err := l.provider.Complete(ctx, req)
	if resp != nil {
		metrics.ObserveLLMCall(l.provider.Name(), resp.InputTokens, resp.OutputTokens, err)
	} else {
		metrics.ObserveLLMCall(l.provider.Name(), 0, 0, err)
	}
	return resp, err
}
