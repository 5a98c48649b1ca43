package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/metrics"
)

// meteredProvider returns a fixed analysis with token usage.
type meteredProvider struct {
	calls int
}

func (m *meteredProvider) Name() string { return "metered" }

func (m *meteredProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.calls++
	return &llm.CompletionResponse{Content: analysisJSON, InputTokens: 120, OutputTokens: 40}, nil
}

func TestLLMCallsCountedOncePerAttempt(t *testing.T) {
	metrics.Init()

	base := &meteredProvider{}
	p := newTestPipeline(llm.Stack(base, 2, 0, llm.RetryPolicy{MaxAttempts: 1}), nil)
	if _, err := p.Analyze(context.Background(), "s1", "The PIE paper text.", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected one provider call, got %d", base.calls)
	}

	const want = `
# HELP paper2code_llm_requests_total Total number of outbound generation calls
# TYPE paper2code_llm_requests_total counter
paper2code_llm_requests_total{outcome="ok",provider="metered"} 1
# HELP paper2code_llm_tokens_total Tokens consumed by outbound generation calls
# TYPE paper2code_llm_tokens_total counter
paper2code_llm_tokens_total{direction="input",provider="metered"} 120
paper2code_llm_tokens_total{direction="output",provider="metered"} 40
`
	err := testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(want),
		"paper2code_llm_requests_total", "paper2code_llm_tokens_total")
	if err != nil {
		t.Error(err)
	}
}
