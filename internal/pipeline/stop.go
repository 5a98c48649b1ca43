package pipeline

import (
	"fmt"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/config"
)

// StopPolicy decides when further refinement is unlikely to help. It is
// advisory: callers may refine past it.
type StopPolicy struct {
	MaxIterations  int
	PlateauWindow  int
	MinImprovement float64
}

// StopPolicyFrom reads the policy from configuration.
func StopPolicyFrom(cfg config.RefineConfig) StopPolicy {
	return StopPolicy{
		MaxIterations:  cfg.MaxIterations,
		PlateauWindow:  cfg.PlateauWindow,
		MinImprovement: cfg.MinImprovement,
	}
}

// StopDecision is returned alongside every refinement.
type StopDecision struct {
	Stop       bool   `json:"stop"`
	Reason     string `json:"reason,omitempty"`
	Iterations int    `json:"iterations"`
}

// Decide evaluates the policy against a lineage's history, oldest first.
// It stops once MaxIterations are reached, or when each of the last
// PlateauWindow iterations improved the overall score by no more than
// MinImprovement.
func (p StopPolicy) Decide(history []artifact.RefinementRecord) StopDecision {
	d := StopDecision{Iterations: len(history)}

	if p.MaxIterations > 0 && len(history) >= p.MaxIterations {
		d.Stop = true
		d.Reason = fmt.Sprintf("reached the iteration limit of %d", p.MaxIterations)
		return d
	}

	if p.PlateauWindow > 0 && len(history) >= p.PlateauWindow {
		for _, r := range history[len(history)-p.PlateauWindow:] {
			if r.Evaluation.Delta() > p.MinImprovement {
				return d
			}
		}
		d.Stop = true
		d.Reason = fmt.Sprintf("score improved by at most %.2f over the last %d iteration(s)", p.MinImprovement, p.PlateauWindow)
	}
	return d
}
