package application

import (
	"fmt"

	"github.com/davarch/buildgate/internal/domain"
)

type RiskPolicy string

const (
	// PolicyMax takes the highest sub-score across stages. A single severe
	// finding must not be diluted by calm stages.
	PolicyMax RiskPolicy = "max"

	// PolicySum accumulates sub-scores, clamped to the scale.
	PolicySum RiskPolicy = "sum"
)

const (
	MaxRiskLevel         = 5
	DefaultRiskThreshold = 3
)

type RiskConfig struct {
	Threshold int
	Policy    RiskPolicy
}

// ComputeRisk folds per-stage judgments into one overall risk level and a
// gate decision. Pure function of the accumulated results and config: no
// I/O, deterministic, same input always yields the same assessment.
func ComputeRisk(stages []domain.StageResult, cfg RiskConfig) domain.RiskAssessment {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyMax
	}

	level := 0
	factors := make([]domain.RiskFactor, 0, len(stages))
	for _, sr := range stages {
		f := stageFactor(sr)
		factors = append(factors, f)

		switch policy {
		case PolicySum:
			level += f.SubScore
		default:
			if f.SubScore > level {
				level = f.SubScore
			}
		}
	}
	level = clampRisk(level)

	decision := domain.GateProceed
	if level > cfg.Threshold {
		decision = domain.GateBlock
	}

	return domain.RiskAssessment{
		Level:     level,
		Threshold: cfg.Threshold,
		Factors:   factors,
		Decision:  decision,
	}
}

func stageFactor(sr domain.StageResult) domain.RiskFactor {
	if sr.Judgment == nil {
		rationale := "no judgment available"
		if sr.Status == domain.StageSkipped {
			rationale = "stage skipped"
		}
		return domain.RiskFactor{
			Stage:      sr.Name,
			SubScore:   0,
			Rationale:  rationale,
			Unassessed: true,
		}
	}

	score := clampRisk(sr.Judgment.RiskLevel)
	if derived := severityScore(sr.Judgment.Counts); derived > score {
		score = derived
	}

	rationale := sr.Judgment.Analysis
	if rationale == "" {
		rationale = fmt.Sprintf("%d issue(s) reported", len(sr.Findings.Issues))
	}
	return domain.RiskFactor{
		Stage:     sr.Name,
		SubScore:  score,
		Rationale: rationale,
	}
}

// severityScore maps reported severity counts onto the scale. Any critical
// finding maxes the sub-score regardless of what the judge narrated.
func severityScore(c domain.SeverityCounts) int {
	switch {
	case c.Critical > 0:
		return 5
	case c.High > 0:
		return 4
	case c.Medium > 0:
		return 2
	default:
		return 0
	}
}

func clampRisk(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRiskLevel {
		return MaxRiskLevel
	}
	return n
}
