package application

import (
	"testing"

	"github.com/davarch/buildgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func judged(name string, level int) domain.StageResult {
	return domain.StageResult{
		Name:     name,
		Status:   domain.StageSucceededWithFindings,
		Judgment: &domain.Judgment{RiskLevel: level},
	}
}

func TestComputeRisk_MaxNotAverage(t *testing.T) {
	stages := []domain.StageResult{
		judged("code_analysis", 1),
		judged("security_scan", 5),
		judged("testing", 0),
	}

	risk := ComputeRisk(stages, RiskConfig{Threshold: DefaultRiskThreshold})

	assert.Equal(t, 5, risk.Level)
	require.Len(t, risk.Factors, 3)
	assert.Equal(t, 1, risk.Factors[0].SubScore)
	assert.Equal(t, 5, risk.Factors[1].SubScore)
	assert.Equal(t, 0, risk.Factors[2].SubScore)
}

func TestComputeRisk_GateThresholdBoundary(t *testing.T) {
	block := ComputeRisk([]domain.StageResult{judged("s", 4)}, RiskConfig{Threshold: 3})
	assert.Equal(t, domain.GateBlock, block.Decision)

	proceed := ComputeRisk([]domain.StageResult{judged("s", 3)}, RiskConfig{Threshold: 3})
	assert.Equal(t, domain.GateProceed, proceed.Decision)
}

func TestComputeRisk_UnassessedStageContributesZero(t *testing.T) {
	stages := []domain.StageResult{
		{Name: "security_scan", Status: domain.StageSucceededWithFindings}, // judge never ran
		judged("testing", 2),
	}

	risk := ComputeRisk(stages, RiskConfig{Threshold: 3})

	assert.Equal(t, 2, risk.Level)
	require.Len(t, risk.Factors, 2)
	assert.True(t, risk.Factors[0].Unassessed)
	assert.Equal(t, 0, risk.Factors[0].SubScore)
	assert.False(t, risk.Factors[1].Unassessed)
}

func TestComputeRisk_SeverityCountsOverrideNarrative(t *testing.T) {
	stages := []domain.StageResult{{
		Name:   "security_scan",
		Status: domain.StageSucceededWithFindings,
		Judgment: &domain.Judgment{
			RiskLevel: 2,
			Counts:    domain.SeverityCounts{Critical: 1},
		},
	}}

	risk := ComputeRisk(stages, RiskConfig{Threshold: 3})

	assert.Equal(t, 5, risk.Level, "a critical finding maxes the sub-score")
	assert.Equal(t, domain.GateBlock, risk.Decision)
}

func TestComputeRisk_SumPolicyClampsAtScale(t *testing.T) {
	stages := []domain.StageResult{
		judged("a", 3),
		judged("b", 4),
	}

	risk := ComputeRisk(stages, RiskConfig{Threshold: 3, Policy: PolicySum})

	assert.Equal(t, MaxRiskLevel, risk.Level)
	assert.Equal(t, domain.GateBlock, risk.Decision)
}

func TestComputeRisk_OutOfScaleJudgmentClamped(t *testing.T) {
	risk := ComputeRisk([]domain.StageResult{judged("s", 99)}, RiskConfig{Threshold: 3})
	assert.Equal(t, 5, risk.Level)

	risk = ComputeRisk([]domain.StageResult{judged("s", -2)}, RiskConfig{Threshold: 3})
	assert.Equal(t, 0, risk.Level)
}

func TestComputeRisk_NoStages(t *testing.T) {
	risk := ComputeRisk(nil, RiskConfig{Threshold: 3})
	assert.Equal(t, 0, risk.Level)
	assert.Equal(t, domain.GateProceed, risk.Decision)
	assert.Empty(t, risk.Factors)
}
