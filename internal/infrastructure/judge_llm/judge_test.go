package judge_llm

import (
	"context"
	"testing"

	"github.com/davarch/buildgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgment_PlainJSON(t *testing.T) {
	j, err := parseJudgment(`{"risk_level": 4, "suggestions": ["rotate the leaked key"], "analysis": "credential committed", "critical_issues": 0, "high_issues": 1, "medium_issues": 2}`)
	require.NoError(t, err)

	assert.Equal(t, 4, j.RiskLevel)
	assert.Equal(t, []string{"rotate the leaked key"}, j.Suggestions)
	assert.Equal(t, 1, j.Counts.High)
	assert.Equal(t, 2, j.Counts.Medium)
}

func TestParseJudgment_FencedJSON(t *testing.T) {
	out := "Here is my assessment:\n```json\n{\"risk_level\": 2, \"analysis\": \"minor issues\"}\n```\nLet me know if you need more."
	j, err := parseJudgment(out)
	require.NoError(t, err)
	assert.Equal(t, 2, j.RiskLevel)
	assert.Equal(t, "minor issues", j.Analysis)
}

func TestParseJudgment_ClampsRiskLevel(t *testing.T) {
	j, err := parseJudgment(`{"risk_level": 11}`)
	require.NoError(t, err)
	assert.Equal(t, 5, j.RiskLevel)

	j, err = parseJudgment(`{"risk_level": -3}`)
	require.NoError(t, err)
	assert.Equal(t, 0, j.RiskLevel)
}

func TestParseJudgment_RejectsGarbage(t *testing.T) {
	_, err := parseJudgment("I could not analyze this.")
	assert.Error(t, err)

	_, err = parseJudgment("{not json}")
	assert.Error(t, err)
}

func TestDisabledJudgeAlwaysErrors(t *testing.T) {
	j := Disabled("no api key")

	_, err := j.Assess(context.Background(), domain.StageSecurityScan, domain.Findings{}, domain.PipelineContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")

	_, err = j.Summarize(context.Background(), nil, domain.RiskAssessment{})
	assert.Error(t, err)
}
