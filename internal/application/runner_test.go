package application

import (
	"context"
	"errors"
	"testing"

	"github.com/davarch/buildgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSpec(exec domain.StageExecutor) StageSpec {
	return StageSpec{
		Name:     "security",
		Type:     domain.StageSecurityScan,
		Required: true,
		Executor: exec,
	}
}

func TestStageRunner_ExecutorFailureSkipsJudge(t *testing.T) {
	exec := &domain.MockExecutor{Err: errors.New("scanner binary not found")}
	judge := &domain.MockJudge{}
	r := NewStageRunner(zap.NewNop(), judge)

	res := r.Run(context.Background(), testSpec(exec), domain.Workspace{}, nil)

	assert.Equal(t, domain.StageFailed, res.Status)
	assert.Contains(t, res.Findings.Error, "scanner binary not found")
	assert.Nil(t, res.Judgment)
	assert.Empty(t, judge.Assessed, "judge must not be called after executor failure")
}

func TestStageRunner_JudgeFailureKeepsFindings(t *testing.T) {
	exec := &domain.MockExecutor{Findings: domain.Findings{
		Tool:   "scanner",
		Issues: []domain.Issue{{Severity: domain.SeverityHigh, Message: "weak cipher"}},
	}}
	judge := &domain.MockJudge{Err: errors.New("model timeout")}
	r := NewStageRunner(zap.NewNop(), judge)

	res := r.Run(context.Background(), testSpec(exec), domain.Workspace{}, nil)

	assert.Equal(t, domain.StageSucceededWithFindings, res.Status)
	assert.Nil(t, res.Judgment)
	require.Len(t, res.Findings.Issues, 1)
	assert.Equal(t, "weak cipher", res.Findings.Issues[0].Message)
}

func TestStageRunner_CleanStageSucceeds(t *testing.T) {
	exec := &domain.MockExecutor{Findings: domain.Findings{Tool: "linter"}}
	judge := &domain.MockJudge{Judgment: domain.Judgment{RiskLevel: 0}}
	r := NewStageRunner(zap.NewNop(), judge)

	res := r.Run(context.Background(), testSpec(exec), domain.Workspace{}, nil)

	assert.Equal(t, domain.StageSucceeded, res.Status)
	require.NotNil(t, res.Judgment)
	assert.Equal(t, 0, res.Judgment.RiskLevel)
	assert.Greater(t, res.Duration.Nanoseconds(), int64(0))
}

func TestStageRunner_IssuesWithJudgment(t *testing.T) {
	exec := &domain.MockExecutor{Findings: domain.Findings{
		Issues: []domain.Issue{{Severity: domain.SeverityMedium, Message: "unused variable"}},
	}}
	judge := &domain.MockJudge{Judgment: domain.Judgment{RiskLevel: 2, Analysis: "minor cleanup"}}
	r := NewStageRunner(zap.NewNop(), judge)

	res := r.Run(context.Background(), testSpec(exec), domain.Workspace{}, nil)

	assert.Equal(t, domain.StageSucceededWithFindings, res.Status)
	require.NotNil(t, res.Judgment)
	assert.Equal(t, 2, res.Judgment.RiskLevel)
}

func TestStageRunner_PanickingExecutorIsContained(t *testing.T) {
	exec := &domain.MockExecutor{Panic: true}
	r := NewStageRunner(zap.NewNop(), &domain.MockJudge{})

	var res domain.StageResult
	require.NotPanics(t, func() {
		res = r.Run(context.Background(), testSpec(exec), domain.Workspace{}, nil)
	})
	assert.Equal(t, domain.StageFailed, res.Status)
	assert.Contains(t, res.Findings.Error, "panic")
}

func TestStageRunner_PriorResultsReachJudge(t *testing.T) {
	exec := &domain.MockExecutor{}
	judge := &recordingJudge{}
	r := NewStageRunner(zap.NewNop(), judge)

	prior := []domain.StageResult{{Name: "code_analysis", Status: domain.StageSucceeded}}
	r.Run(context.Background(), testSpec(exec), domain.Workspace{Repository: "r", Branch: "main"}, prior)

	require.Len(t, judge.contexts, 1)
	assert.Equal(t, "main", judge.contexts[0].Branch)
	require.Len(t, judge.contexts[0].Prior, 1)
	assert.Equal(t, "code_analysis", judge.contexts[0].Prior[0].Name)
}

type recordingJudge struct {
	contexts []domain.PipelineContext
}

func (j *recordingJudge) Assess(_ context.Context, _ domain.StageType, _ domain.Findings, pc domain.PipelineContext) (domain.Judgment, error) {
	j.contexts = append(j.contexts, pc)
	return domain.Judgment{}, nil
}

func (j *recordingJudge) Summarize(context.Context, []domain.StageResult, domain.RiskAssessment) (string, error) {
	return "", nil
}
