package domain

import (
	"context"
	"sync"
)

type MockExecutor struct {
	Findings Findings
	Err      error
	Panic    bool

	mu     sync.Mutex
	Called int
}

func (m *MockExecutor) Execute(ctx context.Context, ws Workspace, prior []StageResult) (Findings, error) {
	m.mu.Lock()
	m.Called++
	m.mu.Unlock()
	if m.Panic {
		panic("executor blew up")
	}
	if m.Err != nil {
		return Findings{}, m.Err
	}
	return m.Findings, nil
}

// MockJudge is safe for concurrent use: parallel pipelines assess stages
// from multiple goroutines.
type MockJudge struct {
	Judgment   Judgment
	Summary    string
	Err        error
	SummaryErr error

	mu        sync.Mutex
	Assessed  []StageType
	Summaries int
}

func (j *MockJudge) Assess(ctx context.Context, stage StageType, f Findings, pc PipelineContext) (Judgment, error) {
	j.mu.Lock()
	j.Assessed = append(j.Assessed, stage)
	j.mu.Unlock()
	if j.Err != nil {
		return Judgment{}, j.Err
	}
	return j.Judgment, nil
}

func (j *MockJudge) Summarize(ctx context.Context, stages []StageResult, risk RiskAssessment) (string, error) {
	j.mu.Lock()
	j.Summaries++
	j.mu.Unlock()
	if j.SummaryErr != nil {
		return "", j.SummaryErr
	}
	return j.Summary, nil
}

type MockWorkspaces struct {
	WS       Workspace
	Err      error
	Prepared int
	Cleaned  int
}

func (w *MockWorkspaces) Prepare(ctx context.Context, repository, branch string) (Workspace, error) {
	w.Prepared++
	if w.Err != nil {
		return Workspace{}, w.Err
	}
	ws := w.WS
	if ws.Repository == "" {
		ws.Repository = repository
	}
	if ws.Branch == "" {
		ws.Branch = branch
	}
	return ws, nil
}

func (w *MockWorkspaces) Cleanup(ws Workspace) error {
	w.Cleaned++
	return nil
}

type MockStore struct {
	Records []*BuildRecord
	Err     error
}

func (s *MockStore) Persist(ctx context.Context, rec *BuildRecord) error {
	if s.Err != nil {
		return s.Err
	}
	s.Records = append(s.Records, rec)
	return nil
}
