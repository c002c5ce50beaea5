package domain

import "context"

// StageExecutor runs one concrete analyzer against the workspace and
// returns its raw findings. An error means the tool itself failed to run;
// a tool that ran and found issues returns those issues, not an error.
type StageExecutor interface {
	Execute(ctx context.Context, ws Workspace, prior []StageResult) (Findings, error)
}

// Judge is the language-model collaborator. Both calls must honor ctx
// deadlines and must not mutate any pipeline state.
type Judge interface {
	Assess(ctx context.Context, stage StageType, f Findings, pc PipelineContext) (Judgment, error)
	Summarize(ctx context.Context, stages []StageResult, risk RiskAssessment) (string, error)
}

// Workspaces prepares and disposes repository checkouts.
type Workspaces interface {
	Prepare(ctx context.Context, repository, branch string) (Workspace, error)
	Cleanup(ws Workspace) error
}

// RecordStore persists finished build records.
type RecordStore interface {
	Persist(ctx context.Context, rec *BuildRecord) error
}
