package application

import (
	"context"
	"fmt"
	"time"

	"github.com/davarch/buildgate/internal/domain"
	"go.uber.org/zap"
)

// StageSpec describes one configured stage: its executor plus the policy
// bits the orchestrator needs (required flag, per-stage timeout).
type StageSpec struct {
	Name     string
	Type     domain.StageType
	Required bool
	Timeout  time.Duration
	Executor domain.StageExecutor
}

// StageRunner wraps one executor invocation plus the judge call into a
// single resilient unit. All failure modes end up inside the returned
// StageResult; nothing escapes its boundary, so one broken analyzer or an
// AI outage cannot abort the pipeline.
type StageRunner struct {
	log   *zap.Logger
	judge domain.Judge
}

func NewStageRunner(log *zap.Logger, judge domain.Judge) *StageRunner {
	return &StageRunner{log: log, judge: judge}
}

func (r *StageRunner) Run(ctx context.Context, spec StageSpec, ws domain.Workspace, prior []domain.StageResult) (res domain.StageResult) {
	start := time.Now()
	res = domain.StageResult{
		Name:     spec.Name,
		Type:     spec.Type,
		Required: spec.Required,
	}

	defer func() {
		if p := recover(); p != nil {
			res.Status = domain.StageFailed
			res.Judgment = nil
			res.Findings.Error = fmt.Sprintf("stage panicked: %v", p)
			r.log.Error("stage panicked",
				zap.String("stage", spec.Name),
				zap.Any("panic", p),
			)
		}
		res.Duration = time.Since(start)
	}()

	execCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	findings, err := spec.Executor.Execute(execCtx, ws, prior)
	if err != nil {
		res.Status = domain.StageFailed
		res.Findings = domain.Findings{Error: err.Error()}
		r.log.Warn("stage executor failed",
			zap.String("stage", spec.Name),
			zap.Error(err),
		)
		return res
	}
	res.Findings = findings

	pc := domain.PipelineContext{
		Repository: ws.Repository,
		Branch:     ws.Branch,
		Prior:      prior,
	}
	judgment, err := r.judge.Assess(ctx, spec.Type, findings, pc)
	if err != nil {
		// Findings stay intact; the run continues without AI enrichment.
		res.Status = domain.StageSucceededWithFindings
		r.log.Warn("judge unavailable, stage left unassessed",
			zap.String("stage", spec.Name),
			zap.Error(err),
		)
		return res
	}
	res.Judgment = &judgment

	if len(findings.Issues) == 0 {
		res.Status = domain.StageSucceeded
	} else {
		res.Status = domain.StageSucceededWithFindings
	}
	return res
}
