package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davarch/buildgate/internal/domain"
	"go.uber.org/zap"
)

// Options is the immutable run configuration handed to the orchestrator.
// Passed explicitly so runs stay reproducible and testable in parallel.
type Options struct {
	RiskThreshold int
	RiskPolicy    RiskPolicy
	Parallel      bool
}

// Pipeline drives the configured stages against one repository checkout,
// accumulates their results into a build record, computes the aggregate
// risk and gate decision, and persists the finished record.
type Pipeline struct {
	log        *zap.Logger
	workspaces domain.Workspaces
	judge      domain.Judge
	store      domain.RecordStore
	runner     *StageRunner
	opts       Options
}

func NewPipeline(log *zap.Logger, ws domain.Workspaces, judge domain.Judge, store domain.RecordStore, opts Options) *Pipeline {
	return &Pipeline{
		log:        log,
		workspaces: ws,
		judge:      judge,
		store:      store,
		runner:     NewStageRunner(log, judge),
		opts:       opts,
	}
}

// Run executes the pipeline once. The returned record is always fully
// formed; a non-nil error is either a configuration rejection (nil record)
// or a fatal setup failure (record with no stages).
func (p *Pipeline) Run(ctx context.Context, repository, branch string, stages []StageSpec) (*domain.BuildRecord, error) {
	if err := validateSpecs(stages); err != nil {
		return nil, err
	}
	if p.opts.RiskThreshold < 0 || p.opts.RiskThreshold > MaxRiskLevel {
		return nil, fmt.Errorf("risk threshold %d outside 0..%d", p.opts.RiskThreshold, MaxRiskLevel)
	}

	rec := domain.NewBuildRecord(repository, branch)
	p.log.Info("pipeline start",
		zap.String("build", rec.ID),
		zap.String("repository", repository),
		zap.String("branch", branch),
		zap.Int("stages", len(stages)),
	)

	ws, err := p.workspaces.Prepare(ctx, repository, branch)
	if err != nil {
		rec.Success = false
		rec.SetupError = err.Error()
		rec.CompletedAt = time.Now().UTC()
		p.persist(ctx, rec)
		return rec, &domain.SetupError{Op: "checkout", Err: err}
	}
	defer func() {
		if err := p.workspaces.Cleanup(ws); err != nil {
			p.log.Warn("workspace cleanup failed", zap.Error(err))
		}
	}()
	rec.Branch = ws.Branch
	rec.Commit = ws.Commit

	if p.opts.Parallel {
		rec.Stages = p.runParallel(ctx, stages, ws)
	} else {
		rec.Stages = p.runSequential(ctx, stages, ws)
	}

	for _, sr := range rec.Stages {
		if sr.Required && sr.Status == domain.StageFailed {
			rec.Success = false
		}
	}

	risk := ComputeRisk(rec.Stages, RiskConfig{
		Threshold: p.opts.RiskThreshold,
		Policy:    p.opts.RiskPolicy,
	})
	rec.Risk = &risk

	rec.Summary = p.summarize(ctx, rec.Stages, risk)
	rec.CompletedAt = time.Now().UTC()

	p.persist(ctx, rec)
	p.log.Info("pipeline done",
		zap.String("build", rec.ID),
		zap.Bool("success", rec.Success),
		zap.Int("risk", risk.Level),
		zap.String("gate", string(risk.Decision)),
		zap.Duration("took", rec.CompletedAt.Sub(rec.StartedAt)),
	)
	return rec, nil
}

// runSequential executes stages in configured order. Cancellation is
// cooperative: it is checked between stages, so an in-flight stage always
// finishes and gets recorded, and the remainder is recorded as skipped.
func (p *Pipeline) runSequential(ctx context.Context, stages []StageSpec, ws domain.Workspace) []domain.StageResult {
	results := make([]domain.StageResult, 0, len(stages))
	for _, spec := range stages {
		if ctx.Err() != nil {
			results = append(results, skippedResult(spec, "run cancelled before stage started"))
			continue
		}
		results = append(results, p.runner.Run(ctx, spec, ws, results))
	}
	return results
}

// runParallel fans all stages out against the same immutable workspace.
// Results land in a slice indexed by configured position, so the stored
// order is always the configured order, never completion order. Stages run
// this way get no cross-stage prior context.
func (p *Pipeline) runParallel(ctx context.Context, stages []StageSpec, ws domain.Workspace) []domain.StageResult {
	results := make([]domain.StageResult, len(stages))

	var wg sync.WaitGroup
	for i, spec := range stages {
		if ctx.Err() != nil {
			results[i] = skippedResult(spec, "run cancelled before stage started")
			continue
		}
		wg.Add(1)
		go func(i int, spec StageSpec) {
			defer wg.Done()
			results[i] = p.runner.Run(ctx, spec, ws, nil)
		}(i, spec)
	}
	wg.Wait()

	return results
}

func (p *Pipeline) summarize(ctx context.Context, stages []domain.StageResult, risk domain.RiskAssessment) string {
	s, err := p.judge.Summarize(ctx, stages, risk)
	if err == nil && s != "" {
		return s
	}
	if err != nil {
		p.log.Warn("judge summary unavailable, using fallback", zap.Error(err))
	}
	return fallbackSummary(stages, risk)
}

// fallbackSummary is the deterministic replacement for the AI executive
// summary. The record never ships with an empty summary.
func fallbackSummary(stages []domain.StageResult, risk domain.RiskAssessment) string {
	var clean, withFindings, failed, skipped int
	for _, sr := range stages {
		switch sr.Status {
		case domain.StageSucceeded:
			clean++
		case domain.StageSucceededWithFindings:
			withFindings++
		case domain.StageFailed:
			failed++
		case domain.StageSkipped:
			skipped++
		}
	}
	return fmt.Sprintf(
		"%d stage(s) run: %d clean, %d with findings, %d failed, %d skipped. Risk level %d/%d (threshold %d), gate: %s.",
		len(stages), clean, withFindings, failed, skipped,
		risk.Level, MaxRiskLevel, risk.Threshold, risk.Decision,
	)
}

func (p *Pipeline) persist(ctx context.Context, rec *domain.BuildRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.Persist(ctx, rec); err != nil {
		p.log.Error("record persist failed",
			zap.String("build", rec.ID),
			zap.Error(err),
		)
	}
}

func skippedResult(spec StageSpec, reason string) domain.StageResult {
	return domain.StageResult{
		Name:     spec.Name,
		Type:     spec.Type,
		Required: spec.Required,
		Status:   domain.StageSkipped,
		Findings: domain.Findings{Error: reason},
	}
}

func validateSpecs(stages []StageSpec) error {
	if len(stages) == 0 {
		return domain.ErrNoStages
	}
	seen := make(map[string]struct{}, len(stages))
	for _, spec := range stages {
		if spec.Name == "" {
			return fmt.Errorf("stage with empty name")
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if spec.Executor == nil {
			return fmt.Errorf("stage %q has no executor", spec.Name)
		}
	}
	return nil
}
