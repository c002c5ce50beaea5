package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordSchema is the persisted build record version. External CI systems
// parse stored records, so bump this on any breaking shape change.
const RecordSchema = "buildgate/v1"

type StageStatus string

const (
	StageSucceeded             StageStatus = "succeeded"
	StageSucceededWithFindings StageStatus = "succeeded_with_findings"
	StageFailed                StageStatus = "failed"
	StageSkipped               StageStatus = "skipped"
)

type StageType string

const (
	StageCodeAnalysis    StageType = "code_analysis"
	StageSecurityScan    StageType = "security_scan"
	StageTesting         StageType = "testing"
	StageInfraValidation StageType = "infrastructure_validation"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Issue is one normalized finding reported by a stage executor.
type Issue struct {
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule,omitempty"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

// Findings is the raw output of one stage executor. Raw preserves the
// tool's payload verbatim; Issues is the normalized view the judge and
// the risk policy work from. Error carries an executor failure when the
// tool itself could not run.
type Findings struct {
	Tool   string          `json:"tool,omitempty"`
	Issues []Issue         `json:"issues,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SeverityCounts buckets findings the way security scanners report them.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
}

// Judgment is the structured assessment the AI judge returns for one stage.
type Judgment struct {
	RiskLevel   int            `json:"risk_level"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Analysis    string         `json:"analysis,omitempty"`
	Counts      SeverityCounts `json:"counts"`
}

// StageResult is owned exclusively by the BuildRecord that contains it.
// Judgment is nil when the judge call failed or never ran.
type StageResult struct {
	Name     string        `json:"name"`
	Type     StageType     `json:"type"`
	Status   StageStatus   `json:"status"`
	Required bool          `json:"required"`
	Findings Findings      `json:"findings"`
	Judgment *Judgment     `json:"judgment,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type GateDecision string

const (
	GateProceed GateDecision = "proceed"
	GateBlock   GateDecision = "block"
)

// RiskFactor is one stage's contribution to the overall risk level.
// Unassessed marks stages that never got a judgment, so operators know
// the risk figure may be incomplete.
type RiskFactor struct {
	Stage      string `json:"stage"`
	SubScore   int    `json:"sub_score"`
	Rationale  string `json:"rationale,omitempty"`
	Unassessed bool   `json:"unassessed,omitempty"`
}

type RiskAssessment struct {
	Level     int          `json:"level"`
	Threshold int          `json:"threshold"`
	Factors   []RiskFactor `json:"factors"`
	Decision  GateDecision `json:"decision"`
}

// BuildRecord is the single aggregate result of one pipeline run.
// Stages are stored in configured order, one entry per configured stage.
// Risk is set only once every stage reached a terminal status.
type BuildRecord struct {
	Schema      string          `json:"schema"`
	ID          string          `json:"id"`
	Repository  string          `json:"repository"`
	Branch      string          `json:"branch"`
	Commit      string          `json:"commit,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Success     bool            `json:"success"`
	Stages      []StageResult   `json:"stages"`
	Risk        *RiskAssessment `json:"risk,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	SetupError  string          `json:"setup_error,omitempty"`
}

func NewBuildRecord(repository, branch string) *BuildRecord {
	now := time.Now().UTC()
	return &BuildRecord{
		Schema:     RecordSchema,
		ID:         newBuildID(now),
		Repository: repository,
		Branch:     branch,
		StartedAt:  now,
		Success:    true,
	}
}

func newBuildID(t time.Time) string {
	return fmt.Sprintf("build-%s-%s", t.Format("20060102-150405"), uuid.NewString()[:8])
}

// Blocked reports whether the deployment gate decided against proceeding.
func (r *BuildRecord) Blocked() bool {
	return r.Risk != nil && r.Risk.Decision == GateBlock
}

// Workspace is the prepared read-only checkout every stage runs against.
type Workspace struct {
	Path       string
	Repository string
	Branch     string
	Commit     string
}

// PipelineContext is the cross-stage context handed to the judge: which
// repository is being assessed and everything decided so far.
type PipelineContext struct {
	Repository string
	Branch     string
	Prior      []StageResult
}
