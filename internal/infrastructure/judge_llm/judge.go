package judge_llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/buildgate/internal/domain"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Client is the AI judge backed by an OpenAI-compatible chat endpoint.
// Transient call failures are retried with bounded backoff here, in the
// collaborator; the orchestrator itself never retries.
type Client struct {
	llm     llms.Model
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{llm: llm, timeout: cfg.Timeout}, nil
}

func (c *Client) Assess(ctx context.Context, stage domain.StageType, f domain.Findings, pc domain.PipelineContext) (domain.Judgment, error) {
	out, err := c.generate(ctx, assessPrompt(stage, f, pc))
	if err != nil {
		return domain.Judgment{}, err
	}
	return parseJudgment(out)
}

func (c *Client) Summarize(ctx context.Context, stages []domain.StageResult, risk domain.RiskAssessment) (string, error) {
	out, err := c.generate(ctx, summaryPrompt(stages, risk))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out string
	op := func() error {
		resp, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = resp
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 3 * time.Second
	bo.MaxElapsedTime = c.timeout

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return out, nil
}

func assessPrompt(stage domain.StageType, f domain.Findings, pc domain.PipelineContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing the %q stage of a CI pipeline for %s (branch %s).\n",
		stage, pc.Repository, pc.Branch)
	b.WriteString("Assess the findings below and respond with ONLY a JSON object with keys: ")
	b.WriteString(`"risk_level" (integer 0-5), "suggestions" (array of strings), "analysis" (string), `)
	b.WriteString(`"critical_issues", "high_issues", "medium_issues" (integers).` + "\n\nFindings:\n")

	payload, _ := json.Marshal(f)
	b.Write(payload)

	if len(pc.Prior) > 0 {
		b.WriteString("\n\nEarlier stage outcomes:\n")
		for _, sr := range pc.Prior {
			fmt.Fprintf(&b, "- %s: %s (%d issue(s))\n", sr.Name, sr.Status, len(sr.Findings.Issues))
		}
	}
	return b.String()
}

func summaryPrompt(stages []domain.StageResult, risk domain.RiskAssessment) string {
	var b strings.Builder
	b.WriteString("Write a short executive summary (3-5 sentences, plain text) of this CI pipeline run.\n\nStages:\n")
	for _, sr := range stages {
		fmt.Fprintf(&b, "- %s: %s, %d issue(s)", sr.Name, sr.Status, len(sr.Findings.Issues))
		if sr.Judgment != nil {
			fmt.Fprintf(&b, ", judged risk %d/5", sr.Judgment.RiskLevel)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nOverall risk level %d/5 against threshold %d; gate decision: %s.\n",
		risk.Level, risk.Threshold, risk.Decision)
	return b.String()
}

type judgmentDTO struct {
	RiskLevel   int      `json:"risk_level"`
	Suggestions []string `json:"suggestions"`
	Analysis    string   `json:"analysis"`
	Critical    int      `json:"critical_issues"`
	High        int      `json:"high_issues"`
	Medium      int      `json:"medium_issues"`
}

// parseJudgment extracts the JSON object from a model response. Models
// wrap JSON in prose or code fences often enough that a plain Unmarshal
// of the whole response is not good enough.
func parseJudgment(out string) (domain.Judgment, error) {
	blob := extractJSON(out)
	if blob == "" {
		return domain.Judgment{}, fmt.Errorf("no JSON object in judge response")
	}

	var dto judgmentDTO
	if err := json.Unmarshal([]byte(blob), &dto); err != nil {
		return domain.Judgment{}, fmt.Errorf("malformed judge response: %w", err)
	}

	if dto.RiskLevel < 0 {
		dto.RiskLevel = 0
	}
	if dto.RiskLevel > 5 {
		dto.RiskLevel = 5
	}

	return domain.Judgment{
		RiskLevel:   dto.RiskLevel,
		Suggestions: dto.Suggestions,
		Analysis:    dto.Analysis,
		Counts: domain.SeverityCounts{
			Critical: dto.Critical,
			High:     dto.High,
			Medium:   dto.Medium,
		},
	}, nil
}

func extractJSON(s string) string {
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i < 0 || j <= i {
		return ""
	}
	return s[i : j+1]
}

// Disabled returns a judge whose calls always fail with the given reason.
// Used when the judge cannot be constructed (no API key); stages then run
// unassessed instead of aborting the pipeline.
func Disabled(reason string) domain.Judge {
	return disabled{reason: reason}
}

type disabled struct {
	reason string
}

func (d disabled) Assess(context.Context, domain.StageType, domain.Findings, domain.PipelineContext) (domain.Judgment, error) {
	return domain.Judgment{}, fmt.Errorf("judge disabled: %s", d.reason)
}

func (d disabled) Summarize(context.Context, []domain.StageResult, domain.RiskAssessment) (string, error) {
	return "", fmt.Errorf("judge disabled: %s", d.reason)
}
