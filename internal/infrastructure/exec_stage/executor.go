package exec_stage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/davarch/buildgate/internal/domain"
)

// Executor runs a configured analyzer command inside the workspace and
// parses its JSON output into findings. Analyzers conventionally exit
// non-zero when they find issues; as long as the output parses, that is
// findings, not an execution failure.
type Executor struct {
	command []string
	timeout time.Duration
}

func New(command []string, timeout time.Duration) *Executor {
	return &Executor{command: command, timeout: timeout}
}

func (e *Executor) Execute(ctx context.Context, ws domain.Workspace, _ []domain.StageResult) (domain.Findings, error) {
	if len(e.command) == 0 {
		return domain.Findings{}, errors.New("empty stage command")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tool := filepath.Base(e.command[0])

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Dir = ws.Path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if f, ok := parseFindings(tool, stdout.Bytes()); ok {
		return f, nil
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return domain.Findings{}, fmt.Errorf("%s: %w: %s", tool, runErr, msg)
		}
		return domain.Findings{}, fmt.Errorf("%s: %w", tool, runErr)
	}

	// Ran clean without machine-readable output: zero findings.
	return domain.Findings{Tool: tool}, nil
}

// parseFindings accepts either {"issues": [...]} or a bare issue array.
func parseFindings(tool string, out []byte) (domain.Findings, bool) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return domain.Findings{}, false
	}

	f := domain.Findings{Tool: tool, Raw: json.RawMessage(out)}

	if bytes.HasPrefix(out, []byte("{")) {
		var obj struct {
			Issues []domain.Issue `json:"issues"`
		}
		if json.Unmarshal(out, &obj) == nil {
			f.Issues = obj.Issues
			return f, true
		}
		return domain.Findings{}, false
	}

	if bytes.HasPrefix(out, []byte("[")) {
		var arr []domain.Issue
		if json.Unmarshal(out, &arr) == nil {
			f.Issues = arr
			return f, true
		}
	}

	return domain.Findings{}, false
}
