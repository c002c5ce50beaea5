package checkout_git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davarch/buildgate/internal/domain"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// Manager clones repositories into throwaway workspaces under baseDir.
// Every pipeline run gets its own shallow checkout; stages treat it as
// read-only and Cleanup removes it when the run finishes.
type Manager struct {
	baseDir string
}

func New(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

func (m *Manager) Prepare(ctx context.Context, repository, branch string) (domain.Workspace, error) {
	if strings.TrimSpace(repository) == "" {
		return domain.Workspace{}, errors.New("empty repository reference")
	}

	dir := filepath.Join(m.baseDir, "buildgate-ws-"+uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Workspace{}, err
	}

	opts := &git.CloneOptions{
		URL:          repository,
		Depth:        1,
		SingleBranch: true,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return domain.Workspace{}, fmt.Errorf("clone %s: %w", repository, err)
	}

	ws := domain.Workspace{
		Path:       dir,
		Repository: repository,
		Branch:     branch,
	}

	head, err := repo.Head()
	if err == nil {
		ws.Commit = head.Hash().String()
		if ws.Branch == "" && head.Name().IsBranch() {
			// Unset branch means the remote default; record what we got.
			ws.Branch = head.Name().Short()
		}
	}

	return ws, nil
}

func (m *Manager) Cleanup(ws domain.Workspace) error {
	if ws.Path == "" {
		return nil
	}
	// Refuse to remove anything outside our own workspace root.
	if !strings.HasPrefix(ws.Path, filepath.Clean(m.baseDir)+string(os.PathSeparator)) {
		return fmt.Errorf("workspace %s outside base dir %s", ws.Path, m.baseDir)
	}
	return os.RemoveAll(ws.Path)
}
