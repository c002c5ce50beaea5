package store_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/davarch/buildgate/internal/domain"
)

// Store persists finished build records as JSON. A path ending in .json
// is a fixed file holding the latest record; anything else is treated as
// a directory that collects one file per build id.
type Store struct {
	path string
}

func New(path string) *Store { return &Store{path: path} }

func (s *Store) Persist(_ context.Context, rec *domain.BuildRecord) error {
	if s.path == "" {
		return errors.New("store path is empty")
	}

	target := s.path
	if !strings.HasSuffix(target, ".json") {
		target = filepath.Join(s.path, rec.ID+".json")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, target)
}
