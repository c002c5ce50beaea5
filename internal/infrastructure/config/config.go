package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

type Stage struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type,omitempty"`
	Command  []string      `yaml:"command"`
	Required bool          `yaml:"required"`
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

type Config struct {
	Judge struct {
		BaseURL string        `yaml:"base_url"`
		Model   string        `yaml:"model"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"judge"`

	Pipeline struct {
		Repository string  `yaml:"repository"`
		Branch     string  `yaml:"branch"`
		Parallel   bool    `yaml:"parallel"`
		Stages     []Stage `yaml:"stages"`
	} `yaml:"pipeline"`

	Risk struct {
		Threshold int    `yaml:"threshold"`
		Policy    string `yaml:"policy"`
	} `yaml:"risk"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Watch struct {
		Interval  time.Duration `yaml:"interval"`
		PauseFile string        `yaml:"pause_file"`
	} `yaml:"watch"`
}

func Load(path string) (Config, error) {
	var c Config

	c.Judge.Model = "gpt-4o-mini"
	c.Judge.Timeout = 30 * time.Second
	c.Risk.Threshold = 3
	c.Risk.Policy = "max"
	c.Store.Path = expandHome("~/.cache/buildgate")
	c.Watch.Interval = 5 * time.Minute

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}

	if v := os.Getenv("BUILDGATE_JUDGE_BASE_URL"); v != "" {
		c.Judge.BaseURL = v
	}

	if v := os.Getenv("BUILDGATE_JUDGE_MODEL"); v != "" {
		c.Judge.Model = v
	}

	if v := os.Getenv("BUILDGATE_JUDGE_API_KEY"); v != "" {
		c.Judge.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Judge.APIKey == "" {
		c.Judge.APIKey = v
	}

	if v := os.Getenv("BUILDGATE_JUDGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Judge.Timeout = d
		}
	}

	if v := os.Getenv("BUILDGATE_REPO"); v != "" {
		c.Pipeline.Repository = v
	}

	if v := os.Getenv("BUILDGATE_BRANCH"); v != "" {
		c.Pipeline.Branch = v
	}

	if v := os.Getenv("BUILDGATE_RISK_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Risk.Threshold = n
		}
	}

	if v := os.Getenv("BUILDGATE_RISK_POLICY"); v != "" {
		c.Risk.Policy = v
	}

	if v := os.Getenv("BUILDGATE_STORE_PATH"); v != "" {
		c.Store.Path = expandHome(v)
	}

	if v := os.Getenv("BUILDGATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watch.Interval = d
		}
	}

	c.Store.Path = expandHome(c.Store.Path)

	if c.Judge.Timeout <= 0 {
		c.Judge.Timeout = 30 * time.Second
	}

	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 5 * time.Minute
	}

	if c.Watch.PauseFile == "" {
		c.Watch.PauseFile = expandHome("~/.cache/buildgate_paused")
	}

	if c.Risk.Threshold < 0 || c.Risk.Threshold > 5 {
		return c, fmt.Errorf("risk threshold %d outside 0..5", c.Risk.Threshold)
	}

	switch c.Risk.Policy {
	case "max", "sum":
	default:
		return c, fmt.Errorf("unknown risk policy %q (want max or sum)", c.Risk.Policy)
	}

	if len(c.Pipeline.Stages) == 0 {
		return c, errors.New("no stages configured")
	}

	seen := make(map[string]struct{}, len(c.Pipeline.Stages))
	for i, s := range c.Pipeline.Stages {
		if s.Name == "" {
			return c, fmt.Errorf("stage %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return c, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Enabled && len(s.Command) == 0 {
			return c, fmt.Errorf("enabled stage %q has no command", s.Name)
		}
		if s.Type == "" {
			c.Pipeline.Stages[i].Type = s.Name
		}
	}

	return c, nil
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
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

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
