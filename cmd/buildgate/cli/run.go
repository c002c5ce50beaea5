package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davarch/buildgate/internal/application"
	"github.com/davarch/buildgate/internal/domain"
	"github.com/davarch/buildgate/internal/infrastructure/checkout_git"
	"github.com/davarch/buildgate/internal/infrastructure/config"
	"github.com/davarch/buildgate/internal/infrastructure/exec_stage"
	"github.com/davarch/buildgate/internal/infrastructure/judge_llm"
	"github.com/davarch/buildgate/internal/infrastructure/logging"
	"github.com/davarch/buildgate/internal/infrastructure/store_fs"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runRepo   string
	runBranch string
	runOut    string
	runWatch  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline against a repository",
	Long: `Run every enabled stage against a fresh checkout, ask the AI judge to
assess each stage's findings, and apply the deployment gate.

Exits non-zero if and only if the gate decision is block or a required
stage failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		repo := runRepo
		if repo == "" {
			repo = cfg.Pipeline.Repository
		}
		if repo == "" {
			log.Fatal("repository is required (--repo or pipeline.repository)")
		}
		branch := runBranch
		if branch == "" {
			branch = cfg.Pipeline.Branch
		}

		pl, specs := buildPipeline(log, cfg, runOut)
		if len(specs) == 0 {
			log.Fatal("no enabled stages")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info("start",
			zap.String("version", version),
			zap.String("repository", repo),
			zap.String("branch", branch),
			zap.Int("stages", len(specs)),
			zap.Int("risk_threshold", cfg.Risk.Threshold),
			zap.String("risk_policy", cfg.Risk.Policy),
		)

		if runWatch {
			runFn := func(ctx context.Context) error {
				rec, err := pl.Run(ctx, repo, branch, specs)
				if err != nil {
					return err
				}
				reportRecord(log, rec)
				return nil
			}
			sched := application.NewScheduler(log, runFn, cfg.Watch.Interval, cfg.Watch.PauseFile)
			watchAndReload(cfgPath, log, sched, repo, branch)
			sched.Run(ctx)
			return
		}

		rec, err := pl.Run(ctx, repo, branch, specs)
		if err != nil {
			log.Error("pipeline aborted", zap.Error(err))
			_ = log.Sync()
			os.Exit(1)
		}
		reportRecord(log, rec)

		if rec.Blocked() || !rec.Success {
			_ = log.Sync()
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "repository to check out (overrides config)")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "branch to check out (default: repository default branch)")
	runCmd.Flags().StringVar(&runOut, "out", "", "record destination: file, directory, or - for stdout (overrides config)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "rerun the pipeline on an interval")

	rootCmd.AddCommand(runCmd)
}

func buildPipeline(log *zap.Logger, cfg config.Config, out string) (*application.Pipeline, []application.StageSpec) {
	judge := buildJudge(log, cfg)

	var specs []application.StageSpec
	for _, s := range cfg.Pipeline.Stages {
		if !s.Enabled {
			log.Debug("stage disabled", zap.String("stage", s.Name))
			continue
		}
		specs = append(specs, application.StageSpec{
			Name:     s.Name,
			Type:     domain.StageType(s.Type),
			Required: s.Required,
			Timeout:  s.Timeout,
			Executor: exec_stage.New(s.Command, s.Timeout),
		})
	}

	var store domain.RecordStore
	switch {
	case out == "-":
		store = stdoutStore{}
	case out != "":
		store = store_fs.New(out)
	default:
		store = store_fs.New(cfg.Store.Path)
	}

	pl := application.NewPipeline(log, checkout_git.New(os.TempDir()), judge, store, application.Options{
		RiskThreshold: cfg.Risk.Threshold,
		RiskPolicy:    application.RiskPolicy(cfg.Risk.Policy),
		Parallel:      cfg.Pipeline.Parallel,
	})
	return pl, specs
}

func buildJudge(log *zap.Logger, cfg config.Config) domain.Judge {
	j, err := judge_llm.New(judge_llm.Config{
		BaseURL: cfg.Judge.BaseURL,
		Model:   cfg.Judge.Model,
		APIKey:  cfg.Judge.APIKey,
		Timeout: cfg.Judge.Timeout,
	})
	if err != nil {
		log.Warn("ai judge unavailable, stages will run unassessed", zap.Error(err))
		return judge_llm.Disabled(err.Error())
	}
	return j
}

func reportRecord(log *zap.Logger, rec *domain.BuildRecord) {
	fields := []zap.Field{
		zap.String("build", rec.ID),
		zap.Bool("success", rec.Success),
	}
	if rec.Risk != nil {
		fields = append(fields,
			zap.Int("risk", rec.Risk.Level),
			zap.String("gate", string(rec.Risk.Decision)),
		)
	}
	log.Info("build record", fields...)
}

// stdoutStore dumps the record to stdout for piping into other tools.
type stdoutStore struct{}

func (stdoutStore) Persist(_ context.Context, rec *domain.BuildRecord) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// watchAndReload swaps the scheduler's run function when the config file
// changes, so watch mode picks up stage and threshold edits without a
// restart. Events are debounced: editors fire several per save.
func watchAndReload(cfgPath string, log *zap.Logger, sched *application.Scheduler, repo, branch string) {
	if cfgPath == "" {
		return
	}

	dir := filepath.Dir(cfgPath)
	base := filepath.Base(cfgPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		return
	}

	go func() {
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		fire := func() {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				log.Warn("config reload failed", zap.Error(err))
				return
			}
			pl, specs := buildPipeline(log, cfg, runOut)
			if len(specs) == 0 {
				log.Warn("config reload: no enabled stages")
				return
			}
			sched.UpdateRun(func(ctx context.Context) error {
				rec, err := pl.Run(ctx, repo, branch, specs)
				if err != nil {
					return err
				}
				reportRecord(log, rec)
				return nil
			})
		}

		startTimer := func() {
			if timer == nil {
				timer = time.AfterFunc(300*time.Millisecond, fire)
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(300 * time.Millisecond)
		}

		if err := w.Add(dir); err != nil {
			log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
			return
		}

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Base(ev.Name) != base {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					startTimer()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()
}
