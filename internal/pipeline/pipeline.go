// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives batch scoring of experiments. For every
// configured task variant it streams the sample's records in chunks,
// scores them, appends the scores to the task's ledger and finalizes the
// artifact. Finished artifacts are never recomputed, and an interrupted
// task resumes from its ledger on the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/s2score/internal/experiment"
	"github.com/pdiddy/s2score/internal/ledger"
	"github.com/pdiddy/s2score/internal/masking"
	"github.com/pdiddy/s2score/internal/runlog"
	"github.com/pdiddy/s2score/internal/score"
	"github.com/pdiddy/s2score/pkg/types"
)

// Scorer scores a list of papers against a query, preserving order.
// *score.Pool implements it.
type Scorer interface {
	Score(ctx context.Context, query string, papers []types.Paper) (score.Batch, error)
}

// Options configures a Driver.
type Options struct {
	// DataDir holds one directory per experiment.
	DataDir string

	// ChunkSize is the number of records read and appended per step.
	ChunkSize int

	// RunLog records every task execution in scores/runs.db.
	RunLog bool

	Logger *slog.Logger
}

// Summary holds counts from a driver run.
type Summary struct {
	// Task variants by outcome.
	Computed int
	Copied   int
	Skipped  int
	Failed   int

	// Experiments or samples that could not be run due to configuration.
	MissingExperiments int
	SkippedSamples     int

	Records    int
	Repaired   int
	Unresolved int
}

// Total returns the number of task variants visited.
func (s Summary) Total() int {
	return s.Computed + s.Copied + s.Skipped + s.Failed
}

// HasFailures reports whether any task or configuration failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.MissingExperiments > 0 || s.SkippedSamples > 0
}

// Driver runs experiments one task variant at a time. It is the only
// writer of the ledgers it touches.
type Driver struct {
	scorer Scorer
	opts   Options
	w      io.Writer
}

// NewDriver returns a Driver that scores with scorer and prints progress
// to w.
func NewDriver(scorer Scorer, opts Options, w io.Writer) *Driver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = types.DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{scorer: scorer, opts: opts, w: w}
}

// expRun is the state shared by the tasks of one experiment.
type expRun struct {
	cfg    *types.ExperimentConfig
	ledger *ledger.Ledger
	runs   *runlog.Store
}

// Run processes the experiments in order. Configuration problems are
// reported and skipped. Scoring failures, storage failures and
// cancellation stop the run and are returned with the summary so far.
func (d *Driver) Run(ctx context.Context, experiments []string) (Summary, error) {
	var sum Summary
	for _, exp := range experiments {
		if err := d.runExperiment(ctx, exp, &sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (d *Driver) runExperiment(ctx context.Context, exp string, sum *Summary) error {
	dir := experiment.Dir(d.opts.DataDir, exp)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		fmt.Fprintf(d.w, "\nNo such dir: %s\n", dir)
		sum.MissingExperiments++
		return nil
	}

	cfg, err := experiment.Load(d.opts.DataDir, exp)
	if err != nil {
		fmt.Fprintf(d.w, "\nSkipping %s: %v\n", exp, err)
		sum.MissingExperiments++
		return nil
	}

	fmt.Fprintf(d.w, "\nRunning s2search ranker on %s experiment data\n", exp)
	fmt.Fprintf(d.w, "Description of this experiment: %s\n", cfg.Description)

	scoresDir := experiment.ScoresPath(d.opts.DataDir, exp)
	if err := os.MkdirAll(scoresDir, 0o755); err != nil {
		return fmt.Errorf("creating scores directory: %w", err)
	}
	if _, err := CollectGarbage(scoresDir, experiment.TaskNames(cfg), d.opts.Logger); err != nil {
		return err
	}

	run := &expRun{cfg: cfg, ledger: ledger.New(scoresDir, d.opts.Logger)}
	if d.opts.RunLog {
		store, err := runlog.Open(scoresDir)
		if err != nil {
			d.opts.Logger.Warn("run log unavailable", "experiment", exp, "error", err)
		} else {
			run.runs = store
			defer store.Close()
		}
	}

	for _, s := range cfg.Samples {
		dataFile, fallback, err := experiment.DataFile(d.opts.DataDir, cfg, s.Name)
		if err != nil {
			fmt.Fprintf(d.w, "Skipping %s %s: %v\n", exp, s.Name, err)
			sum.SkippedSamples++
			continue
		}
		if fallback {
			fmt.Fprintf(d.w, "Using %s for %s %s\n", dataFile, exp, s.Name)
		}

		for i, tc := range s.Tasks {
			for _, v := range experiment.Variants(tc) {
				task := types.Task{Experiment: exp, Sample: s.Name, Number: i + 1, Variant: v}
				if err := d.runTask(ctx, run, task, tc, dataFile, sum); err != nil {
					return err
				}
			}
		}
		fmt.Fprintf(d.w, "Done with %s %s\n", exp, s.Name)
	}
	fmt.Fprintf(d.w, "Done with %s\n", exp)
	return nil
}

func (d *Driver) runTask(ctx context.Context, run *expRun, task types.Task, tc types.TaskConfig, dataFile string, sum *Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := task.Name() + ledger.ArtifactExt
	if run.ledger.Done(task) {
		fmt.Fprintf(d.w, "Scores of %s exist, should pass\n", name)
		sum.Skipped++
		return nil
	}

	var (
		rec runlog.Run
		err error
	)
	if copied, cerr := d.copyOrigin(run, task, tc); cerr != nil {
		return cerr
	} else if copied != nil {
		rec = *copied
		sum.Copied++
	} else {
		rec, err = d.compute(ctx, run, task, tc.Query, dataFile)
		if errors.Is(err, ErrBadRecord) {
			fmt.Fprintf(d.w, "failed  %s: %v\n", task.Name(), err)
			sum.Failed++
			return nil
		}
		if err != nil {
			return fmt.Errorf("scoring %s: %w", task.Name(), err)
		}
		sum.Computed++
		sum.Records += rec.Records
		sum.Repaired += rec.Repaired
		sum.Unresolved += rec.Unresolved
	}

	if run.runs != nil {
		if _, err := run.runs.Record(ctx, rec); err != nil {
			d.opts.Logger.Warn("recording run failed", "task", task.Name(), "error", err)
		}
	}
	return nil
}

// copyOrigin copies the origin artifact of the task named by
// using_origin_from when it exists. It returns nil when nothing was
// copied.
func (d *Driver) copyOrigin(run *expRun, task types.Task, tc types.TaskConfig) (*runlog.Run, error) {
	if task.Variant != types.OriginVariant || tc.UsingOriginFrom == "" {
		return nil, nil
	}
	n, err := experiment.ParseTaskLabel(tc.UsingOriginFrom)
	if err != nil {
		return nil, nil
	}
	src := task
	src.Number = n
	if !run.ledger.Done(src) {
		d.opts.Logger.Info("origin to copy not found, computing instead",
			"task", task.Name(), "from", src.Name())
		return nil, nil
	}

	start := time.Now()
	dst := run.ledger.ArtifactPath(task)
	fmt.Fprintf(d.w, "Using origin result of %s for %s\n", tc.UsingOriginFrom, filepath.Base(dst))
	if err := copyFile(run.ledger.ArtifactPath(src), dst); err != nil {
		return nil, fmt.Errorf("copying origin for %s: %w", task.Name(), err)
	}
	// A ledger from an earlier interrupted computation is now stale.
	if err := os.Remove(run.ledger.LedgerPath(task)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale ledger: %w", err)
	}
	return &runlog.Run{
		Task:     task,
		Outcome:  runlog.OutcomeCopied,
		Started:  start,
		Finished: time.Now(),
		Source:   filepath.Base(run.ledger.ArtifactPath(src)),
	}, nil
}

// compute scores the unscored records of a task and finalizes its
// artifact.
func (d *Driver) compute(ctx context.Context, run *expRun, task types.Task, query, dataFile string) (runlog.Run, error) {
	rec := runlog.Run{Task: task, Outcome: runlog.OutcomeComputed, Started: time.Now()}

	variant, err := masking.Parse(task.Variant)
	if err != nil {
		return rec, err
	}

	progress, err := run.ledger.Progress(task)
	if err != nil {
		return rec, err
	}
	rec.ResumedFrom = progress
	if progress > 0 {
		fmt.Fprintf(d.w, "continue computing: %s\n", run.ledger.ArtifactPath(task))
	} else {
		fmt.Fprintf(d.w, "start computing: %s\n", run.ledger.ArtifactPath(task))
	}

	f, err := os.Open(dataFile)
	if err != nil {
		return rec, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	sc := NewScanner(f)
	skipped, err := sc.Skip(progress)
	if err != nil {
		return rec, err
	}
	if skipped < progress {
		d.opts.Logger.Warn("ledger is longer than the data file",
			"task", task.Name(), "ledger", progress, "records", skipped)
	}

	for {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		papers, err := sc.Next(d.opts.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rec, err
		}

		b, err := d.scorer.Score(ctx, query, variant.ApplyAll(papers))
		if err != nil {
			return rec, err
		}
		if err := run.ledger.Append(task, b.Scores); err != nil {
			return rec, err
		}
		rec.Records += len(papers)
		rec.Repaired += b.Repaired
		rec.Unresolved += b.Unresolved
	}

	if _, err := run.ledger.Finalize(task); err != nil {
		return rec, err
	}
	rec.Finished = time.Now()
	fmt.Fprintf(d.w, "Score computing for %s is done within %.2f sec.\n",
		task.Name(), rec.Finished.Sub(rec.Started).Seconds())
	return rec, nil
}

// copyFile copies src to dst through a temporary file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".npz-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
