// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the s2score CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/s2score/internal/logging"
	"github.com/pdiddy/s2score/internal/pipeline"
	"github.com/pdiddy/s2score/internal/ranker"
	"github.com/pdiddy/s2score/internal/score"
	"github.com/pdiddy/s2score/internal/secrets"
	"github.com/pdiddy/s2score/internal/workload"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd scores the experiments named on the command line.
var rootCmd = &cobra.Command{
	Use:   "s2score [experiment...]",
	Short: "Resumable batch scoring of paper collections with the S2 ranker",
	Long: `s2score runs the S2 search ranking model over the sample record files of
one or more experiments under the data directory (default ./pipelining).

For each sample it scores every configured task: the unmasked origin and each
masking variant listed in conf.yml. Scores are written to
<experiment>/scores/<experiment>_<sample>_t<n>_<variant>.npz. Finished
artifacts are skipped, and an interrupted task resumes where it stopped.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScore,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./s2score.yaml or ~/.config/s2score/s2score.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("s2score")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "s2score"))
		}
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("S2SCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The model bridge's own variables take precedence.
	viper.BindEnv("workload", "S2_MODEL_WORKLOAD", "S2SCORE_WORKLOAD")
	viper.BindEnv("model_dir", "S2_MODEL_DATA", "S2SCORE_MODEL_DIR")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger returns the diagnostics logger writing to stderr.
func newLogger(level string) *slog.Logger {
	color := false
	if fi, err := os.Stderr.Stat(); err == nil {
		color = fi.Mode()&os.ModeCharDevice != 0
	}
	return logging.NewCLILogger(os.Stderr, level, color)
}

func runScore(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("Please provide the name of the experiment data folder.")
		return nil
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	creds, err := secrets.Load(secrets.DefaultDir, logger)
	if err != nil {
		return err
	}
	cfg = secrets.Apply(cfg, creds)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers, err := workload.Resolve(ctx, cfg.Workload)
	if err != nil {
		return err
	}
	factory, err := ranker.NewFactory(cfg, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Scoring with %d worker(s) using the %s ranker\n", workers, cfg.Ranker.Backend)

	pool := score.NewPool(workers, factory, score.Options{
		ModelBatch:       cfg.ModelBatch,
		AnomalyThreshold: cfg.AnomalyThreshold,
		Logger:           logger,
	})
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("closing rankers", "error", err)
		}
	}()

	driver := pipeline.NewDriver(pool, pipeline.Options{
		DataDir:   cfg.DataDir,
		ChunkSize: cfg.ChunkSize,
		RunLog:    cfg.RunLog,
		Logger:    logger,
	}, os.Stdout)

	summary, err := driver.Run(ctx, args)
	fmt.Printf("\ncomputed: %d, copied: %d, skipped: %d, failed: %d\n",
		summary.Computed, summary.Copied, summary.Skipped, summary.Failed)
	if summary.Unresolved > 0 {
		fmt.Printf("anomalous scores left unresolved: %d\n", summary.Unresolved)
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted; run again to resume")
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", summary.Failed)
	}
	return nil
}

// compile-time check that the pool drives the pipeline.
var _ pipeline.Scorer = (*score.Pool)(nil)
