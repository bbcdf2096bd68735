// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/s2score/internal/experiment"
	"github.com/pdiddy/s2score/internal/runlog"
)

var historyCmd = &cobra.Command{
	Use:   "history EXPERIMENT",
	Short: "List recorded task runs of an experiment",
	Long: `History prints the run log kept in <experiment>/scores/runs.db: one row per
task execution with its outcome, records scored, resume offset and anomaly
counts.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Bool("json", false, "output runs as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	scoresDir := experiment.ScoresPath(cfg.DataDir, args[0])
	if _, err := os.Stat(filepath.Join(scoresDir, runlog.DBFile)); err != nil {
		fmt.Println("No runs recorded.")
		return nil
	}

	store, err := runlog.Open(scoresDir)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatHistory(os.Stdout, runs, jsonOutput)
}

func formatHistory(w io.Writer, runs []runlog.Run, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-36s  %-8s  %8s  %8s  %8s  %10s  %10s\n",
		"Started", "Task", "Outcome", "Records", "Resumed", "Repaired", "Unresolved", "Elapsed")
	fmt.Fprintln(w, strings.Repeat("-", 128))
	for _, r := range runs {
		fmt.Fprintf(w, "%-20s  %-36s  %-8s  %8d  %8d  %8d  %10d  %10s\n",
			r.Started.Local().Format("2006-01-02 15:04:05"), r.Name, r.Outcome,
			r.Records, r.ResumedFrom, r.Repaired, r.Unresolved, r.Elapsed.Round(time.Millisecond))
	}
	return nil
}
