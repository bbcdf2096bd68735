// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/s2score/internal/results"
	"github.com/pdiddy/s2score/pkg/types"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect EXPERIMENT SAMPLE",
	Short: "Summarize or export the finished scores of a sample",
	Long: `Inspect loads every score artifact of a sample: per task the origin scores
and the masked scores in configured order. It prints mean, min and max per
variant and the mean shift from origin. Use --json or --yaml to export the
arrays and statistics to a file instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("json", "", "export to this JSON file")
	inspectCmd.Flags().String("yaml", "", "export to this YAML file")
	inspectCmd.MarkFlagsMutuallyExclusive("json", "yaml")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	exp, sample := args[0], args[1]

	tasks, err := results.Load(cfg.DataDir, exp, sample)
	if err != nil {
		return err
	}

	jsonPath, _ := cmd.Flags().GetString("json")
	yamlPath, _ := cmd.Flags().GetString("yaml")
	switch {
	case jsonPath != "":
		if err := results.ExportJSON(jsonPath, results.NewExport(exp, sample, tasks)); err != nil {
			return err
		}
		fmt.Printf("exported %d task(s) to %s\n", len(tasks), jsonPath)
		return nil
	case yamlPath != "":
		if err := results.ExportYAML(yamlPath, results.NewExport(exp, sample, tasks)); err != nil {
			return err
		}
		fmt.Printf("exported %d task(s) to %s\n", len(tasks), yamlPath)
		return nil
	}

	printStats(os.Stdout, tasks)
	return nil
}

func printStats(w io.Writer, tasks []results.TaskScores) {
	for _, t := range tasks {
		fmt.Fprintf(w, "%s  %s  query=%q\n", t.Sample, types.TaskLabel(t.Number), t.Query)
		fmt.Fprintf(w, "  %-16s  %8s  %10s  %10s  %10s  %10s\n", "Variant", "N", "Mean", "Min", "Max", "Shift")
		fmt.Fprintln(w, "  "+strings.Repeat("-", 72))
		for _, st := range t.TaskStats() {
			fmt.Fprintf(w, "  %-16s  %8d  %10.4f  %10.4f  %10.4f  %+10.4f\n",
				st.Variant, st.N, st.Mean, st.Min, st.Max, st.Shift)
		}
		fmt.Fprintln(w)
	}
}
