// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package results

import (
	"encoding/json"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/s2score/pkg/types"
)

// ExportTask holds one task's stats and arrays for export.
type ExportTask struct {
	Task     string               `json:"task" yaml:"task"`
	Query    string               `json:"query" yaml:"query"`
	Stats    []Stats              `json:"stats" yaml:"stats"`
	Origin   []float64            `json:"origin" yaml:"origin,flow"`
	Variants map[string][]float64 `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// Export is the document written by ExportJSON and ExportYAML.
type Export struct {
	Experiment string       `json:"experiment" yaml:"experiment"`
	Sample     string       `json:"sample" yaml:"sample"`
	Tasks      []ExportTask `json:"tasks" yaml:"tasks"`
}

// NewExport builds the export document for a loaded sample.
func NewExport(exp, sample string, tasks []TaskScores) Export {
	e := Export{Experiment: exp, Sample: sample}
	for _, t := range tasks {
		et := ExportTask{
			Task:   types.TaskLabel(t.Number),
			Query:  t.Query,
			Stats:  t.TaskStats(),
			Origin: t.Origin,
		}
		for i, key := range t.Keys {
			if key == OriginOnlyKey {
				continue
			}
			if et.Variants == nil {
				et.Variants = make(map[string][]float64)
			}
			et.Variants[key] = t.Stack[i]
		}
		e.Tasks = append(e.Tasks, et)
	}
	return e
}

// ExportYAML writes e to path as YAML.
func ExportYAML(path string, e Export) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes e to path as indented JSON.
func ExportJSON(path string, e Export) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
