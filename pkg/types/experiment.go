// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the s2score pipeline:
// paper records, run configuration, experiment descriptors and task
// identities.
package types

import "fmt"

// OriginVariant is the unmasked identity variant every task scores first.
const OriginVariant = "origin"

// TaskConfig is one task entry of a sample in conf.yml.
type TaskConfig struct {
	// Query is the search query the papers are ranked against.
	Query string `json:"query" yaml:"query"`

	// MaskingOptionKeys lists the masking variants scored after origin.
	MaskingOptionKeys []string `json:"masking_option_keys" yaml:"masking_option_keys"`

	// UsingOriginFrom names another task of the same sample (e.g. "t1")
	// whose origin scores are copied instead of recomputed.
	UsingOriginFrom string `json:"using_origin_from,omitempty" yaml:"using_origin_from,omitempty"`
}

// Sample is a named record file together with its ordered tasks.
type Sample struct {
	Name  string
	Tasks []TaskConfig
}

// ExperimentConfig is the decoded conf.yml of one experiment directory.
type ExperimentConfig struct {
	// Name is the experiment directory name.
	Name string `json:"name" yaml:"-"`

	// Description is free text shown at the start of a run.
	Description string `json:"description" yaml:"description"`

	// Samples keeps the file order of the samples mapping.
	Samples []Sample `json:"samples" yaml:"-"`

	// SampleFromOtherExp maps a sample name to path components, relative
	// to the data directory, of a record file owned by another experiment.
	SampleFromOtherExp map[string][]string `json:"sample_from_other_exp,omitempty" yaml:"sample_from_other_exp,omitempty"`
}

// Sample returns the named sample and whether it is configured.
func (c *ExperimentConfig) Sample(name string) (Sample, bool) {
	for _, s := range c.Samples {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

// Task identifies one score artifact: a variant of a numbered task of a
// sample within an experiment.
type Task struct {
	Experiment string
	Sample     string
	Number     int
	Variant    string
}

// TaskLabel returns the short task label used in conf.yml and file names ("t3").
func TaskLabel(number int) string {
	return fmt.Sprintf("t%d", number)
}

// Name returns the file stem {experiment}_{sample}_t{n}_{variant}.
func (t Task) Name() string {
	return fmt.Sprintf("%s_%s_%s_%s", t.Experiment, t.Sample, TaskLabel(t.Number), t.Variant)
}

// WithVariant returns a copy of t for another variant.
func (t Task) WithVariant(variant string) Task {
	t.Variant = variant
	return t
}

func (t Task) String() string { return t.Name() }
