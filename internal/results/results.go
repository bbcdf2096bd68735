// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package results reassembles the score artifacts of a sample for
// analysis: per task, the origin scores and the stack of masked scores in
// configured order.
package results

import (
	"fmt"
	"math"

	"github.com/pdiddy/s2score/internal/experiment"
	"github.com/pdiddy/s2score/internal/ledger"
	"github.com/pdiddy/s2score/internal/npz"
	"github.com/pdiddy/s2score/pkg/types"
)

// OriginOnlyKey labels the stack of a task that has no masking variants.
const OriginOnlyKey = "_origin"

// TaskScores holds the artifacts of one task.
type TaskScores struct {
	Sample string
	Number int
	Query  string
	Origin []float64

	// Stack holds one score array per entry of Keys. A task without
	// masking variants has Stack [Origin] and Keys ["_origin"].
	Stack [][]float64
	Keys  []string
}

// Load reads every task artifact of a sample. All artifacts must exist.
func Load(dataDir, exp, sample string) ([]TaskScores, error) {
	cfg, err := experiment.Load(dataDir, exp)
	if err != nil {
		return nil, err
	}
	s, ok := cfg.Sample(sample)
	if !ok {
		return nil, fmt.Errorf("sample %q is not configured in %s", sample, exp)
	}

	l := ledger.New(experiment.ScoresPath(dataDir, exp), nil)
	read := func(task types.Task) ([]float64, error) {
		if !l.Done(task) {
			return nil, fmt.Errorf("no scores for %s", task.Name())
		}
		return npz.ReadFile(l.ArtifactPath(task), npz.DefaultKey)
	}

	var out []TaskScores
	for i, tc := range s.Tasks {
		task := types.Task{Experiment: exp, Sample: sample, Number: i + 1, Variant: types.OriginVariant}
		origin, err := read(task)
		if err != nil {
			return nil, err
		}

		ts := TaskScores{Sample: sample, Number: i + 1, Query: tc.Query, Origin: origin}
		for _, key := range tc.MaskingOptionKeys {
			scores, err := read(task.WithVariant(key))
			if err != nil {
				return nil, err
			}
			if len(scores) != len(origin) {
				return nil, fmt.Errorf("%s has %d scores, origin has %d",
					task.WithVariant(key).Name(), len(scores), len(origin))
			}
			ts.Stack = append(ts.Stack, scores)
			ts.Keys = append(ts.Keys, key)
		}
		if len(ts.Stack) == 0 {
			ts.Stack = [][]float64{origin}
			ts.Keys = []string{OriginOnlyKey}
		}
		out = append(out, ts)
	}
	return out, nil
}

// Stats summarizes one score array.
type Stats struct {
	Variant string  `json:"variant" yaml:"variant"`
	N       int     `json:"n" yaml:"n"`
	Mean    float64 `json:"mean" yaml:"mean"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`

	// Shift is the mean difference from origin.
	Shift float64 `json:"shift" yaml:"shift"`
}

// Summarize computes Stats of scores relative to origin. Empty arrays
// have zero stats.
func Summarize(variant string, scores, origin []float64) Stats {
	st := Stats{Variant: variant, N: len(scores)}
	if len(scores) == 0 {
		return st
	}
	st.Min, st.Max = math.Inf(1), math.Inf(-1)
	var sum, shift float64
	for i, v := range scores {
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
		if i < len(origin) {
			shift += v - origin[i]
		}
	}
	st.Mean = sum / float64(len(scores))
	st.Shift = shift / float64(len(scores))
	return st
}

// TaskStats returns origin stats followed by one entry per stacked
// variant.
func (t TaskScores) TaskStats() []Stats {
	stats := []Stats{Summarize(types.OriginVariant, t.Origin, t.Origin)}
	for i, key := range t.Keys {
		if key == OriginOnlyKey {
			continue
		}
		stats = append(stats, Summarize(key, t.Stack[i], t.Origin))
	}
	return stats
}
