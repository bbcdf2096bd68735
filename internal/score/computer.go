// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score turns paper lists into ranking scores. A Computer wraps one
// ranker: it bounds the size of each model call and repairs implausible
// scores. A Pool fans a list out over several workers, each owning its own
// ranker, and gathers the results back in input order.
package score

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/s2score/internal/ranker"
	"github.com/pdiddy/s2score/pkg/types"
)

// Batch is the outcome of scoring one paper list.
type Batch struct {
	// Scores holds one score per input paper, in input order.
	Scores []float64

	// Repaired counts anomalous scores replaced by a single-paper rescore.
	Repaired int

	// Unresolved counts scores still anomalous after the repair pass.
	Unresolved int
}

// Options tunes a Computer.
type Options struct {
	// ModelBatch caps the papers per ranker call (default 1000).
	ModelBatch int

	// AnomalyThreshold marks scores above it as implausible (default 100).
	AnomalyThreshold float64

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ModelBatch <= 0 {
		o.ModelBatch = types.DefaultModelBatch
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = types.DefaultAnomalyThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Computer scores papers with a single ranker.
type Computer struct {
	ranker ranker.Ranker
	opts   Options
}

// NewComputer returns a Computer over r.
func NewComputer(r ranker.Ranker, opts Options) *Computer {
	return &Computer{ranker: r, opts: opts.withDefaults()}
}

// Score returns one score per paper, in order. Papers are sent to the
// ranker in slices of at most ModelBatch. Any score above the anomaly
// threshold is recomputed by scoring that paper alone; scores that remain
// anomalous are reported in Batch.Unresolved, not as an error.
func (c *Computer) Score(ctx context.Context, query string, papers []types.Paper) (Batch, error) {
	scores := make([]float64, 0, len(papers))
	for start := 0; start < len(papers); start += c.opts.ModelBatch {
		end := min(start+c.opts.ModelBatch, len(papers))
		part, err := c.call(ctx, query, papers[start:end])
		if err != nil {
			return Batch{}, err
		}
		scores = append(scores, part...)
	}

	anomalies := c.anomalies(scores)
	if len(anomalies) == 0 {
		return Batch{Scores: scores}, nil
	}

	// Scoring a paper on its own removes any effect of the papers it was
	// batched with.
	fixed := make([]float64, len(anomalies))
	for i, idx := range anomalies {
		single, err := c.call(ctx, query, papers[idx:idx+1])
		if err != nil {
			return Batch{}, fmt.Errorf("rescoring paper %d: %w", idx, err)
		}
		fixed[i] = single[0]
	}
	for i, idx := range anomalies {
		scores[idx] = fixed[i]
	}

	unresolved := len(c.anomalies(scores))
	if unresolved > 0 {
		c.opts.Logger.Warn("anomalous scores persist after repair",
			"query", query, "repaired", len(anomalies)-unresolved, "unresolved", unresolved)
	}
	return Batch{Scores: scores, Repaired: len(anomalies) - unresolved, Unresolved: unresolved}, nil
}

func (c *Computer) call(ctx context.Context, query string, papers []types.Paper) ([]float64, error) {
	scores, err := c.ranker.Score(ctx, query, papers)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(papers) {
		return nil, fmt.Errorf("ranker returned %d scores for %d papers", len(scores), len(papers))
	}
	return scores, nil
}

// anomalies returns the indexes of scores above the threshold.
func (c *Computer) anomalies(scores []float64) []int {
	var idx []int
	for i, s := range scores {
		if s > c.opts.AnomalyThreshold {
			idx = append(idx, i)
		}
	}
	return idx
}
