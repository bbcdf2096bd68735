// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/s2score/internal/ranker"
	"github.com/pdiddy/s2score/pkg/types"
)

// worker owns one ranker, built on first use and reused afterwards. Only
// the goroutine handling the worker's shard touches it.
type worker struct {
	id       int
	computer *Computer
}

// shard is one contiguous slice of a paper list and its place in the output.
type shard struct {
	index  int
	papers []types.Paper
}

// Pool distributes scoring over a fixed set of workers.
type Pool struct {
	factory ranker.Factory
	opts    Options
	workers []*worker
}

// NewPool returns a Pool of n workers (at least one). No ranker is built
// until a worker receives its first shard.
func NewPool(n int, factory ranker.Factory, opts Options) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{factory: factory, opts: opts.withDefaults()}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, &worker{id: i})
	}
	return p
}

// ShardSizes returns the sizes of the contiguous shards a list of n papers
// is cut into for workers workers: ceil(n/workers) each, last one short.
func ShardSizes(n, workers int) []int {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	per := (n + workers - 1) / workers
	var sizes []int
	for start := 0; start < n; start += per {
		sizes = append(sizes, min(per, n-start))
	}
	return sizes
}

func split(papers []types.Paper, workers int) []shard {
	var shards []shard
	start := 0
	for i, size := range ShardSizes(len(papers), workers) {
		shards = append(shards, shard{index: i, papers: papers[start : start+size]})
		start += size
	}
	return shards
}

// Score scores papers with the pool. With one worker the call runs in the
// caller's goroutine. Otherwise shard i runs on worker i concurrently and
// the results are concatenated by shard index, so the output order always
// matches the input order. The first failing shard cancels the rest.
func (p *Pool) Score(ctx context.Context, query string, papers []types.Paper) (Batch, error) {
	if len(papers) == 0 {
		return Batch{Scores: []float64{}}, nil
	}
	if len(p.workers) == 1 {
		return p.run(ctx, p.workers[0], query, papers)
	}

	shards := split(papers, len(p.workers))
	results := make([]Batch, len(shards))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range shards {
		w := p.workers[s.index]
		g.Go(func() error {
			b, err := p.run(gctx, w, query, s.papers)
			if err != nil {
				return fmt.Errorf("worker %d: %w", w.id, err)
			}
			results[s.index] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	out := Batch{Scores: make([]float64, 0, len(papers))}
	for _, b := range results {
		out.Scores = append(out.Scores, b.Scores...)
		out.Repaired += b.Repaired
		out.Unresolved += b.Unresolved
	}
	p.opts.Logger.Debug("scored shards",
		"papers", len(papers), "shards", len(shards), "per_shard", len(shards[0].papers),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (p *Pool) run(ctx context.Context, w *worker, query string, papers []types.Paper) (Batch, error) {
	if w.computer == nil {
		start := time.Now()
		r, err := p.factory(ctx)
		if err != nil {
			return Batch{}, fmt.Errorf("loading ranker: %w", err)
		}
		w.computer = NewComputer(r, p.opts)
		p.opts.Logger.Info("loaded ranker", "worker", w.id, "elapsed", time.Since(start).Round(10*time.Millisecond))
	}
	return w.computer.Score(ctx, query, papers)
}

// Close releases every ranker the workers built.
func (p *Pool) Close() error {
	var errs []error
	for _, w := range p.workers {
		if w.computer == nil {
			continue
		}
		if err := w.computer.ranker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", w.id, err))
		}
		w.computer = nil
	}
	return errors.Join(errs...)
}
