// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ranker connects to the external paper ranking model. The model
// is a pretrained scorer over (query, paper list) pairs that lives outside
// this process: a Python bridge subprocess, the same bridge in a container,
// or a scoring sidecar reached over HTTP. Every backend speaks the same
// JSON request and response shapes.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/s2score/internal/container"
	"github.com/pdiddy/s2score/pkg/types"
)

// ErrModelFiles is returned when the model directory lacks required files.
// Without them no scoring is possible, so callers treat it as fatal.
var ErrModelFiles = errors.New("ranking model files missing")

// RequiredModelFiles are the artifacts the model loads at construction.
var RequiredModelFiles = []string{
	"titles_abstracts_lm.binary",
	"authors_lm.binary",
	"lightgbm_model.pickle",
	"venues_lm.binary",
}

// containerModelDir is where the model directory is mounted in a container.
const containerModelDir = "/model"

// modelDataEnv tells the bridge where the model files are.
const modelDataEnv = "S2_MODEL_DATA"

// Ranker scores papers against a query. The returned slice has one score
// per paper in input order. Implementations are owned by a single worker
// and need not be safe for concurrent use.
type Ranker interface {
	Score(ctx context.Context, query string, papers []types.Paper) ([]float64, error)
	Close() error
}

// Factory constructs a Ranker. Construction loads the model and is
// expensive, so callers build one per worker and reuse it. A Factory must
// be safe to call from several goroutines.
type Factory func(ctx context.Context) (Ranker, error)

// Func adapts a plain function to the Ranker interface. Close is a no-op.
type Func func(ctx context.Context, query string, papers []types.Paper) ([]float64, error)

// Score calls f.
func (f Func) Score(ctx context.Context, query string, papers []types.Paper) ([]float64, error) {
	return f(ctx, query, papers)
}

// Close does nothing.
func (f Func) Close() error { return nil }

// request is the body sent to every backend.
type request struct {
	Query  string        `json:"query"`
	Papers []types.Paper `json:"papers"`
}

// response is the reply of every backend. The process bridge sends a
// single {"ready": true} line once its model is loaded.
type response struct {
	Ready  bool      `json:"ready,omitempty"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

func (r response) check(want int) ([]float64, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("ranker error: %s", r.Error)
	}
	if len(r.Scores) != want {
		return nil, fmt.Errorf("ranker returned %d scores for %d papers", len(r.Scores), want)
	}
	return r.Scores, nil
}

// CheckModelDir verifies that dir holds every required model file.
func CheckModelDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: model directory %s: %v", ErrModelFiles, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrModelFiles, dir)
	}

	var missing []string
	for _, name := range RequiredModelFiles {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil || fi.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w in %s: %s", ErrModelFiles, dir, strings.Join(missing, ", "))
	}
	return nil
}

// NewFactory returns the Factory for the configured backend. The model
// directory is checked when the first ranker is built, not here, so runs
// that find every artifact already present never need the model.
func NewFactory(cfg types.PipelineConfig, logger *slog.Logger) (Factory, error) {
	rc := cfg.Ranker
	switch rc.Backend {
	case types.RankerProcess, "":
		args := strings.Fields(rc.Command)
		if len(args) == 0 {
			return nil, fmt.Errorf("ranker command is empty")
		}
		return func(ctx context.Context) (Ranker, error) {
			modelDir, err := filepath.Abs(cfg.ModelDir)
			if err != nil {
				return nil, fmt.Errorf("resolving model directory: %w", err)
			}
			if err := CheckModelDir(modelDir); err != nil {
				return nil, err
			}
			cmd := exec.Command(args[0], args[1:]...)
			cmd.Env = append(os.Environ(), modelDataEnv+"="+modelDir)
			p, err := StartProcess(ctx, cmd, rc.Timeout, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil

	case types.RankerContainer:
		if rc.Image == "" {
			return nil, fmt.Errorf("ranker image is required for the container backend")
		}
		return func(ctx context.Context) (Ranker, error) {
			modelDir, err := filepath.Abs(cfg.ModelDir)
			if err != nil {
				return nil, fmt.Errorf("resolving model directory: %w", err)
			}
			if err := CheckModelDir(modelDir); err != nil {
				return nil, err
			}
			rt, err := container.DetectRuntime()
			if err != nil {
				return nil, err
			}
			if err := rt.ImageExists(rc.Image); err != nil {
				return nil, err
			}
			cmd := rt.Command(rc.Image, container.RunOptions{
				Mounts: []container.Mount{{Source: modelDir, Target: containerModelDir, ReadOnly: true}},
				Env:    map[string]string{modelDataEnv: containerModelDir},
			})
			p, err := StartProcess(ctx, cmd, rc.Timeout, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil

	case types.RankerHTTP:
		if rc.URL == "" {
			return nil, fmt.Errorf("ranker url is required for the http backend")
		}
		return func(ctx context.Context) (Ranker, error) {
			return NewHTTP(rc), nil
		}, nil

	default:
		return nil, fmt.Errorf("unsupported ranker backend %q: use process, container, or http", rc.Backend)
	}
}
