// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package experiment loads experiment descriptors and resolves the files an
// experiment reads and writes. An experiment is a directory under the data
// directory holding conf.yml, the sample record files and a scores/
// directory for artifacts.
package experiment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/s2score/internal/masking"
	"github.com/pdiddy/s2score/pkg/types"
)

const (
	// ConfFile is the descriptor file name inside an experiment directory.
	ConfFile = "conf.yml"

	// ScoresDir holds an experiment's ledgers and artifacts.
	ScoresDir = "scores"

	// DataExt is the extension of a sample record file.
	DataExt = ".data"
)

var (
	// ErrConfig is returned for descriptors that cannot be run.
	ErrConfig = errors.New("invalid experiment configuration")

	// ErrNoDataFile is returned when neither the sample's own record file
	// nor its configured fallback exists.
	ErrNoDataFile = errors.New("no data file for sample")
)

// Dir returns the experiment directory.
func Dir(dataDir, exp string) string {
	return filepath.Join(dataDir, exp)
}

// ScoresPath returns the experiment's scores directory.
func ScoresPath(dataDir, exp string) string {
	return filepath.Join(dataDir, exp, ScoresDir)
}

// rawConf mirrors conf.yml. Samples stays a node so the mapping order of
// the file is kept.
type rawConf struct {
	Description        string              `yaml:"description"`
	Samples            yaml.Node           `yaml:"samples"`
	SampleFromOtherExp map[string][]string `yaml:"sample_from_other_exp"`
}

// Load reads and validates {dataDir}/{exp}/conf.yml.
func Load(dataDir, exp string) (*types.ExperimentConfig, error) {
	data, err := os.ReadFile(filepath.Join(Dir(dataDir, exp), ConfFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ConfFile, err)
	}
	return Parse(exp, data)
}

// Parse decodes a conf.yml document for experiment exp.
func Parse(exp string, data []byte) (*types.ExperimentConfig, error) {
	var raw rawConf
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfFile, err)
	}

	cfg := &types.ExperimentConfig{
		Name:               exp,
		Description:        raw.Description,
		SampleFromOtherExp: raw.SampleFromOtherExp,
	}

	if raw.Samples.Kind != 0 && raw.Samples.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: samples must be a mapping (line %d)", ErrConfig, raw.Samples.Line)
	}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(raw.Samples.Content); i += 2 {
		key, val := raw.Samples.Content[i], raw.Samples.Content[i+1]
		name := key.Value
		if seen[name] {
			return nil, fmt.Errorf("%w: sample %q listed twice", ErrConfig, name)
		}
		seen[name] = true

		var tasks []types.TaskConfig
		if err := val.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("%w: sample %q: %v", ErrConfig, name, err)
		}
		cfg.Samples = append(cfg.Samples, types.Sample{Name: name, Tasks: tasks})
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks masking keys and origin references of every task.
func Validate(cfg *types.ExperimentConfig) error {
	for _, s := range cfg.Samples {
		if s.Name == "" {
			return fmt.Errorf("%w: empty sample name", ErrConfig)
		}
		for i, t := range s.Tasks {
			label := types.TaskLabel(i + 1)
			if err := masking.Validate(t.MaskingOptionKeys); err != nil {
				return fmt.Errorf("%w: %s %s: %w", ErrConfig, s.Name, label, err)
			}
			if t.UsingOriginFrom == "" {
				continue
			}
			n, err := ParseTaskLabel(t.UsingOriginFrom)
			if err != nil || n > len(s.Tasks) || n == i+1 {
				return fmt.Errorf("%w: %s %s: using_origin_from %q does not name another task",
					ErrConfig, s.Name, label, t.UsingOriginFrom)
			}
		}
	}
	return nil
}

// ParseTaskLabel parses a task label such as "t3".
func ParseTaskLabel(label string) (int, error) {
	rest, ok := strings.CutPrefix(label, "t")
	if !ok {
		return 0, fmt.Errorf("task label %q lacks the t prefix", label)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("task label %q has no positive number", label)
	}
	return n, nil
}

// Variants returns the variant keys of a task in processing order: origin
// first, then the configured masking keys.
func Variants(t types.TaskConfig) []string {
	return append([]string{types.OriginVariant}, t.MaskingOptionKeys...)
}

// Tasks expands cfg into every task variant in processing order.
func Tasks(cfg *types.ExperimentConfig) []types.Task {
	var out []types.Task
	for _, s := range cfg.Samples {
		for i, tc := range s.Tasks {
			for _, v := range Variants(tc) {
				out = append(out, types.Task{Experiment: cfg.Name, Sample: s.Name, Number: i + 1, Variant: v})
			}
		}
	}
	return out
}

// TaskNames returns the set of configured task names.
func TaskNames(cfg *types.ExperimentConfig) map[string]bool {
	names := make(map[string]bool)
	for _, t := range Tasks(cfg) {
		names[t.Name()] = true
	}
	return names
}

// DataFile returns the record file of a sample: {dataDir}/{exp}/{sample}.data,
// or when that is missing the fallback path from sample_from_other_exp,
// joined under dataDir. The second result reports whether the fallback was
// used.
func DataFile(dataDir string, cfg *types.ExperimentConfig, sample string) (string, bool, error) {
	own := filepath.Join(Dir(dataDir, cfg.Name), sample+DataExt)
	if fileExists(own) {
		return own, false, nil
	}

	parts, ok := cfg.SampleFromOtherExp[sample]
	if !ok || len(parts) == 0 {
		return "", false, fmt.Errorf("%w: %s (no %s and no sample_from_other_exp entry)", ErrNoDataFile, sample, own)
	}
	other := filepath.Join(append([]string{dataDir}, parts...)...)
	if !fileExists(other) {
		return "", false, fmt.Errorf("%w: %s (neither %s nor %s exists)", ErrNoDataFile, sample, own, other)
	}
	return other, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
