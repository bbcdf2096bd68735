// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Defaults applied by PipelineConfig.WithDefaults.
const (
	DefaultDataDir          = "pipelining"
	DefaultModelDir         = "s2search_data"
	DefaultChunkSize        = 1000
	DefaultModelBatch       = 1000
	DefaultAnomalyThreshold = 100.0
	DefaultRankerCommand    = "python3 -m s2search_bridge"
	DefaultRankerTimeout    = 10 * time.Minute
)

// RankerBackend selects how the ranking model is reached.
type RankerBackend string

const (
	RankerProcess   RankerBackend = "process"
	RankerContainer RankerBackend = "container"
	RankerHTTP      RankerBackend = "http"
)

// RankerConfig holds settings for reaching the external ranking model.
type RankerConfig struct {
	// Backend selects process, container, or http.
	Backend RankerBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Command is the bridge command line for the process backend.
	Command string `json:"command" yaml:"command" mapstructure:"command"`

	// Image is the container image for the container backend.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// URL is the base URL of a scoring sidecar for the http backend.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// APIKey is sent as a bearer token by the http backend when set.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds a single scoring call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry budget of the http backend (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig holds the settings of a scoring run. It is populated from
// the optional s2score.yaml file and the environment.
type PipelineConfig struct {
	// DataDir holds one directory per experiment (contains conf.yml, *.data, scores/).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// ModelDir holds the ranking model files.
	ModelDir string `json:"model_dir" yaml:"model_dir" mapstructure:"model_dir"`

	// Workload is the worker count; 0 derives it from system memory.
	Workload int `json:"workload" yaml:"workload" mapstructure:"workload"`

	// ChunkSize is the number of records read per ledger append.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`

	// ModelBatch caps the number of records per ranker call.
	ModelBatch int `json:"model_batch" yaml:"model_batch" mapstructure:"model_batch"`

	// AnomalyThreshold marks scores above it as implausible.
	AnomalyThreshold float64 `json:"anomaly_threshold" yaml:"anomaly_threshold" mapstructure:"anomaly_threshold"`

	// LogLevel is the diagnostics level: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// RunLog enables the SQLite run history in each experiment directory.
	RunLog bool `json:"run_log" yaml:"run_log" mapstructure:"run_log"`

	Ranker RankerConfig `json:"ranker" yaml:"ranker" mapstructure:"ranker"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.ModelDir == "" {
		c.ModelDir = DefaultModelDir
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ModelBatch <= 0 {
		c.ModelBatch = DefaultModelBatch
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = DefaultAnomalyThreshold
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Ranker.Backend == "" {
		c.Ranker.Backend = RankerProcess
	}
	if c.Ranker.Command == "" {
		c.Ranker.Command = DefaultRankerCommand
	}
	if c.Ranker.Timeout <= 0 {
		c.Ranker.Timeout = DefaultRankerTimeout
	}
	return c
}
