// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/s2score/pkg/types"
)

// setDefaults registers every configuration key so that AutomaticEnv can
// resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", types.DefaultDataDir)
	v.SetDefault("model_dir", types.DefaultModelDir)
	v.SetDefault("workload", 0)
	v.SetDefault("chunk_size", types.DefaultChunkSize)
	v.SetDefault("model_batch", types.DefaultModelBatch)
	v.SetDefault("anomaly_threshold", types.DefaultAnomalyThreshold)
	v.SetDefault("log_level", "info")
	v.SetDefault("run_log", true)
	v.SetDefault("ranker.backend", string(types.RankerProcess))
	v.SetDefault("ranker.command", types.DefaultRankerCommand)
	v.SetDefault("ranker.image", "")
	v.SetDefault("ranker.url", "")
	v.SetDefault("ranker.api_key", "")
	v.SetDefault("ranker.timeout", types.DefaultRankerTimeout)
	v.SetDefault("ranker.max_retries", 5)
}

// loadConfig decodes the merged file, environment and default settings.
func loadConfig(v *viper.Viper) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg = cfg.WithDefaults()
	if cfg.Workload < 0 {
		return cfg, fmt.Errorf("workload must not be negative, got %d", cfg.Workload)
	}
	switch cfg.Ranker.Backend {
	case types.RankerProcess, types.RankerContainer, types.RankerHTTP:
	default:
		return cfg, fmt.Errorf("unknown ranker backend %q (want process, container or http)", cfg.Ranker.Backend)
	}
	return cfg, nil
}
