// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials kept outside the config file, one per
// file in a directory such as .secrets/: the file name is the key and the
// trimmed contents are the value.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/s2score/pkg/types"
)

// DefaultDir is the secrets directory looked up relative to the working
// directory.
const DefaultDir = ".secrets"

// RankerAPIKey is the bearer token for the http ranker backend.
const RankerAPIKey = "ranker-api-key"

// Load returns the secrets found in dir. A missing directory yields an
// empty map. Hidden files, subdirectories and empty files are ignored;
// unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// Apply fills credentials missing from cfg with values from s. Values set
// in the config file or environment win.
func Apply(cfg types.PipelineConfig, s map[string]string) types.PipelineConfig {
	if cfg.Ranker.APIKey == "" {
		cfg.Ranker.APIKey = s[RankerAPIKey]
	}
	return cfg
}
