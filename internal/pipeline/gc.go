// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/s2score/internal/ledger"
)

// taskNameOf returns the task name of a score file, or false for files
// that are neither artifacts nor ledgers.
func taskNameOf(fileName string) (string, bool) {
	if name, ok := strings.CutSuffix(fileName, ledger.LedgerSuffix); ok {
		return name, true
	}
	if name, ok := strings.CutSuffix(fileName, ledger.ArtifactExt); ok {
		return name, true
	}
	return "", false
}

// CollectGarbage removes artifacts and ledgers in scoresDir whose task
// name is not in configured. Other files and subdirectories are left
// alone. It returns the removed file names. A missing scoresDir is not an
// error.
func CollectGarbage(scoresDir string, configured map[string]bool, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(scoresDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scores directory: %w", err)
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := taskNameOf(e.Name())
		if !ok || configured[name] {
			continue
		}
		if err := os.Remove(filepath.Join(scoresDir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		logger.Info("removed unconfigured score file", "file", e.Name())
		removed = append(removed, e.Name())
	}
	return removed, nil
}
