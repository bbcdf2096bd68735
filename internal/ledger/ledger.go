// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps the on-disk progress of scoring tasks. While a task
// runs, its scores accumulate in a plain-text ledger, one value per line,
// so an interrupted run can resume at the first unscored record. Finalize
// turns the ledger into the task's compressed score artifact.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdiddy/s2score/internal/npz"
	"github.com/pdiddy/s2score/pkg/types"
)

const (
	// ArtifactExt is the file extension of a finished score artifact.
	ArtifactExt = ".npz"

	// LedgerSuffix is appended to a task name to form its ledger file name.
	LedgerSuffix = "#incomplete.txt"
)

// Ledger manages ledgers and artifacts in one scores directory. A ledger
// file has a single writer: the pipeline driver.
type Ledger struct {
	dir    string
	logger *slog.Logger
}

// New returns a Ledger rooted at dir. The directory is created on first
// append if it does not exist.
func New(dir string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{dir: dir, logger: logger}
}

// ArtifactPath returns the path of the task's finished artifact.
func (l *Ledger) ArtifactPath(task types.Task) string {
	return filepath.Join(l.dir, task.Name()+ArtifactExt)
}

// LedgerPath returns the path of the task's in-progress ledger.
func (l *Ledger) LedgerPath(task types.Task) string {
	return filepath.Join(l.dir, task.Name()+LedgerSuffix)
}

// Done reports whether the task's artifact exists.
func (l *Ledger) Done(task types.Task) bool {
	_, err := os.Stat(l.ArtifactPath(task))
	return err == nil
}

// Append adds scores to the task's ledger. The file is synced and closed
// before Append returns, so a crash afterwards loses nothing written here.
func (l *Ledger) Append(task types.Task, scores []float64) (err error) {
	if len(scores) == 0 {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating scores directory: %w", err)
	}

	var buf bytes.Buffer
	for _, s := range scores {
		buf.WriteString(strconv.FormatFloat(s, 'g', -1, 64))
		buf.WriteByte('\n')
	}

	path := l.LedgerPath(task)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing ledger: %w", cerr)
		}
	}()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

// Progress returns the number of scores recorded for the task, 0 when it
// has no ledger. A trailing line without a newline is the remnant of an
// interrupted write; it is truncated away so the next append starts on a
// line boundary, and is not counted.
func (l *Ledger) Progress(task types.Task) (int, error) {
	path := l.LedgerPath(task)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening ledger: %w", err)
	}

	lines, end, size, err := countLines(f)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	if end < size {
		l.logger.Warn("truncating partial ledger line",
			"task", task.Name(), "complete", lines, "dropped_bytes", size-end)
		if err := os.Truncate(path, end); err != nil {
			return 0, fmt.Errorf("truncating %s: %w", path, err)
		}
	}
	return lines, nil
}

// countLines returns the number of newline-terminated lines in r, the
// offset just past the last newline and the total size read.
func countLines(r io.Reader) (lines int, end, size int64, err error) {
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		chunk := buf[:n]
		for {
			i := bytes.IndexByte(chunk, '\n')
			if i < 0 {
				break
			}
			lines++
			end = size + int64(n-len(chunk)+i+1)
			chunk = chunk[i+1:]
		}
		size += int64(n)
		if rerr == io.EOF {
			return lines, end, size, nil
		}
		if rerr != nil {
			return 0, 0, 0, rerr
		}
	}
}

// Read parses the task's ledger. A missing ledger reads as no scores.
func (l *Ledger) Read(task types.Task) ([]float64, error) {
	path := l.LedgerPath(task)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	scores := []float64{}
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		scores = append(scores, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return scores, nil
}

// Finalize writes the task's artifact from its ledger and removes the
// ledger. It returns the artifact path.
func (l *Ledger) Finalize(task types.Task) (string, error) {
	scores, err := l.Read(task)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scores directory: %w", err)
	}

	path := l.ArtifactPath(task)
	if err := npz.WriteFile(path, npz.DefaultKey, scores); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Remove(l.LedgerPath(task)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("removing ledger: %w", err)
	}
	return path, nil
}
