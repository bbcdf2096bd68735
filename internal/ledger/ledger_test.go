// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/s2score/internal/npz"
	"github.com/pdiddy/s2score/pkg/types"
)

var task = types.Task{Experiment: "exp", Sample: "cs", Number: 1, Variant: "t+abs"}

func seq(from, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(from+i) + 0.25
	}
	return out
}

func TestPaths(t *testing.T) {
	l := New("/scores", nil)
	assert.Equal(t, "/scores/exp_cs_t1_t+abs.npz", l.ArtifactPath(task))
	assert.Equal(t, "/scores/exp_cs_t1_t+abs#incomplete.txt", l.LedgerPath(task))
}

func TestAppendAndProgress(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "scores"), nil)

	n, err := l.Progress(task)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, l.Append(task, []float64{1.5, -2, 1e-300}))
	require.NoError(t, l.Append(task, nil))
	require.NoError(t, l.Append(task, []float64{0.1}))

	n, err = l.Progress(task)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	raw, err := os.ReadFile(l.LedgerPath(task))
	require.NoError(t, err)
	assert.Equal(t, "1.5\n-2\n1e-300\n0.1\n", string(raw))
}

func TestProgress_TruncatesPartialLine(t *testing.T) {
	l := New(t.TempDir(), nil)
	require.NoError(t, os.WriteFile(l.LedgerPath(task), []byte("1\n2\n3.14"), 0o644))

	n, err := l.Progress(task)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, err := os.ReadFile(l.LedgerPath(task))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", string(raw))

	require.NoError(t, l.Append(task, []float64{3}))
	got, err := l.Read(task)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestCountLines_LargeFile(t *testing.T) {
	// Spans several read buffers.
	var b strings.Builder
	for i := 0; i < 20000; i++ {
		b.WriteString("12.345678\n")
	}
	b.WriteString("9")
	lines, end, size, err := countLines(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 20000, lines)
	assert.Equal(t, int64(200000), end)
	assert.Equal(t, int64(200001), size)
}

func TestFinalize(t *testing.T) {
	l := New(t.TempDir(), nil)

	// 2500 records in chunks of 1000: three appends, one finalize.
	for _, c := range [][2]int{{0, 1000}, {1000, 1000}, {2000, 500}} {
		require.NoError(t, l.Append(task, seq(c[0], c[1])))
	}
	assert.False(t, l.Done(task))

	path, err := l.Finalize(task)
	require.NoError(t, err)
	assert.Equal(t, l.ArtifactPath(task), path)
	assert.True(t, l.Done(task))

	_, err = os.Stat(l.LedgerPath(task))
	assert.True(t, os.IsNotExist(err), "ledger is removed")

	got, err := npz.ReadFile(path, npz.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, seq(0, 2500), got)
}

func TestFinalize_ResumedEqualsUninterrupted(t *testing.T) {
	scores := seq(0, 37)

	whole := New(t.TempDir(), nil)
	require.NoError(t, whole.Append(task, scores))
	wholePath, err := whole.Finalize(task)
	require.NoError(t, err)

	resumed := New(t.TempDir(), nil)
	require.NoError(t, resumed.Append(task, scores[:10]))
	k, err := resumed.Progress(task)
	require.NoError(t, err)
	require.NoError(t, resumed.Append(task, scores[k:]))
	resumedPath, err := resumed.Finalize(task)
	require.NoError(t, err)

	a, err := os.ReadFile(wholePath)
	require.NoError(t, err)
	b, err := os.ReadFile(resumedPath)
	require.NoError(t, err)

	av, err := npz.ReadFile(wholePath, npz.DefaultKey)
	require.NoError(t, err)
	bv, err := npz.ReadFile(resumedPath, npz.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, av, bv)
	assert.Equal(t, a, b, "artifacts are byte-identical")
}

func TestFinalize_MissingLedgerGivesEmptyArtifact(t *testing.T) {
	l := New(t.TempDir(), nil)
	path, err := l.Finalize(task)
	require.NoError(t, err)

	got, err := npz.ReadFile(path, npz.DefaultKey)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFinalize_BadLine(t *testing.T) {
	l := New(t.TempDir(), nil)
	require.NoError(t, os.WriteFile(l.LedgerPath(task), []byte("1\nabc\n"), 0o644))

	_, err := l.Finalize(task)
	assert.ErrorContains(t, err, "line 2")
	assert.False(t, l.Done(task))
	_, err = os.Stat(l.LedgerPath(task))
	assert.NoError(t, err, "ledger is kept when finalize fails")
}
