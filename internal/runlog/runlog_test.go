// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/s2score/pkg/types"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scores")
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, dir := testStore(t)
	_, err := os.Stat(filepath.Join(dir, DBFile))
	assert.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Run{
		Task:    types.Task{Experiment: "e", Sample: "s", Number: 1, Variant: "origin"},
		Outcome: OutcomeComputed,
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(context.Background(), "e")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordAndList(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []Run{
		{
			Task:        types.Task{Experiment: "exp1", Sample: "cs", Number: 1, Variant: "origin"},
			Outcome:     OutcomeComputed,
			Started:     start,
			Finished:    start.Add(90 * time.Second),
			Records:     1500,
			ResumedFrom: 1000,
			Repaired:    2,
			Unresolved:  1,
		},
		{
			Task:     types.Task{Experiment: "exp1", Sample: "cs", Number: 2, Variant: "origin"},
			Outcome:  OutcomeCopied,
			Started:  start.Add(2 * time.Minute),
			Finished: start.Add(2 * time.Minute),
			Source:   "exp1_cs_t1_origin.npz",
		},
		{
			Task:    types.Task{Experiment: "exp2", Sample: "bio", Number: 1, Variant: "t+abs"},
			Outcome: OutcomeComputed,
		},
	}
	for i, r := range runs {
		id, err := s.Record(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	got, err := s.List(ctx, "exp1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "exp1_cs_t1_origin", first.Name)
	assert.Equal(t, runs[0].Task, first.Task)
	assert.Equal(t, OutcomeComputed, first.Outcome)
	assert.True(t, start.Equal(first.Started))
	assert.Equal(t, 90*time.Second, first.Elapsed)
	assert.Equal(t, 1500, first.Records)
	assert.Equal(t, 1000, first.ResumedFrom)
	assert.Equal(t, 2, first.Repaired)
	assert.Equal(t, 1, first.Unresolved)
	assert.Empty(t, first.Source)

	assert.Equal(t, OutcomeCopied, got[1].Outcome)
	assert.Equal(t, "exp1_cs_t1_origin.npz", got[1].Source)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}
