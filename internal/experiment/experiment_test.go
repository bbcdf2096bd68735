// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/s2score/internal/masking"
)

const sampleConf = `description: masking study on cs papers
samples:
  zeta:
    - query: deep learning
      masking_option_keys: [t, abs]
    - query: deep learning
      masking_option_keys: [t+abs]
      using_origin_from: t1
  alpha:
    - query: graph neural networks
      masking_option_keys: []
sample_from_other_exp:
  alpha: [other, alpha.data]
`

func writeExp(t *testing.T, dataDir, exp, conf string) {
	t.Helper()
	dir := filepath.Join(dataDir, exp)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfFile), []byte(conf), 0o644))
}

func TestLoad_KeepsSampleOrder(t *testing.T) {
	dataDir := t.TempDir()
	writeExp(t, dataDir, "exp1", sampleConf)

	cfg, err := Load(dataDir, "exp1")
	require.NoError(t, err)

	assert.Equal(t, "exp1", cfg.Name)
	assert.Equal(t, "masking study on cs papers", cfg.Description)
	require.Len(t, cfg.Samples, 2)
	assert.Equal(t, "zeta", cfg.Samples[0].Name)
	assert.Equal(t, "alpha", cfg.Samples[1].Name)

	zeta := cfg.Samples[0]
	require.Len(t, zeta.Tasks, 2)
	assert.Equal(t, []string{"t", "abs"}, zeta.Tasks[0].MaskingOptionKeys)
	assert.Equal(t, "t1", zeta.Tasks[1].UsingOriginFrom)
	assert.Equal(t, []string{"other", "alpha.data"}, cfg.SampleFromOtherExp["alpha"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		conf string
		want string
	}{
		{"unknown masking key", "samples:\n  s:\n    - query: q\n      masking_option_keys: [title]\n", "title"},
		{"samples not a mapping", "samples: [a, b]\n", "mapping"},
		{"duplicate sample", "samples:\n  s: []\n  s: []\n", ""},
		{"bad origin ref", "samples:\n  s:\n    - query: q\n      masking_option_keys: []\n      using_origin_from: t5\n", "t5"},
		{"self origin ref", "samples:\n  s:\n    - query: q\n      masking_option_keys: []\n      using_origin_from: t1\n", "t1"},
		{"bad yaml", "samples: [\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			writeExp(t, dataDir, "e", tt.conf)
			_, err := Load(dataDir, "e")
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}

	_, err := Load(t.TempDir(), "missing")
	assert.Error(t, err)
}

func TestLoad_UnknownKeyIsVariantError(t *testing.T) {
	_, err := Parse("e", []byte("samples:\n  s:\n    - query: q\n      masking_option_keys: [zz]\n"))
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, masking.ErrUnknownVariant)
}

func TestTasks_ProcessingOrder(t *testing.T) {
	cfg, err := Parse("exp1", []byte(sampleConf))
	require.NoError(t, err)

	var names []string
	for _, task := range Tasks(cfg) {
		names = append(names, task.Name())
	}
	assert.Equal(t, []string{
		"exp1_zeta_t1_origin",
		"exp1_zeta_t1_t",
		"exp1_zeta_t1_abs",
		"exp1_zeta_t2_origin",
		"exp1_zeta_t2_t+abs",
		"exp1_alpha_t1_origin",
	}, names)

	set := TaskNames(cfg)
	assert.True(t, set["exp1_zeta_t2_t+abs"])
	assert.False(t, set["exp1_zeta_t2_t"])
}

func TestParseTaskLabel(t *testing.T) {
	n, err := ParseTaskLabel("t12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"", "12", "t", "t0", "t-1", "tx"} {
		_, err := ParseTaskLabel(bad)
		assert.Error(t, err, bad)
	}
}

func TestDataFile(t *testing.T) {
	dataDir := t.TempDir()
	writeExp(t, dataDir, "exp1", sampleConf)
	cfg, err := Load(dataDir, "exp1")
	require.NoError(t, err)

	// Own file present.
	own := filepath.Join(dataDir, "exp1", "zeta.data")
	require.NoError(t, os.WriteFile(own, []byte("{}\n"), 0o644))
	got, fallback, err := DataFile(dataDir, cfg, "zeta")
	require.NoError(t, err)
	assert.Equal(t, own, got)
	assert.False(t, fallback)

	// Fallback configured but missing.
	_, _, err = DataFile(dataDir, cfg, "alpha")
	assert.ErrorIs(t, err, ErrNoDataFile)

	// Fallback present.
	other := filepath.Join(dataDir, "other", "alpha.data")
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0o755))
	require.NoError(t, os.WriteFile(other, []byte("{}\n"), 0o644))
	got, fallback, err = DataFile(dataDir, cfg, "alpha")
	require.NoError(t, err)
	assert.Equal(t, other, got)
	assert.True(t, fallback)

	// Neither.
	_, _, err = DataFile(dataDir, cfg, "nothing")
	assert.ErrorIs(t, err, ErrNoDataFile)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("pipelining", "e"), Dir("pipelining", "e"))
	assert.Equal(t, filepath.Join("pipelining", "e", "scores"), ScoresPath("pipelining", "e"))
}
