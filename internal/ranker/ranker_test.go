// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ranker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/s2score/internal/httputil"
	"github.com/pdiddy/s2score/pkg/types"
)

const helperEnv = "S2SCORE_HELPER_BRIDGE"

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// TestHelperBridge is not a real test. When helperEnv is set it acts as
// the ranker bridge: it announces readiness, then answers each request
// line with the title length of every paper.
func TestHelperBridge(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)

	out := bufio.NewWriter(os.Stdout)
	emit := func(v any) {
		json.NewEncoder(out).Encode(v)
		out.Flush()
	}

	switch mode {
	case "fail-load":
		emit(map[string]string{"error": "cannot open titles_abstracts_lm.binary"})
		return
	case "silent":
		time.Sleep(10 * time.Second)
		return
	}
	emit(map[string]bool{"ready": true})

	in := bufio.NewReader(os.Stdin)
	for {
		line, err := in.ReadBytes('\n')
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			emit(map[string]string{"error": err.Error()})
			continue
		}
		scores := make([]float64, len(req.Papers))
		for i, p := range req.Papers {
			scores[i] = float64(len(p.Title()))
		}
		if mode == "short" && len(scores) > 0 {
			scores = scores[1:]
		}
		emit(map[string][]float64{"scores": scores})
	}
}

func helperCommand(mode string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperBridge$")
	cmd.Env = append(os.Environ(), helperEnv+"="+mode)
	cmd.Stderr = io.Discard
	return cmd
}

func papers(titles ...string) []types.Paper {
	out := make([]types.Paper, len(titles))
	for i, title := range titles {
		raw, _ := json.Marshal(title)
		out[i] = types.Paper{types.FieldTitle: raw}
	}
	return out
}

func TestProcess_ScoresInOrder(t *testing.T) {
	p, err := StartProcess(context.Background(), helperCommand("ok"), 10*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	scores, err := p.Score(context.Background(), "graph neural networks", papers("a", "abcd", "ab"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 2}, scores)

	// The same process serves later requests.
	scores, err = p.Score(context.Background(), "q", papers("xyz"))
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, scores)
}

func TestProcess_EmptyRequest(t *testing.T) {
	p, err := StartProcess(context.Background(), helperCommand("ok"), 10*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	scores, err := p.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestProcess_LoadFailure(t *testing.T) {
	_, err := StartProcess(context.Background(), helperCommand("fail-load"), 10*time.Second, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "titles_abstracts_lm.binary")
}

func TestProcess_LengthMismatch(t *testing.T) {
	p, err := StartProcess(context.Background(), helperCommand("short"), 10*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Score(context.Background(), "q", papers("a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scores for 2 papers")
}

func TestProcess_TimeoutBreaksRanker(t *testing.T) {
	_, err := StartProcess(context.Background(), helperCommand("silent"), 200*time.Millisecond, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTP_Score(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "q", req.Query)
		scores := make([]float64, len(req.Papers))
		for i, p := range req.Papers {
			scores[i] = float64(len(p.Title())) / 10
		}
		json.NewEncoder(w).Encode(response{Scores: scores})
	}))
	defer ts.Close()

	h := NewHTTP(types.RankerConfig{URL: ts.URL + "/", APIKey: "secret", Timeout: 5 * time.Second})
	defer h.Close()

	scores, err := h.Score(context.Background(), "q", papers("abc", "a"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.1}, scores)
	assert.Equal(t, 2, calls)
}

func TestHTTP_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			wantErr: "HTTP 500: model crashed",
		},
		{
			name: "ranker error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"error":"bad query"}`)
			},
			wantErr: "ranker error: bad query",
		},
		{
			name: "wrong length",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"scores":[1,2,3]}`)
			},
			wantErr: "3 scores for 1 papers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			h := NewHTTP(types.RankerConfig{URL: ts.URL, Timeout: 5 * time.Second})
			_, err := h.Score(context.Background(), "q", papers("x"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeModelFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func TestCheckModelDir(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		dir := t.TempDir()
		writeModelFiles(t, dir, RequiredModelFiles...)
		assert.NoError(t, CheckModelDir(dir))
	})

	t.Run("missing files listed", func(t *testing.T) {
		dir := t.TempDir()
		writeModelFiles(t, dir, "authors_lm.binary", "venues_lm.binary")
		err := CheckModelDir(dir)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrModelFiles))
		assert.Contains(t, err.Error(), "lightgbm_model.pickle, titles_abstracts_lm.binary")
	})

	t.Run("missing directory", func(t *testing.T) {
		err := CheckModelDir(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrModelFiles)
	})
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.RankerConfig
		wantErr string
	}{
		{"process default", types.RankerConfig{Backend: types.RankerProcess, Command: "python3 -m bridge"}, ""},
		{"process empty command", types.RankerConfig{Backend: types.RankerProcess, Command: "  "}, "command is empty"},
		{"container needs image", types.RankerConfig{Backend: types.RankerContainer}, "image is required"},
		{"http needs url", types.RankerConfig{Backend: types.RankerHTTP}, "url is required"},
		{"http", types.RankerConfig{Backend: types.RankerHTTP, URL: "http://localhost:9000"}, ""},
		{"unknown", types.RankerConfig{Backend: "grpc"}, "unsupported ranker backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactory(types.PipelineConfig{Ranker: tt.cfg}, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, f)
		})
	}
}

func TestNewFactory_ProcessChecksModelDir(t *testing.T) {
	cfg := types.PipelineConfig{
		ModelDir: filepath.Join(t.TempDir(), "missing"),
		Ranker:   types.RankerConfig{Backend: types.RankerProcess, Command: "python3 -m bridge"},
	}
	f, err := NewFactory(cfg, nil)
	require.NoError(t, err)

	_, err = f(context.Background())
	assert.ErrorIs(t, err, ErrModelFiles)
}
