// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/s2score/internal/httputil"
	"github.com/pdiddy/s2score/pkg/types"
)

// scorePath is appended to the sidecar base URL.
const scorePath = "/score"

// HTTP is a Ranker that posts requests to a scoring sidecar.
type HTTP struct {
	client     *http.Client
	url        string
	apiKey     string
	maxRetries int
}

// NewHTTP returns an HTTP ranker for cfg.URL.
func NewHTTP(cfg types.RankerConfig) *HTTP {
	return &HTTP{
		client:     &http.Client{Timeout: cfg.Timeout},
		url:        strings.TrimRight(cfg.URL, "/") + scorePath,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
	}
}

// Score posts one request. Busy (429) and unavailable (503) replies are
// retried with backoff.
func (h *HTTP) Score(ctx context.Context, query string, papers []types.Paper) ([]float64, error) {
	if len(papers) == 0 {
		return []float64{}, nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(request{Query: query, Papers: papers}); err != nil {
		return nil, fmt.Errorf("encoding ranker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, h.client, req, h.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("ranker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ranker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding ranker response: %w", err)
	}
	return r.check(len(papers))
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
