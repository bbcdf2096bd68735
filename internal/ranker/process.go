// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ranker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/pdiddy/s2score/pkg/types"
)

// closeGrace is how long Close waits for the bridge to exit on EOF.
const closeGrace = 5 * time.Second

// Process is a Ranker backed by a long-lived bridge process. Requests are
// written one JSON object per line to its stdin and replies are read one
// per line from its stdout.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     *bufio.Reader
	timeout time.Duration
	logger  *slog.Logger

	// broken is set once the stream is out of sync; the process is killed
	// and every later call fails.
	broken error
}

// StartProcess starts cmd and waits for the bridge to report that its
// model is loaded. Stderr of the bridge is forwarded to os.Stderr unless
// cmd already sets it.
func StartProcess(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = types.DefaultRankerTimeout
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ranker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ranker stdout: %w", err)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ranker %s: %w", cmd.Path, err)
	}

	p := &Process{
		cmd:     cmd,
		stdin:   stdin,
		out:     bufio.NewReader(stdout),
		timeout: timeout,
		logger:  logger,
	}

	resp, err := p.roundTrip(ctx, nil)
	if err != nil {
		p.abort()
		return nil, fmt.Errorf("loading ranker model: %w", err)
	}
	if resp.Error != "" {
		p.abort()
		return nil, fmt.Errorf("loading ranker model: %s", resp.Error)
	}
	if !resp.Ready {
		p.abort()
		return nil, fmt.Errorf("loading ranker model: bridge did not report ready")
	}

	logger.Debug("ranker process ready", "pid", cmd.Process.Pid, "elapsed", time.Since(start).Round(10*time.Millisecond))
	return p, nil
}

// Score sends one request and waits for its reply.
func (p *Process) Score(ctx context.Context, query string, papers []types.Paper) ([]float64, error) {
	if len(papers) == 0 {
		return []float64{}, nil
	}
	resp, err := p.roundTrip(ctx, &request{Query: query, Papers: papers})
	if err != nil {
		return nil, err
	}
	return resp.check(len(papers))
}

// roundTrip writes req (nothing when nil) and reads one reply line. On
// timeout or cancellation the process is killed, because a late reply
// would pair with the next request.
func (p *Process) roundTrip(ctx context.Context, req *request) (response, error) {
	if p.broken != nil {
		return response{}, p.broken
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type reply struct {
		resp response
		err  error
	}
	ch := make(chan reply, 1)

	go func() {
		if req != nil {
			enc := json.NewEncoder(p.stdin)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(req); err != nil {
				ch <- reply{err: fmt.Errorf("writing ranker request: %w", err)}
				return
			}
		}
		line, err := p.out.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("ranker process exited")
			}
			ch <- reply{err: fmt.Errorf("reading ranker response: %w", err)}
			return
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			ch <- reply{err: fmt.Errorf("decoding ranker response: %w", err)}
			return
		}
		ch <- reply{resp: resp}
	}()

	select {
	case <-ctx.Done():
		p.broken = fmt.Errorf("ranker call abandoned: %w", ctx.Err())
		p.kill()
		return response{}, p.broken
	case r := <-ch:
		if r.err != nil {
			p.broken = r.err
			p.kill()
		}
		return r.resp, r.err
	}
}

// Close ends the bridge by closing its stdin, killing it if it does not
// exit within a grace period.
func (p *Process) Close() error {
	if p.cmd.ProcessState != nil {
		return nil
	}
	p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil && p.broken == nil {
			return fmt.Errorf("ranker process: %w", err)
		}
		return nil
	case <-time.After(closeGrace):
		p.logger.Warn("ranker process did not exit, killing", "pid", p.cmd.Process.Pid)
		p.cmd.Process.Kill()
		<-done
		return nil
	}
}

// abort kills the process and reaps it.
func (p *Process) abort() {
	p.kill()
	p.cmd.Wait()
}

func (p *Process) kill() {
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}
