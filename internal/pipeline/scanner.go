// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/s2score/pkg/types"
)

// ErrBadRecord is returned for a data file line that is not a JSON object.
var ErrBadRecord = errors.New("undecodable record")

// Scanner reads paper records from a JSON-lines data file. Blank lines are
// not records.
type Scanner struct {
	r    *bufio.Reader
	line int
	eof  bool
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 1<<20)}
}

// readRecord returns the next non-blank line, trimmed, or io.EOF.
func (s *Scanner) readRecord() ([]byte, error) {
	for !s.eof {
		line, err := s.r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", s.line+1, err)
		}
		if len(line) == 0 && s.eof {
			break
		}
		s.line++
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			return trimmed, nil
		}
	}
	return nil, io.EOF
}

// Skip discards up to n records without decoding them and returns how
// many were skipped.
func (s *Scanner) Skip(n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, err := s.readRecord(); err != nil {
			if errors.Is(err, io.EOF) {
				return i, nil
			}
			return i, err
		}
	}
	return n, nil
}

// Next decodes up to n records. At the end of input it returns the
// remaining records with a nil error, then io.EOF on the following call.
func (s *Scanner) Next(n int) ([]types.Paper, error) {
	var papers []types.Paper
	for len(papers) < n {
		raw, err := s.readRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := types.ParsePaper(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRecord, s.line, err)
		}
		papers = append(papers, p)
	}
	if len(papers) == 0 {
		return nil, io.EOF
	}
	return papers, nil
}
