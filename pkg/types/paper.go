// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
)

// Feature keys the ranking model reads from a paper record.
const (
	FieldTitle      = "title"
	FieldAbstract   = "abstract"
	FieldVenue      = "venue"
	FieldAuthors    = "authors"
	FieldYear       = "year"
	FieldNCitations = "n_citations"
)

// FeatureFields lists the ranking features in model order.
var FeatureFields = []string{
	FieldTitle, FieldAbstract, FieldVenue, FieldAuthors, FieldYear, FieldNCitations,
}

// Paper is one line of an input record file. Values are kept as the raw
// JSON bytes read from disk, so a field that survives masking is passed to
// the ranker exactly as it appeared in the source.
type Paper map[string]json.RawMessage

// ParsePaper decodes one newline-delimited JSON record. Raw control
// characters inside strings are accepted and stored escaped.
func ParsePaper(line []byte) (Paper, error) {
	var p Paper
	if err := json.Unmarshal(escapeControl(line), &p); err != nil {
		return nil, fmt.Errorf("decoding paper record: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decoding paper record: not a JSON object")
	}
	return p, nil
}

// Has reports whether the record carries field.
func (p Paper) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Title returns the decoded title, or "" when absent or not a string.
func (p Paper) Title() string { return p.str(FieldTitle) }

// Abstract returns the decoded abstract, or "".
func (p Paper) Abstract() string { return p.str(FieldAbstract) }

func (p Paper) str(field string) string {
	raw, ok := p[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// escapeControl rewrites bytes below 0x20 inside string literals as \u00XX
// escapes. Input without such bytes is returned unchanged.
func escapeControl(line []byte) []byte {
	var out []byte
	inString, escaped := false, false
	for i, c := range line {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			if out == nil {
				out = make([]byte, i, len(line)+16)
				copy(out, line[:i])
			}
			out = fmt.Appendf(out, `\u%04x`, c)
			continue
		}
		if out != nil {
			out = append(out, c)
		}
	}
	if out == nil {
		return line
	}
	return out
}
