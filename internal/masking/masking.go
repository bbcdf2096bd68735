// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package masking defines the feature-masking variants applied to paper
// records before scoring. A variant keeps a subset of the ranking features
// and drops every other field, so comparing its scores against the
// unmasked origin measures what the dropped fields contribute.
package masking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/s2score/pkg/types"
)

// ErrUnknownVariant is returned for keys that do not name a variant.
var ErrUnknownVariant = errors.New("unknown masking variant")

// codeSep joins feature codes in a variant key ("t+abs").
const codeSep = "+"

// featureCodes maps short codes to feature fields, in canonical order.
var featureCodes = []struct {
	code  string
	field string
}{
	{"t", types.FieldTitle},
	{"abs", types.FieldAbstract},
	{"v", types.FieldVenue},
	{"au", types.FieldAuthors},
	{"y", types.FieldYear},
	{"c", types.FieldNCitations},
}

// Variant is a named field-retention policy.
type Variant struct {
	// Key is the name used in conf.yml and score file names.
	Key string

	// Retain is the set of fields kept; nil for the origin identity.
	Retain map[string]bool
}

// Origin returns the identity variant.
func Origin() Variant {
	return Variant{Key: types.OriginVariant}
}

// IsOrigin reports whether v leaves records untouched.
func (v Variant) IsOrigin() bool {
	return v.Retain == nil
}

// Fields returns the retained fields in model order.
func (v Variant) Fields() []string {
	if v.IsOrigin() {
		return append([]string(nil), types.FeatureFields...)
	}
	var fields []string
	for _, fc := range featureCodes {
		if v.Retain[fc.field] {
			fields = append(fields, fc.field)
		}
	}
	return fields
}

// Parse resolves a variant key. "origin" is the identity; any other key is
// a "+"-separated list of feature codes (t, abs, v, au, y, c) naming the
// fields to keep.
func Parse(key string) (Variant, error) {
	if key == types.OriginVariant {
		return Origin(), nil
	}
	if key == "" {
		return Variant{}, fmt.Errorf("%w: empty key", ErrUnknownVariant)
	}

	retain := make(map[string]bool)
	for _, code := range strings.Split(key, codeSep) {
		field, ok := fieldForCode(code)
		if !ok {
			return Variant{}, fmt.Errorf("%w: %q (code %q)", ErrUnknownVariant, key, code)
		}
		if retain[field] {
			return Variant{}, fmt.Errorf("%w: %q repeats code %q", ErrUnknownVariant, key, code)
		}
		retain[field] = true
	}
	return Variant{Key: key, Retain: retain}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level tables.
func MustParse(key string) Variant {
	v, err := Parse(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks every key in keys.
func Validate(keys []string) error {
	for _, k := range keys {
		if _, err := Parse(k); err != nil {
			return err
		}
	}
	return nil
}

func fieldForCode(code string) (string, bool) {
	for _, fc := range featureCodes {
		if fc.code == code {
			return fc.field, true
		}
	}
	return "", false
}

// Apply returns a masked copy of p holding only the retained fields. The
// retained values share their bytes with p. Origin returns p itself.
func (v Variant) Apply(p types.Paper) types.Paper {
	if v.IsOrigin() {
		return p
	}
	out := make(types.Paper, len(v.Retain))
	for k, raw := range p {
		if v.Retain[k] {
			out[k] = raw
		}
	}
	return out
}

// ApplyAll masks every paper in papers.
func (v Variant) ApplyAll(papers []types.Paper) []types.Paper {
	if v.IsOrigin() {
		return papers
	}
	out := make([]types.Paper, len(papers))
	for i, p := range papers {
		out[i] = v.Apply(p)
	}
	return out
}
