// Package similarity scores two normalized texts with Ratcliff/Obershelp
// gestalt pattern matching: find the longest common block, recurse on the
// pieces to either side, and report 2*matched/(len(a)+len(b)).
package similarity

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Granularity selects the unit the matcher compares
type Granularity string

const (
	// Char compares Unicode code points
	Char Granularity = "char"
	// Token compares whitespace separated tokens
	Token Granularity = "token"
)

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(s)) {
	case Char, "":
		return Char, nil
	case Token:
		return Token, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

type Options struct {
	Granularity Granularity
	// AutoJunk enables difflib's popular-element heuristic for sequences of
	// 200 or more units. Off keeps the pure algorithm.
	AutoJunk bool
}

// Scorer computes similarity ratios. The zero value compares characters
// without autojunk.
type Scorer struct {
	opts Options
}

func NewScorer(opts Options) *Scorer {
	if opts.Granularity == "" {
		opts.Granularity = Char
	}
	return &Scorer{opts: opts}
}

// Ratio returns a similarity in [0,1]. Two empty inputs score 1.0, one empty
// input scores 0.0.
//
// The pair is put in canonical order before matching so the result does not
// depend on argument order: equal-length longest blocks are broken by
// position, which would otherwise make swapped arguments diverge.
func (s *Scorer) Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if less(b, a) {
		a, b = b, a
	}

	seqA, seqB := s.split(a), s.split(b)
	m := difflib.NewMatcherWithJunk(seqA, seqB, s.opts.AutoJunk, nil)
	ratio := m.Ratio()
	if ratio < 0 || ratio > 1 {
		panic(fmt.Sprintf("similarity: ratio %v outside [0,1]", ratio))
	}
	return ratio
}

// Ratio scores a and b with the default scorer
func Ratio(a, b string) float64 {
	return defaultScorer.Ratio(a, b)
}

var defaultScorer = NewScorer(Options{})

func (s *Scorer) split(text string) []string {
	if s.opts.Granularity == Token {
		return strings.Fields(text)
	}
	return Runes(text)
}

// Runes splits text into one string per code point
func Runes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func less(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
